package ratelimit

import (
	"fmt"
	"time"
)

// Window is a fixed-length time bucket used to bound a counter.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
)

// windowGrace is added to record TTLs so a record outlives its window by a
// small margin instead of vanishing at the exact boundary.
const windowGrace = 10 * time.Second

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	default:
		return time.Minute
	}
}

// Start returns the window start for the given time, as Unix seconds
// floored to the window size.
func (w Window) Start(now time.Time) int64 {
	size := int64(w.Duration() / time.Second)
	return now.Unix() - now.Unix()%size
}

// Boundary returns the end of the window containing the given time, which
// is when a fresh record starts and the counter effectively resets.
func (w Window) Boundary(now time.Time) time.Time {
	return time.Unix(w.Start(now), 0).Add(w.Duration())
}

// Key layout. All rate-limit state shares the store with whatever else the
// deployment keeps in it, so every key carries an explicit namespace prefix.
func requestKey(clientID string, w Window, start int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", clientID, w, start)
}

func costKey(clientID string, w Window, start int64) string {
	return fmt.Sprintf("ratelimit:cost:%s:%s:%d", clientID, w, start)
}

func violationKey(clientID string) string {
	return "violations:" + clientID
}

func blockKey(clientID string) string {
	return "blocklist:" + clientID
}

// Usage describes one window's counter against its ceiling.
type Usage struct {
	Window Window
	Count  int64
	Limit  int64
	// Reset is the window boundary at which a fresh record starts.
	Reset time.Time
}

// Remaining returns the count left under the ceiling, clamped to zero.
func (u Usage) Remaining() int64 {
	remaining := u.Limit - u.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Fraction returns the remaining share of the ceiling, in [0, 1].
func (u Usage) Fraction() float64 {
	if u.Limit <= 0 {
		return 1
	}
	return float64(u.Remaining()) / float64(u.Limit)
}
