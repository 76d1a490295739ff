package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/kvstore"
)

// Limits holds the per-client ceilings for both budgets.
type Limits struct {
	RequestsPerMinute int64
	RequestsPerHour   int64
	// BurstAllowance is added to the minute ceiling only, so short bursts
	// are tolerated but sustained abuse is not.
	BurstAllowance int64
	CostPerMinute  float64
	CostPerHour    float64
}

// DefaultLimits returns the default per-client ceilings.
func DefaultLimits() Limits {
	return Limits{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		BurstAllowance:    5,
		CostPerMinute:     50,
		CostPerHour:       200,
	}
}

// CounterResult is the outcome of one request-count evaluation.
type CounterResult struct {
	Minute  Usage
	Hour    Usage
	Allowed bool
}

// RequestCounter tracks raw request counts per client across the minute and
// hour windows. Both windows are incremented unconditionally, including for
// requests that end up rejected: retries on rejection do not get a free pass.
type RequestCounter struct {
	store  kvstore.Store
	limits Limits
}

// NewRequestCounter creates a request counter over the given store.
func NewRequestCounter(store kvstore.Store, limits Limits) *RequestCounter {
	return &RequestCounter{
		store:  store,
		limits: limits,
	}
}

// CheckAndIncrement increments both window counters for the client and
// evaluates them against the ceilings. The increment is a single atomic
// store operation per window; the record is created lazily on first write
// and garbage-collected purely by TTL.
func (c *RequestCounter) CheckAndIncrement(ctx context.Context, clientID string, now time.Time) (*CounterResult, error) {
	minuteStart := WindowMinute.Start(now)
	minuteCount, err := c.store.IncrBy(ctx, requestKey(clientID, WindowMinute, minuteStart), 1,
		WindowMinute.Duration()+windowGrace, false)
	if err != nil {
		return nil, fmt.Errorf("failed to increment minute counter: %w", err)
	}

	hourStart := WindowHour.Start(now)
	hourCount, err := c.store.IncrBy(ctx, requestKey(clientID, WindowHour, hourStart), 1,
		WindowHour.Duration()+windowGrace, false)
	if err != nil {
		return nil, fmt.Errorf("failed to increment hour counter: %w", err)
	}

	result := &CounterResult{
		Minute: Usage{
			Window: WindowMinute,
			Count:  minuteCount,
			Limit:  c.limits.RequestsPerMinute,
			Reset:  WindowMinute.Boundary(now),
		},
		Hour: Usage{
			Window: WindowHour,
			Count:  hourCount,
			Limit:  c.limits.RequestsPerHour,
			Reset:  WindowHour.Boundary(now),
		},
	}

	result.Allowed = minuteCount <= c.limits.RequestsPerMinute+c.limits.BurstAllowance &&
		hourCount <= c.limits.RequestsPerHour

	return result, nil
}
