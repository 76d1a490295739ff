package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/kvstore"
)

// ViolationWindow is the sliding window over which violations accumulate.
// The TTL is refreshed on every increment, so the counter answers "has this
// client violated recently", not "how many violations since a fixed point".
const ViolationWindow = 24 * time.Hour

// ViolationTracker records one violation per rejected request against a
// 24h sliding counter. The count only ever increases within its window;
// expiry is the only reset.
type ViolationTracker struct {
	store kvstore.Store
}

// NewViolationTracker creates a violation tracker over the given store.
func NewViolationTracker(store kvstore.Store) *ViolationTracker {
	return &ViolationTracker{store: store}
}

// Record increments the client's violation counter and returns the new
// count. The TTL reset on every call gives the sliding-window semantics.
func (t *ViolationTracker) Record(ctx context.Context, clientID string) (int64, error) {
	count, err := t.store.IncrBy(ctx, violationKey(clientID), 1, ViolationWindow, true)
	if err != nil {
		return 0, fmt.Errorf("failed to record violation: %w", err)
	}
	return count, nil
}

// Count returns the client's current violation count. A pure read for
// diagnostics; an absent record reads as zero.
func (t *ViolationTracker) Count(ctx context.Context, clientID string) (int64, error) {
	value, found, err := t.store.Get(ctx, violationKey(clientID))
	if err != nil {
		return 0, fmt.Errorf("failed to read violation count: %w", err)
	}
	if !found {
		return 0, nil
	}

	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("violation count for %s is not an integer: %w", clientID, err)
	}
	return count, nil
}
