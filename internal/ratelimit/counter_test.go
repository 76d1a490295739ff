package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/kvstore"
)

// fixedNow is mid-window so repeated checks in a test never cross a
// window boundary.
var fixedNow = time.Date(2024, 6, 1, 12, 30, 30, 0, time.UTC)

func TestRequestCounterUnderLimit(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()

	counter := NewRequestCounter(store, Limits{
		RequestsPerMinute: 5,
		RequestsPerHour:   100,
		BurstAllowance:    2,
	})

	for i := 0; i < 5; i++ {
		result, err := counter.CheckAndIncrement(context.Background(), "client-1", fixedNow)
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
}

func TestRequestCounterBurstAllowance(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()

	counter := NewRequestCounter(store, Limits{
		RequestsPerMinute: 5,
		RequestsPerHour:   100,
		BurstAllowance:    2,
	})
	ctx := context.Background()

	// The burst allowance extends the minute ceiling: 5+2 requests pass.
	for i := 0; i < 7; i++ {
		result, err := counter.CheckAndIncrement(ctx, "client-1", fixedNow)
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("Request %d should be allowed within burst", i+1)
		}
	}

	// The 8th request exceeds limit+burst.
	result, err := counter.CheckAndIncrement(ctx, "client-1", fixedNow)
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if result.Allowed {
		t.Error("Request beyond limit+burst should be rejected")
	}
}

func TestRequestCounterHourLimit(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()

	// Burst does not apply to the hour ceiling.
	counter := NewRequestCounter(store, Limits{
		RequestsPerMinute: 100,
		RequestsPerHour:   3,
		BurstAllowance:    5,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := counter.CheckAndIncrement(ctx, "client-1", fixedNow)
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	result, err := counter.CheckAndIncrement(ctx, "client-1", fixedNow)
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if result.Allowed {
		t.Error("Request beyond hour limit should be rejected")
	}
}

func TestRequestCounterRejectedStillCounts(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()

	counter := NewRequestCounter(store, Limits{
		RequestsPerMinute: 1,
		RequestsPerHour:   100,
	})
	ctx := context.Background()

	if _, err := counter.CheckAndIncrement(ctx, "client-1", fixedNow); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}

	// Rejected requests keep incrementing: retries never reset the clock.
	for i := 0; i < 3; i++ {
		result, err := counter.CheckAndIncrement(ctx, "client-1", fixedNow)
		if err != nil {
			t.Fatalf("CheckAndIncrement failed: %v", err)
		}
		if result.Allowed {
			t.Fatal("Request over limit should be rejected")
		}
		if result.Minute.Count != int64(i+2) {
			t.Errorf("Expected minute count %d, got %d", i+2, result.Minute.Count)
		}
	}
}

func TestRequestCounterWindowIsolation(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()

	counter := NewRequestCounter(store, Limits{
		RequestsPerMinute: 1,
		RequestsPerHour:   100,
	})
	ctx := context.Background()

	if _, err := counter.CheckAndIncrement(ctx, "client-1", fixedNow); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}

	result, err := counter.CheckAndIncrement(ctx, "client-1", fixedNow)
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("Second request in the same minute should be rejected")
	}

	// The next minute window starts a fresh record.
	nextMinute := fixedNow.Add(time.Minute)
	result, err = counter.CheckAndIncrement(ctx, "client-1", nextMinute)
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if !result.Allowed {
		t.Error("First request of the next minute window should be allowed")
	}
	if result.Minute.Count != 1 {
		t.Errorf("Expected fresh minute count 1, got %d", result.Minute.Count)
	}
}

func TestRequestCounterClientIsolation(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()

	counter := NewRequestCounter(store, Limits{
		RequestsPerMinute: 1,
		RequestsPerHour:   100,
	})
	ctx := context.Background()

	if _, err := counter.CheckAndIncrement(ctx, "client-1", fixedNow); err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}

	// A different client has its own counters.
	result, err := counter.CheckAndIncrement(ctx, "client-2", fixedNow)
	if err != nil {
		t.Fatalf("CheckAndIncrement failed: %v", err)
	}
	if !result.Allowed {
		t.Error("First request of a different client should be allowed")
	}
}
