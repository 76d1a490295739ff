package kvstore

import (
	"context"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/circuitbreaker"
	"github.com/maltehedderich/toolgate-go/internal/metrics"
)

// BreakerStore wraps a Store with a circuit breaker so a down backend trips
// fast instead of eating the per-request latency budget on every call. A
// tripped breaker surfaces as a store error; the limiter's fail-open /
// fail-closed policy decides what that means for the request.
type BreakerStore struct {
	inner Store
	cb    *circuitbreaker.CircuitBreaker
}

// NewBreakerStore wraps the given store with a circuit breaker.
func NewBreakerStore(inner Store, cfg *circuitbreaker.Config) *BreakerStore {
	return &BreakerStore{
		inner: inner,
		cb:    circuitbreaker.New("kvstore", cfg),
	}
}

// Get retrieves the value for the given key.
func (bs *BreakerStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool

	err := bs.cb.Execute(func() error {
		var err error
		value, found, err = bs.inner.Get(ctx, key)
		return err
	})
	if err != nil {
		metrics.RecordStoreError("get")
		return "", false, err
	}

	return value, found, nil
}

// Set stores a value under the key with a TTL.
func (bs *BreakerStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	err := bs.cb.Execute(func() error {
		return bs.inner.Set(ctx, key, value, ttl)
	})
	if err != nil {
		metrics.RecordStoreError("set")
	}
	return err
}

// IncrBy atomically adds delta to the integer stored at key.
func (bs *BreakerStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration, refreshTTL bool) (int64, error) {
	var newValue int64

	err := bs.cb.Execute(func() error {
		var err error
		newValue, err = bs.inner.IncrBy(ctx, key, delta, ttl, refreshTTL)
		return err
	})
	if err != nil {
		metrics.RecordStoreError("incr")
		return 0, err
	}

	return newValue, nil
}

// Delete removes the key.
func (bs *BreakerStore) Delete(ctx context.Context, key string) error {
	err := bs.cb.Execute(func() error {
		return bs.inner.Delete(ctx, key)
	})
	if err != nil {
		metrics.RecordStoreError("delete")
	}
	return err
}

// Ping checks availability of the wrapped store without going through the
// breaker, so health checks keep observing the real backend while the
// breaker is open.
func (bs *BreakerStore) Ping(ctx context.Context) error {
	return bs.inner.Ping(ctx)
}

// Close closes the wrapped store.
func (bs *BreakerStore) Close() error {
	return bs.inner.Close()
}
