package kvstore

import (
	"context"
	"time"
)

// Store is the minimal adapter over the external key-value store backing all
// rate-limit state. Implementations offer per-key TTLs and an atomic single-key
// increment, and nothing more: no transactions, no cross-key atomicity, no
// guaranteed read-after-write consistency across replicas. Higher layers must
// tolerate interleaving between operations on different keys.
type Store interface {
	// Get retrieves the value for the given key.
	// Returns the value and true if found, or "" and false if absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value under the key with a TTL. Expiry is the only
	// garbage collection mechanism for records written this way.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// IncrBy atomically adds delta to the integer value stored at key and
	// returns the new value. An absent key is created at delta with the TTL
	// applied. When refreshTTL is true the TTL is reset on every call
	// (sliding-window semantics); otherwise an existing key keeps its
	// original expiry.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration, refreshTTL bool) (int64, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping checks if the storage backend is available.
	Ping(ctx context.Context) error

	// Close cleans up any resources used by the storage backend.
	Close() error
}
