package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map.
// It mirrors the string-value semantics of the Redis backend so the
// rate-limit packages behave identically against either. Suitable for
// single-instance deployments and testing.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// memoryEntry stores a value with its expiration time
type memoryEntry struct {
	value  string
	expiry time.Time
}

// NewMemoryStore creates a new in-memory store.
// It starts a background goroutine to clean up expired entries.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		stopCh:  make(chan struct{}),
	}

	ms.wg.Add(1)
	go ms.cleanupLoop()

	return ms
}

// Get retrieves the value for the given key.
func (ms *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	entry, exists := ms.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return "", false, nil
	}

	return entry.value, true, nil
}

// Set stores a value under the key with a TTL.
func (ms *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.entries[key] = &memoryEntry{
		value:  value,
		expiry: time.Now().Add(ttl),
	}

	return nil
}

// IncrBy atomically adds delta to the integer stored at key.
func (ms *MemoryStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration, refreshTTL bool) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	entry, exists := ms.entries[key]
	if !exists || now.After(entry.expiry) {
		ms.entries[key] = &memoryEntry{
			value:  strconv.FormatInt(delta, 10),
			expiry: now.Add(ttl),
		}
		return delta, nil
	}

	current, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %s is not an integer: %w", key, err)
	}

	current += delta
	entry.value = strconv.FormatInt(current, 10)
	if refreshTTL {
		entry.expiry = now.Add(ttl)
	}

	return current, nil
}

// Delete removes the key.
func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.entries, key)
	return nil
}

// Ping checks if the store is available.
// For in-memory storage, this always returns nil.
func (ms *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cleanup goroutine and releases resources.
func (ms *MemoryStore) Close() error {
	close(ms.stopCh)
	ms.wg.Wait()
	return nil
}

// cleanupLoop runs periodically to remove expired entries.
func (ms *MemoryStore) cleanupLoop() {
	defer ms.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.cleanup()
		case <-ms.stopCh:
			return
		}
	}
}

// cleanup removes expired entries from the map.
func (ms *MemoryStore) cleanup() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for key, entry := range ms.entries {
		if now.After(entry.expiry) {
			delete(ms.entries, key)
		}
	}
}
