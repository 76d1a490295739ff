package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/kvstore"
)

// BlockEntry is a block record, stored JSON-encoded under blocklist:{client}.
// An existing, unexpired entry is authoritative: it short-circuits all
// counter checks.
type BlockEntry struct {
	ClientID   string    `json:"client_id"`
	Reason     string    `json:"reason"`
	Violations int64     `json:"violations"`
	BlockedAt  time.Time `json:"blocked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Blocklist manages block entries. Block is idempotent and doubles as the
// renewal path: re-blocking an already-blocked client extends the entry,
// with the expiry capped at BlockedAt + maxDuration. The cap is enforced
// locally on every write, so concurrent renewals cannot stretch a block
// past the hard ceiling no matter how they interleave.
type Blocklist struct {
	store       kvstore.Store
	maxDuration time.Duration
}

// NewBlocklist creates a blocklist manager over the given store.
func NewBlocklist(store kvstore.Store, maxDuration time.Duration) *Blocklist {
	return &Blocklist{
		store:       store,
		maxDuration: maxDuration,
	}
}

// Check returns the client's block entry, or nil if the client is not
// blocked. An entry past its expiry is treated as absent even if the store
// has not reclaimed it yet.
func (b *Blocklist) Check(ctx context.Context, clientID string, now time.Time) (*BlockEntry, error) {
	value, found, err := b.store.Get(ctx, blockKey(clientID))
	if err != nil {
		return nil, fmt.Errorf("failed to read block entry: %w", err)
	}
	if !found {
		return nil, nil
	}

	var entry BlockEntry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block entry: %w", err)
	}

	if !entry.ExpiresAt.After(now) {
		return nil, nil
	}
	return &entry, nil
}

// Block writes a block entry expiring at now + duration, capped at 30 days
// (maxDuration) from the original block time. Calling it for an
// already-blocked client overwrites the entry, preserving the original
// BlockedAt and the highest violation count seen, so renewals extend the
// block without restarting the cap.
func (b *Blocklist) Block(ctx context.Context, clientID, reason string, violations int64, now time.Time, duration time.Duration) (*BlockEntry, error) {
	if duration > b.maxDuration {
		duration = b.maxDuration
	}

	blockedAt := now
	if existing, err := b.Check(ctx, clientID, now); err == nil && existing != nil {
		blockedAt = existing.BlockedAt
		if existing.Violations > violations {
			violations = existing.Violations
		}
	}

	expiresAt := now.Add(duration)
	if cap := blockedAt.Add(b.maxDuration); expiresAt.After(cap) {
		expiresAt = cap
	}
	if !expiresAt.After(now) {
		// The hard cap has already passed; nothing left to write.
		return nil, nil
	}

	entry := BlockEntry{
		ClientID:   clientID,
		Reason:     reason,
		Violations: violations,
		BlockedAt:  blockedAt,
		ExpiresAt:  expiresAt,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block entry: %w", err)
	}

	if err := b.store.Set(ctx, blockKey(clientID), string(data), expiresAt.Sub(now)); err != nil {
		return nil, fmt.Errorf("failed to write block entry: %w", err)
	}

	return &entry, nil
}

// Unblock removes the client's block entry. Administrative-only; nothing on
// the public request path reaches this.
func (b *Blocklist) Unblock(ctx context.Context, clientID string) error {
	if err := b.store.Delete(ctx, blockKey(clientID)); err != nil {
		return fmt.Errorf("failed to delete block entry: %w", err)
	}
	return nil
}
