package ratelimit

import (
	"context"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/kvstore"
	"github.com/maltehedderich/toolgate-go/internal/logger"
	"github.com/maltehedderich/toolgate-go/internal/metrics"
	"github.com/maltehedderich/toolgate-go/internal/rpc"
)

// ViolationThreshold is the violation count at which a client is
// automatically blocked.
const ViolationThreshold = 10

// AutoBlockReason is the reason recorded on automatic blocks.
const AutoBlockReason = "auto: exceeded violation threshold"

// DefaultBlockDuration is the duration of automatic blocks.
const DefaultBlockDuration = 24 * time.Hour

// DefaultMaxBlockDuration is the hard cap on any block's lifetime, measured
// from the original block time. Renewals never push expiry past it.
const DefaultMaxBlockDuration = 30 * 24 * time.Hour

// DefaultStoreTimeout bounds every store call made during one evaluation.
// A timed-out call is resolved by the fail-open/fail-closed policy, never
// retried within the same request.
const DefaultStoreTimeout = 50 * time.Millisecond

// blockedStoreErrorRetry is the retry hint returned when the blocklist
// check itself failed. The store outage, not a block TTL, bounds the wait.
const blockedStoreErrorRetry = time.Minute

// Options configures a Limiter.
type Options struct {
	Limits           Limits
	Costs            *CostTable
	BlockDuration    time.Duration
	MaxBlockDuration time.Duration
	StoreTimeout     time.Duration
}

// Decision is the outcome of one request evaluation. When the request is
// rejected, Code and Message carry the JSON-RPC error and RetryAfter the
// wait hint; when it is allowed, Limit/Remaining/Reset/Window describe the
// most constraining ceiling for the quota headers.
type Decision struct {
	Allowed    bool
	Code       int
	Message    string
	RetryAfter time.Duration

	Limit     int64
	Remaining int64
	Reset     time.Time
	Window    Window
}

// Limiter composes the blocklist, request counter, cost budget and
// violation tracker into a single per-request accept/reject decision.
//
// Failure policy, deliberate and asymmetric: the blocklist check fails
// closed (a store hiccup must never let a blocked client through), the
// counter checks fail open (a transient inability to count must not deny
// legitimate traffic; counting is best-effort by nature).
type Limiter struct {
	store        kvstore.Store
	counter      *RequestCounter
	budget       *CostBudget
	violations   *ViolationTracker
	blocklist    *Blocklist
	blockTTL     time.Duration
	storeTimeout time.Duration
	log          *logger.ComponentLogger
}

// New creates a limiter over the given store.
func New(store kvstore.Store, opts Options) *Limiter {
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = DefaultBlockDuration
	}
	if opts.MaxBlockDuration <= 0 {
		opts.MaxBlockDuration = DefaultMaxBlockDuration
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Costs == nil {
		opts.Costs, _ = NewCostTable(nil)
	}

	return &Limiter{
		store:        store,
		counter:      NewRequestCounter(store, opts.Limits),
		budget:       NewCostBudget(store, opts.Costs, opts.Limits),
		violations:   NewViolationTracker(store),
		blocklist:    NewBlocklist(store, opts.MaxBlockDuration),
		blockTTL:     opts.BlockDuration,
		storeTimeout: opts.StoreTimeout,
		log:          logger.Get().WithComponent("ratelimit"),
	}
}

// Blocklist exposes the blocklist manager for the administrative surface.
func (l *Limiter) Blocklist() *Blocklist {
	return l.blocklist
}

// Violations exposes the violation tracker for the administrative surface.
func (l *Limiter) Violations() *ViolationTracker {
	return l.violations
}

// Ping checks the backing store.
func (l *Limiter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.store.Ping(ctx)
}

// Close closes the backing store.
func (l *Limiter) Close() error {
	return l.store.Close()
}

// Check evaluates one inbound request. The evaluation is fully synchronous
// and makes every decision from fresh store state; there is no in-process
// shadow of any counter.
func (l *Limiter) Check(ctx context.Context, clientID, tool string, now time.Time) *Decision {
	// 1. Blocklist first. Blocked means blocked: counters are not consulted.
	entry, err := l.checkBlocklist(ctx, clientID, now)
	if err != nil {
		l.log.Error("blocklist check failed, failing closed", logger.Fields{
			"client_id": clientID,
			"error":     err.Error(),
		})
		return &Decision{
			Allowed:    false,
			Code:       rpc.CodeIPBlocked,
			Message:    "IP blocked",
			RetryAfter: blockedStoreErrorRetry,
		}
	}
	if entry != nil {
		return l.rejectBlocked(ctx, entry, now)
	}

	// 2. Both budgets, both incremented regardless of outcome.
	counterResult, counterErr := l.checkCounter(ctx, clientID, now)
	costResult, costErr := l.checkBudget(ctx, clientID, tool, now)

	if counterErr != nil {
		l.log.Warn("request counter unavailable, failing open", logger.Fields{
			"client_id": clientID,
			"error":     counterErr.Error(),
		})
	}
	if costErr != nil {
		l.log.Warn("cost budget unavailable, failing open", logger.Fields{
			"client_id": clientID,
			"error":     costErr.Error(),
		})
	}

	counterAllowed := counterErr != nil || counterResult.Allowed
	costAllowed := costErr != nil || costResult.Allowed

	if counterAllowed && costAllowed {
		return l.allow(counterResult, costResult)
	}

	// 3. Rejected: one violation per rejected request, regardless of how
	// many sub-checks failed.
	l.recordViolation(ctx, clientID, now)

	return l.rejectRateLimited(counterResult, costResult, now)
}

// checkBlocklist runs the blocklist read under its own store timeout.
func (l *Limiter) checkBlocklist(ctx context.Context, clientID string, now time.Time) (*BlockEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.blocklist.Check(ctx, clientID, now)
}

func (l *Limiter) checkCounter(ctx context.Context, clientID string, now time.Time) (*CounterResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.counter.CheckAndIncrement(ctx, clientID, now)
}

func (l *Limiter) checkBudget(ctx context.Context, clientID, tool string, now time.Time) (*CostResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.budget.CheckAndIncrement(ctx, clientID, tool, now)
}

// rejectBlocked renews the block (touching a blocked client's protected
// resource resets the remaining duration, bounded by the hard cap) and
// rejects.
func (l *Limiter) rejectBlocked(ctx context.Context, entry *BlockEntry, now time.Time) *Decision {
	expiresAt := entry.ExpiresAt

	rctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	renewed, err := l.blocklist.Block(rctx, entry.ClientID, entry.Reason, entry.Violations, now, l.blockTTL)
	if err != nil {
		// Renewal is best-effort; the existing entry still stands.
		l.log.Warn("block renewal failed", logger.Fields{
			"client_id": entry.ClientID,
			"error":     err.Error(),
		})
	} else if renewed != nil {
		expiresAt = renewed.ExpiresAt
		metrics.RecordBlock("renewal")
	}

	l.log.Info("rejected blocked client", logger.Fields{
		"client_id":  entry.ClientID,
		"reason":     entry.Reason,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})

	return &Decision{
		Allowed:    false,
		Code:       rpc.CodeIPBlocked,
		Message:    "IP blocked",
		RetryAfter: expiresAt.Sub(now),
	}
}

// recordViolation records one violation and escalates to an automatic
// block when the count reaches the threshold. Both writes are best-effort:
// the request is already rejected either way.
func (l *Limiter) recordViolation(ctx context.Context, clientID string, now time.Time) {
	vctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	count, err := l.violations.Record(vctx, clientID)
	if err != nil {
		l.log.Warn("failed to record violation", logger.Fields{
			"client_id": clientID,
			"error":     err.Error(),
		})
		return
	}
	metrics.RecordViolation()

	if count < ViolationThreshold {
		return
	}

	bctx, bcancel := context.WithTimeout(ctx, l.storeTimeout)
	defer bcancel()

	// Concurrent requests can both observe the threshold and both block;
	// Block is idempotent so the loss is one duplicate write.
	if _, err := l.blocklist.Block(bctx, clientID, AutoBlockReason, count, now, l.blockTTL); err != nil {
		l.log.Error("failed to write automatic block", logger.Fields{
			"client_id": clientID,
			"error":     err.Error(),
		})
		return
	}

	metrics.RecordBlock("auto")
	l.log.Warn("client automatically blocked", logger.Fields{
		"client_id":  clientID,
		"violations": count,
	})
}

// allow builds the allowed decision, picking header metadata from the
// ceiling with the lowest remaining fraction across both checks. Either
// result may be nil after a fail-open store error.
func (l *Limiter) allow(counterResult *CounterResult, costResult *CostResult) *Decision {
	d := &Decision{
		Allowed: true,
		Window:  WindowMinute,
	}

	usages := make([]Usage, 0, 4)
	costUsage := make(map[int]bool, 2)
	if counterResult != nil {
		usages = append(usages, counterResult.Minute, counterResult.Hour)
	}
	if costResult != nil {
		costUsage[len(usages)] = true
		costUsage[len(usages)+1] = true
		usages = append(usages, costResult.Minute, costResult.Hour)
	}

	if len(usages) == 0 {
		// Both budgets failed open; no quota state to report.
		d.Limit = 0
		return d
	}

	best := 0
	for i, u := range usages {
		if u.Fraction() < usages[best].Fraction() {
			best = i
		}
	}

	chosen := usages[best]
	d.Window = chosen.Window
	d.Reset = chosen.Reset
	if costUsage[best] {
		d.Limit = chosen.Limit / centiPerUnit
		d.Remaining = chosen.Remaining() / centiPerUnit
	} else {
		d.Limit = chosen.Limit
		d.Remaining = chosen.Remaining()
	}

	metrics.RecordRateLimitUtilization(string(chosen.Window), (1-chosen.Fraction())*100)

	return d
}

// rejectRateLimited builds the rejected decision with the retry hint from
// the exceeded window. When several windows are exceeded the latest
// boundary wins: retrying at an earlier one would still be rejected.
func (l *Limiter) rejectRateLimited(counterResult *CounterResult, costResult *CostResult, now time.Time) *Decision {
	var reset time.Time
	window := WindowMinute

	consider := func(u Usage, exceeded bool) {
		if exceeded && u.Reset.After(reset) {
			reset = u.Reset
			window = u.Window
		}
	}

	if counterResult != nil && !counterResult.Allowed {
		consider(counterResult.Minute, counterResult.Minute.Count > counterResult.Minute.Limit+l.counter.limits.BurstAllowance)
		consider(counterResult.Hour, counterResult.Hour.Count > counterResult.Hour.Limit)
	}
	if costResult != nil && !costResult.Allowed {
		delta := int64(costResult.EffectiveCost * centiPerUnit)
		consider(costResult.Minute, costResult.Minute.Count-delta >= costResult.Minute.Limit)
		consider(costResult.Hour, costResult.Hour.Count-delta >= costResult.Hour.Limit)
	}

	retryAfter := time.Duration(0)
	if reset.After(now) {
		retryAfter = reset.Sub(now)
	}

	return &Decision{
		Allowed:    false,
		Code:       rpc.CodeRateLimited,
		Message:    "Rate limit exceeded",
		RetryAfter: retryAfter,
		Window:     window,
		Reset:      reset,
	}
}
