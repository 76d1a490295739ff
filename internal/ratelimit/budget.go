package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/kvstore"
)

// Cost records are stored in centiunits so the store's integer increment
// carries fractional effective costs exactly.
const centiPerUnit = 100

// CostResult is the outcome of one cost-budget evaluation. Counts and
// limits are in centiunits; the limiter converts back to units for headers.
type CostResult struct {
	Minute        Usage
	Hour          Usage
	Allowed       bool
	EffectiveCost float64
}

// CostBudget tracks accumulated cost units per client across the minute and
// hour windows, weighted by the cost table. Like the request counter it
// increments unconditionally; a rejected request still spends its cost.
type CostBudget struct {
	store  kvstore.Store
	table  *CostTable
	limits Limits
}

// NewCostBudget creates a cost budget tracker over the given store.
func NewCostBudget(store kvstore.Store, table *CostTable, limits Limits) *CostBudget {
	return &CostBudget{
		store:  store,
		table:  table,
		limits: limits,
	}
}

// CheckAndIncrement charges the tool's effective cost to both window budgets
// and evaluates them against the ceilings. A call is allowed when the budget
// was not already exhausted before it: the spend that pushes a window past
// its ceiling goes through, the next one is rejected. Overshoot is bounded
// by a single effective cost, which is acceptable for deterrence.
func (b *CostBudget) CheckAndIncrement(ctx context.Context, clientID, tool string, now time.Time) (*CostResult, error) {
	effective := b.table.EffectiveCost(tool)
	delta := int64(math.Round(effective * centiPerUnit))

	minuteLimit := int64(math.Round(b.limits.CostPerMinute * centiPerUnit))
	hourLimit := int64(math.Round(b.limits.CostPerHour * centiPerUnit))

	minuteStart := WindowMinute.Start(now)
	minuteCost, err := b.store.IncrBy(ctx, costKey(clientID, WindowMinute, minuteStart), delta,
		WindowMinute.Duration()+windowGrace, false)
	if err != nil {
		return nil, fmt.Errorf("failed to increment minute cost: %w", err)
	}

	hourStart := WindowHour.Start(now)
	hourCost, err := b.store.IncrBy(ctx, costKey(clientID, WindowHour, hourStart), delta,
		WindowHour.Duration()+windowGrace, false)
	if err != nil {
		return nil, fmt.Errorf("failed to increment hour cost: %w", err)
	}

	result := &CostResult{
		Minute: Usage{
			Window: WindowMinute,
			Count:  minuteCost,
			Limit:  minuteLimit,
			Reset:  WindowMinute.Boundary(now),
		},
		Hour: Usage{
			Window: WindowHour,
			Count:  hourCost,
			Limit:  hourLimit,
			Reset:  WindowHour.Boundary(now),
		},
		EffectiveCost: effective,
	}

	result.Allowed = minuteCost-delta < minuteLimit && hourCost-delta < hourLimit

	return result, nil
}
