package ratelimit

import (
	"fmt"
	"sort"
)

// ToolCost is the static cost row for one tool. The multiplier is applied
// as effectiveCost = base / multiplier: read-heavy tools that get polled
// frequently carry a multiplier above 1 so each call consumes budget more
// slowly, expensive generative tools carry a multiplier below 1 so each
// call consumes more of the budget.
type ToolCost struct {
	Base       float64 `yaml:"base" json:"base"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// CostTable is the immutable tool-to-cost lookup. It is validated once at
// startup and never mutated afterwards; there is no runtime reconfiguration
// of tool costs.
type CostTable struct {
	tools       map[string]ToolCost
	defaultCost ToolCost
}

// DefaultToolCost is used for tools absent from the table, including
// requests whose tool name could not be determined.
var DefaultToolCost = ToolCost{Base: 1, Multiplier: 1}

// NewCostTable builds and validates a cost table. Every row must carry a
// positive base cost and a positive multiplier.
func NewCostTable(tools map[string]ToolCost) (*CostTable, error) {
	// Deterministic validation order for reproducible error messages
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	copied := make(map[string]ToolCost, len(tools))
	for _, name := range names {
		cost := tools[name]
		if name == "" {
			return nil, fmt.Errorf("cost table contains an empty tool name")
		}
		if cost.Base <= 0 {
			return nil, fmt.Errorf("tool %s: base cost must be positive, got %v", name, cost.Base)
		}
		if cost.Multiplier <= 0 {
			return nil, fmt.Errorf("tool %s: multiplier must be positive, got %v", name, cost.Multiplier)
		}
		copied[name] = cost
	}

	return &CostTable{
		tools:       copied,
		defaultCost: DefaultToolCost,
	}, nil
}

// EffectiveCost returns the budget units one invocation of the tool
// consumes.
func (t *CostTable) EffectiveCost(tool string) float64 {
	cost, ok := t.tools[tool]
	if !ok {
		cost = t.defaultCost
	}
	return cost.Base / cost.Multiplier
}

// Known reports whether the tool has an explicit cost row.
func (t *CostTable) Known(tool string) bool {
	_, ok := t.tools[tool]
	return ok
}
