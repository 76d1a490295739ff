package ratelimit

import (
	"testing"
)

func TestNewCostTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		tools   map[string]ToolCost
		wantErr bool
	}{
		{"nil table", nil, false},
		{"valid rows", map[string]ToolCost{
			"search":   {Base: 1, Multiplier: 2},
			"generate": {Base: 15, Multiplier: 0.5},
		}, false},
		{"zero base", map[string]ToolCost{
			"bad": {Base: 0, Multiplier: 1},
		}, true},
		{"negative base", map[string]ToolCost{
			"bad": {Base: -1, Multiplier: 1},
		}, true},
		{"zero multiplier", map[string]ToolCost{
			"bad": {Base: 1, Multiplier: 0},
		}, true},
		{"empty tool name", map[string]ToolCost{
			"": {Base: 1, Multiplier: 1},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCostTable(tt.tools)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCostTable() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveCost(t *testing.T) {
	table, err := NewCostTable(map[string]ToolCost{
		"search":   {Base: 1, Multiplier: 2},
		"generate": {Base: 15, Multiplier: 0.5},
	})
	if err != nil {
		t.Fatalf("NewCostTable failed: %v", err)
	}

	// Multiplier above 1 makes calls cheaper
	if got := table.EffectiveCost("search"); got != 0.5 {
		t.Errorf("Expected effective cost 0.5 for search, got %v", got)
	}

	// Multiplier below 1 makes calls more expensive
	if got := table.EffectiveCost("generate"); got != 30 {
		t.Errorf("Expected effective cost 30 for generate, got %v", got)
	}

	// Unknown tools fall back to the default cost of 1
	if got := table.EffectiveCost("unknown"); got != 1 {
		t.Errorf("Expected effective cost 1 for unknown tool, got %v", got)
	}
}

func TestKnown(t *testing.T) {
	table, err := NewCostTable(map[string]ToolCost{
		"search": {Base: 1, Multiplier: 1},
	})
	if err != nil {
		t.Fatalf("NewCostTable failed: %v", err)
	}

	if !table.Known("search") {
		t.Error("Expected search to be known")
	}
	if table.Known("other") {
		t.Error("Expected other to be unknown")
	}
}
