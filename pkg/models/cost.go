package models

import (
	"fmt"
	"strings"
)

// CostMode selects how a cost is derived for a usage event.
type CostMode string

const (
	// CostModeDisplay trusts the precomputed cost and fails when it is absent.
	CostModeDisplay CostMode = "display"
	// CostModeCalculate always derives the cost from token counts and prices.
	CostModeCalculate CostMode = "calculate"
	// CostModeAuto uses the precomputed cost when present, else calculates.
	CostModeAuto CostMode = "auto"
)

// ParseCostMode parses a cost mode name, case-insensitively.
func ParseCostMode(s string) (CostMode, error) {
	switch m := CostMode(strings.ToLower(strings.TrimSpace(s))); m {
	case CostModeDisplay, CostModeCalculate, CostModeAuto:
		return m, nil
	}
	return "", fmt.Errorf("unknown cost mode %q (want display, calculate or auto)", s)
}

func (m CostMode) String() string { return string(m) }

// ModelPricing holds per-token prices for a model. Cache prices are nil when
// the catalog has no distinct price for that token kind.
type ModelPricing struct {
	Model                     string   `json:"model" yaml:"model"`
	InputCostPerToken         float64  `json:"input_cost_per_token" yaml:"input_cost_per_token"`
	OutputCostPerToken        float64  `json:"output_cost_per_token" yaml:"output_cost_per_token"`
	CacheCreationCostPerToken *float64 `json:"cache_creation_cost_per_token,omitempty" yaml:"cache_creation_cost_per_token,omitempty"`
	CacheReadCostPerToken     *float64 `json:"cache_read_cost_per_token,omitempty" yaml:"cache_read_cost_per_token,omitempty"`
}
