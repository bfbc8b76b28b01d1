// Package cost attaches a monetary cost to usage events under a cost mode.
package cost

import (
	"fmt"
	"math"

	"github.com/pario-ai/ccmeter/pkg/models"
	"github.com/pario-ai/ccmeter/pkg/pricing"
)

// Validate reports ErrInvalidEvent for events the engine cannot account for.
func Validate(ev models.UsageEvent) error {
	reason := ""
	switch {
	case ev.Timestamp.IsZero():
		reason = "missing timestamp"
	case ev.Model == "":
		reason = "missing model"
	case ev.RequestID == "":
		reason = "missing request id"
	case ev.MessageID == "":
		reason = "missing message id"
	case ev.Usage.InputTokens < 0, ev.Usage.OutputTokens < 0,
		ev.Usage.CacheCreationInputTokens < 0, ev.Usage.CacheReadInputTokens < 0:
		reason = "negative token count"
	case ev.CostUSD != nil && (*ev.CostUSD < 0 || math.IsNaN(*ev.CostUSD) || math.IsInf(*ev.CostUSD, 0)):
		reason = fmt.Sprintf("cost out of range: %v", *ev.CostUSD)
	default:
		return nil
	}
	return newEventError(ev, ErrInvalidEvent, reason)
}

// Resolve returns the cost of ev under mode. It is a pure function of its
// arguments; the catalog must not change while a pass is running.
func Resolve(ev models.UsageEvent, mode models.CostMode, cat pricing.Catalog) (float64, error) {
	if err := Validate(ev); err != nil {
		return 0, err
	}

	switch mode {
	case models.CostModeDisplay:
		if ev.CostUSD == nil {
			return 0, newEventError(ev, ErrMissingPrecomputedCost, "")
		}
		return *ev.CostUSD, nil
	case models.CostModeAuto:
		if ev.CostUSD != nil {
			return *ev.CostUSD, nil
		}
		return calculate(ev, cat)
	case models.CostModeCalculate:
		return calculate(ev, cat)
	default:
		return 0, fmt.Errorf("resolve cost: unknown mode %q", mode)
	}
}

func calculate(ev models.UsageEvent, cat pricing.Catalog) (float64, error) {
	if cat == nil {
		return 0, newEventError(ev, ErrUnknownModel, "no pricing catalog")
	}
	p, ok := cat.Lookup(ev.Model)
	if !ok {
		return 0, newEventError(ev, ErrUnknownModel, "")
	}
	return Calculate(ev.Usage, p), nil
}

// Calculate prices usage with p. Cache tokens are priced only when p carries
// a distinct price for them.
func Calculate(u models.TokenUsage, p models.ModelPricing) float64 {
	c := float64(u.InputTokens)*p.InputCostPerToken + float64(u.OutputTokens)*p.OutputCostPerToken
	if p.CacheCreationCostPerToken != nil {
		c += float64(u.CacheCreationInputTokens) * *p.CacheCreationCostPerToken
	}
	if p.CacheReadCostPerToken != nil {
		c += float64(u.CacheReadInputTokens) * *p.CacheReadCostPerToken
	}
	return c
}

func newEventError(ev models.UsageEvent, err error, reason string) *EventError {
	return &EventError{
		RequestID: ev.RequestID,
		MessageID: ev.MessageID,
		Model:     ev.Model,
		Timestamp: ev.Timestamp,
		Reason:    reason,
		Err:       err,
	}
}
