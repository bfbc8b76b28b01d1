package blocks

import (
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

// ApplyTokenLimit returns a copy of blocks with LimitExceeded set where the
// block's total tokens exceed limit. A limit of zero or less clears the flag.
// Segmentation is never affected.
func ApplyTokenLimit(blocks []models.BillingBlock, limit int64) []models.BillingBlock {
	out := make([]models.BillingBlock, len(blocks))
	for i, b := range blocks {
		b.LimitExceeded = limit > 0 && b.TotalTokens > limit
		out[i] = b
	}
	return out
}

// MaxTokens returns the largest token total among inactive blocks, for use
// as an implicit token limit.
func MaxTokens(blocks []models.BillingBlock) int64 {
	var max int64
	for _, b := range blocks {
		if !b.IsActive && b.TotalTokens > max {
			max = b.TotalTokens
		}
	}
	return max
}

// BurnRate reports token and cost velocity over the block's span. A block
// whose events share one timestamp has no measurable rate.
func BurnRate(b models.BillingBlock) (models.BurnRate, bool) {
	d := b.Duration()
	if d <= 0 {
		return models.BurnRate{}, false
	}
	return models.BurnRate{
		TokensPerMinute: float64(b.TotalTokens) / d.Minutes(),
		CostPerHour:     b.Cost / d.Hours(),
	}, true
}

// Project extrapolates an active block's totals at its current burn rate to
// the moment it would expire (End + threshold).
func Project(b models.BillingBlock, now time.Time, threshold time.Duration) (models.Projection, bool) {
	if !b.IsActive {
		return models.Projection{}, false
	}
	rate, ok := BurnRate(b)
	if !ok {
		return models.Projection{}, false
	}
	remaining := b.End.Add(threshold).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return models.Projection{
		TotalTokens:      b.TotalTokens + int64(rate.TokensPerMinute*remaining.Minutes()),
		TotalCost:        b.Cost + rate.CostPerHour*remaining.Hours(),
		RemainingMinutes: remaining.Minutes(),
	}, true
}
