package aggregate

import (
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

// PreviousKeyFunc maps a bucket key to the key of the preceding period.
type PreviousKeyFunc func(key string) (string, bool)

// PreviousDay returns the day before a daily key.
func PreviousDay(key string) (string, bool) {
	t, err := time.Parse(dayLayout, key)
	if err != nil {
		return "", false
	}
	return t.AddDate(0, 0, -1).Format(dayLayout), true
}

// PreviousMonth returns the month before a monthly key.
func PreviousMonth(key string) (string, bool) {
	t, err := time.Parse(monthLayout, key)
	if err != nil {
		return "", false
	}
	return t.AddDate(0, -1, 0).Format(monthLayout), true
}

// Compare pairs every row with the previous calendar period found in
// history. history is usually the unfiltered view so the first row of a
// date range still has a predecessor. Results follow the order of rows.
func Compare(rows, history []models.Bucket, previous PreviousKeyFunc) []models.PeriodChange {
	index := make(map[string]models.Bucket, len(history))
	for _, b := range history {
		index[b.Key] = b
	}

	out := make([]models.PeriodChange, 0, len(rows))
	for _, r := range rows {
		c := models.PeriodChange{Key: r.Key, TokenDelta: r.TotalTokens, CostDelta: r.Cost}
		prevKey, ok := previous(r.Key)
		if ok {
			c.PreviousKey = prevKey
		}
		if prev, found := index[prevKey]; ok && found {
			c.HasPrevious = true
			c.TokenDelta = r.TotalTokens - prev.TotalTokens
			c.CostDelta = r.Cost - prev.Cost
			c.TokenPercent = percentChange(float64(r.TotalTokens), float64(prev.TotalTokens))
			c.CostPercent = percentChange(r.Cost, prev.Cost)
		}
		out = append(out, c)
	}
	return out
}

func percentChange(cur, prev float64) *float64 {
	if prev == 0 {
		return nil
	}
	p := (cur - prev) / prev * 100
	return &p
}
