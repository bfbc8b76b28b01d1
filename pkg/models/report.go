package models

import (
	"encoding/json"
	"time"
)

// ModelBreakdown is the share of a bucket attributable to one model.
type ModelBreakdown struct {
	Model      string     `json:"model"`
	Usage      TokenUsage `json:"usage"`
	Cost       float64    `json:"cost"`
	EventCount int        `json:"event_count"`
}

// Bucket is one aggregated row of a grouping view (day, week, month, session,
// project).
type Bucket struct {
	Key         string           `json:"key"`
	Usage       TokenUsage       `json:"usage"`
	TotalTokens int64            `json:"total_tokens"`
	Cost        float64          `json:"cost"`
	Models      []string         `json:"models"`
	EventCount  int              `json:"event_count"`
	Breakdown   []ModelBreakdown `json:"breakdown,omitempty"`
}

// SessionBucket is a Bucket keyed by session id with the observed time span.
type SessionBucket struct {
	Bucket
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	ProjectPath string    `json:"project_path,omitempty"`
}

// Duration returns the time between the first and last event of the session.
func (s SessionBucket) Duration() time.Duration {
	return s.LastSeen.Sub(s.FirstSeen)
}

// BillingBlock is a maximal run of events separated from its neighbours by
// an inactivity gap. GapBefore is nil for the first block and GapAfter is nil
// for the last one.
type BillingBlock struct {
	Start         time.Time        `json:"start"`
	End           time.Time        `json:"end"`
	Usage         TokenUsage       `json:"usage"`
	TotalTokens   int64            `json:"total_tokens"`
	Cost          float64          `json:"cost"`
	Models        []string         `json:"models"`
	EventCount    int              `json:"event_count"`
	Breakdown     []ModelBreakdown `json:"breakdown,omitempty"`
	IsActive      bool             `json:"is_active"`
	GapBefore     *time.Duration   `json:"-"`
	GapAfter      *time.Duration   `json:"-"`
	LimitExceeded bool             `json:"limit_exceeded,omitempty"`
}

// Duration returns the span from the first to the last event in the block.
func (b BillingBlock) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// MarshalJSON renders gaps as whole seconds, null when absent.
func (b BillingBlock) MarshalJSON() ([]byte, error) {
	type plain BillingBlock
	return json.Marshal(struct {
		plain
		GapBeforeSeconds *float64 `json:"gap_before_seconds"`
		GapAfterSeconds  *float64 `json:"gap_after_seconds"`
	}{
		plain:            plain(b),
		GapBeforeSeconds: seconds(b.GapBefore),
		GapAfterSeconds:  seconds(b.GapAfter),
	})
}

func seconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	s := d.Seconds()
	return &s
}

// BurnRate describes how fast a block consumed tokens and money.
type BurnRate struct {
	TokensPerMinute float64 `json:"tokens_per_minute"`
	CostPerHour     float64 `json:"cost_per_hour"`
}

// Projection estimates a block's totals if activity continues until expiry.
type Projection struct {
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost"`
	RemainingMinutes float64 `json:"remaining_minutes"`
}
