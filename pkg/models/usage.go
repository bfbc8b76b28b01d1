package models

import "time"

// TokenUsage holds the four token counts reported for one model invocation.
// Absent cache counts are zero.
type TokenUsage struct {
	InputTokens              int64 `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens" yaml:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens" yaml:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens" yaml:"cache_read_input_tokens"`
}

// Total returns the sum of all four token kinds.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// Add returns the element-wise sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:              u.InputTokens + o.InputTokens,
		OutputTokens:             u.OutputTokens + o.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + o.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + o.CacheReadInputTokens,
	}
}

// UsageEvent is one recorded model invocation as loaded from a usage log.
// SessionID and ProjectPath are empty when the record carried none; CostUSD
// is nil when no precomputed cost was recorded.
type UsageEvent struct {
	Timestamp   time.Time  `json:"timestamp"`
	Model       string     `json:"model"`
	Usage       TokenUsage `json:"usage"`
	CostUSD     *float64   `json:"cost_usd,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	ProjectPath string     `json:"project_path,omitempty"`
	RequestID   string     `json:"request_id"`
	MessageID   string     `json:"message_id"`
}

// HasSession reports whether the event carries a session identifier.
func (e UsageEvent) HasSession() bool {
	return e.SessionID != ""
}

// DedupKey identifies an event across overlapping log files.
func (e UsageEvent) DedupKey() string {
	return e.MessageID + ":" + e.RequestID
}

// CostedEvent is a UsageEvent with its resolved cost attached.
type CostedEvent struct {
	UsageEvent
	Cost float64 `json:"cost"`
}

// Float returns a pointer to v, for populating optional cost fields.
func Float(v float64) *float64 {
	return &v
}
