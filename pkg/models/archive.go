package models

import "time"

// ImportBatch records one archive import.
type ImportBatch struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Inserted  int64     `json:"inserted"`
	Ignored   int64     `json:"ignored"`
}

// ArchiveStats summarises the event archive.
type ArchiveStats struct {
	Events     int64     `json:"events"`
	Sessions   int64     `json:"sessions"`
	Imports    int64     `json:"imports"`
	FirstEvent time.Time `json:"first_event,omitempty"`
	LastEvent  time.Time `json:"last_event,omitempty"`
}

// ModelSummary is archived usage grouped by model.
type ModelSummary struct {
	Model      string     `json:"model"`
	EventCount int64      `json:"event_count"`
	Usage      TokenUsage `json:"usage"`
}
