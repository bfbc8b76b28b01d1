package loader

import (
	"encoding/json"
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

const syntheticModel = "<synthetic>"

type rawUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

func (u rawUsage) tokens() models.TokenUsage {
	return models.TokenUsage{
		InputTokens:              u.InputTokens,
		OutputTokens:             u.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
	}
}

// rawRecord covers both the flat export form and the assistant's native
// transcript form. Field names never overlap between the two.
type rawRecord struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`

	// flat form
	Model       string    `json:"model"`
	Usage       *rawUsage `json:"usage"`
	FlatCost    *float64  `json:"cost_usd"`
	FlatSession string    `json:"session_id"`
	ProjectPath string    `json:"project_path"`
	FlatRequest string    `json:"request_id"`
	FlatMessage string    `json:"message_id"`

	// transcript form
	SessionID string   `json:"sessionId"`
	CWD       string   `json:"cwd"`
	RequestID string   `json:"requestId"`
	CostUSD   *float64 `json:"costUSD"`
	Message   *struct {
		ID    string    `json:"id"`
		Model string    `json:"model"`
		Usage *rawUsage `json:"usage"`
	} `json:"message"`
}

// decodeLine turns one JSONL line into an event. ok is false for lines that
// parse but carry no usage (user turns, summaries, synthetic replies).
func decodeLine(line []byte) (ev models.UsageEvent, ok bool, err error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return ev, false, err
	}

	if raw.Message != nil {
		if raw.Type != "" && raw.Type != "assistant" {
			return ev, false, nil
		}
		if raw.Message.Usage == nil || raw.Message.Model == syntheticModel {
			return ev, false, nil
		}
		ev = models.UsageEvent{
			Model:       raw.Message.Model,
			Usage:       raw.Message.Usage.tokens(),
			CostUSD:     raw.CostUSD,
			SessionID:   raw.SessionID,
			ProjectPath: raw.CWD,
			RequestID:   raw.RequestID,
			MessageID:   raw.Message.ID,
		}
	} else {
		if raw.Usage == nil || raw.Model == syntheticModel {
			return ev, false, nil
		}
		ev = models.UsageEvent{
			Model:       raw.Model,
			Usage:       raw.Usage.tokens(),
			CostUSD:     raw.FlatCost,
			SessionID:   raw.FlatSession,
			ProjectPath: raw.ProjectPath,
			RequestID:   raw.FlatRequest,
			MessageID:   raw.FlatMessage,
		}
	}

	// An unparseable timestamp leaves the zero time, which validation rejects.
	if ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp); err == nil {
		ev.Timestamp = ts.UTC()
	}
	return ev, true, nil
}
