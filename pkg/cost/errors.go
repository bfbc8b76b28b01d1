package cost

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingPrecomputedCost is returned in display mode when the event
	// carries no recorded cost.
	ErrMissingPrecomputedCost = errors.New("missing precomputed cost")
	// ErrUnknownModel is returned when the catalog has no price for the model.
	ErrUnknownModel = errors.New("unknown model")
	// ErrInvalidEvent is returned for malformed or out-of-range events.
	ErrInvalidEvent = errors.New("invalid event")
)

// EventError ties a cost-resolution failure to the offending record.
type EventError struct {
	RequestID string
	MessageID string
	Model     string
	Timestamp time.Time
	Reason    string
	Err       error
}

func (e *EventError) Error() string {
	msg := fmt.Sprintf("event request_id=%q message_id=%q model=%q: %v", e.RequestID, e.MessageID, e.Model, e.Err)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// Kind returns a short label for the wrapped sentinel, used for counting.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrMissingPrecomputedCost):
		return "missing_precomputed_cost"
	case errors.Is(err, ErrUnknownModel):
		return "unknown_model"
	case errors.Is(err, ErrInvalidEvent):
		return "invalid_event"
	default:
		return "other"
	}
}
