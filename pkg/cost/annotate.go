package cost

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pario-ai/ccmeter/pkg/logger"
	"github.com/pario-ai/ccmeter/pkg/models"
	"github.com/pario-ai/ccmeter/pkg/pricing"
)

// Policy decides what happens to an event whose cost cannot be resolved.
type Policy string

const (
	// PolicySkip drops the event and counts it.
	PolicySkip Policy = "skip"
	// PolicyAbort stops at the first failure.
	PolicyAbort Policy = "abort"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySkip, PolicyAbort:
		return p, nil
	}
	return "", fmt.Errorf("unknown error policy %q (want skip or abort)", s)
}

// Quality records how many events made it through cost resolution.
type Quality struct {
	Total    int            `json:"total"`
	Costed   int            `json:"costed"`
	Skipped  int            `json:"skipped"`
	ByReason map[string]int `json:"by_reason,omitempty"`
}

// ReasonMalformed counts input lines that could not be decoded at all.
const ReasonMalformed = "malformed_line"

// Exclude records n events that were dropped before cost resolution.
func (q *Quality) Exclude(reason string, n int) {
	if n <= 0 {
		return
	}
	if q.ByReason == nil {
		q.ByReason = make(map[string]int)
	}
	q.Total += n
	q.Skipped += n
	q.ByReason[reason] += n
}

// Reasons returns the skip reasons in a stable order.
func (q Quality) Reasons() []string {
	out := make([]string, 0, len(q.ByReason))
	for k := range q.ByReason {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Annotate resolves the cost of every event exactly once. events is not
// modified. Under PolicyAbort the first error is returned together with the
// counts so far.
func Annotate(ctx context.Context, events []models.UsageEvent, mode models.CostMode, cat pricing.Catalog, policy Policy) ([]models.CostedEvent, Quality, error) {
	q := Quality{Total: len(events)}
	out := make([]models.CostedEvent, 0, len(events))

	for _, ev := range events {
		c, err := Resolve(ev, mode, cat)
		if err != nil {
			if policy == PolicyAbort {
				return nil, q, fmt.Errorf("annotate costs: %w", err)
			}
			if q.ByReason == nil {
				q.ByReason = make(map[string]int)
			}
			q.Skipped++
			q.ByReason[Kind(err)]++
			logger.Debug(ctx, "skipping event", "request_id", ev.RequestID, "message_id", ev.MessageID, "error", err)
			continue
		}
		out = append(out, models.CostedEvent{UsageEvent: ev, Cost: c})
		q.Costed++
	}

	if q.Skipped > 0 {
		logger.Warn(ctx, "events skipped during cost resolution", "skipped", q.Skipped, "total", q.Total)
	}
	return out, q, nil
}
