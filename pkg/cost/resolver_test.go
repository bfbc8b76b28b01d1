package cost

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/ccmeter/pkg/models"
	"github.com/pario-ai/ccmeter/pkg/pricing"
)

var testCatalog = pricing.NewSnapshot(models.ModelPricing{
	Model:              "m",
	InputCostPerToken:  0.000003,
	OutputCostPerToken: 0.000015,
})

func event(in, out int64, cost *float64) models.UsageEvent {
	return models.UsageEvent{
		Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Model:     "m",
		Usage:     models.TokenUsage{InputTokens: in, OutputTokens: out},
		CostUSD:   cost,
		RequestID: "req_1",
		MessageID: "msg_1",
	}
}

func TestResolveDisplayMissingCost(t *testing.T) {
	_, err := Resolve(event(10, 10, nil), models.CostModeDisplay, testCatalog)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingPrecomputedCost)

	var evErr *EventError
	require.True(t, errors.As(err, &evErr))
	assert.Equal(t, "req_1", evErr.RequestID)
	assert.Equal(t, "msg_1", evErr.MessageID)
}

func TestResolveDisplayUsesRecordedCost(t *testing.T) {
	c, err := Resolve(event(1000, 500, models.Float(1.25)), models.CostModeDisplay, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.25, c)
}

func TestResolveCalculate(t *testing.T) {
	c, err := Resolve(event(1000, 500, models.Float(99)), models.CostModeCalculate, testCatalog)
	require.NoError(t, err)
	assert.InDelta(t, 0.0105, c, 1e-12)
}

func TestResolveCalculateUnknownModel(t *testing.T) {
	ev := event(1, 1, nil)
	ev.Model = "nope"
	_, err := Resolve(ev, models.CostModeCalculate, testCatalog)
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = Resolve(ev, models.CostModeAuto, testCatalog)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestResolveAutoPrefersRecordedCost(t *testing.T) {
	c, err := Resolve(event(1000, 500, models.Float(0.02)), models.CostModeAuto, testCatalog)
	require.NoError(t, err)
	assert.Equal(t, 0.02, c)

	c, err = Resolve(event(1000, 500, nil), models.CostModeAuto, testCatalog)
	require.NoError(t, err)
	assert.InDelta(t, 0.0105, c, 1e-12)
}

func TestResolveCachePricing(t *testing.T) {
	ev := event(1000, 500, nil)
	ev.Usage.CacheCreationInputTokens = 2000
	ev.Usage.CacheReadInputTokens = 10000

	plain, err := Resolve(ev, models.CostModeCalculate, testCatalog)
	require.NoError(t, err)
	assert.InDelta(t, 0.0105, plain, 1e-12, "cache tokens are free without cache prices")

	cached := pricing.NewSnapshot(models.ModelPricing{
		Model:                     "m",
		InputCostPerToken:         0.000003,
		OutputCostPerToken:        0.000015,
		CacheCreationCostPerToken: models.Float(0.00000375),
		CacheReadCostPerToken:     models.Float(0.0000003),
	})
	c, err := Resolve(ev, models.CostModeCalculate, cached)
	require.NoError(t, err)
	assert.InDelta(t, 0.0105+0.0075+0.003, c, 1e-12)
}

func TestResolveDeterministic(t *testing.T) {
	for _, mode := range []models.CostMode{models.CostModeDisplay, models.CostModeCalculate, models.CostModeAuto} {
		for _, ev := range []models.UsageEvent{event(1000, 500, nil), event(7, 3, models.Float(0.5))} {
			c1, err1 := Resolve(ev, mode, testCatalog)
			c2, err2 := Resolve(ev, mode, testCatalog)
			assert.Equal(t, c1, c2)
			assert.Equal(t, err1 == nil, err2 == nil)
			if err1 != nil {
				assert.Equal(t, err1.Error(), err2.Error())
			}
		}
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*models.UsageEvent){
		"zero timestamp": func(e *models.UsageEvent) { e.Timestamp = time.Time{} },
		"no model":       func(e *models.UsageEvent) { e.Model = "" },
		"no request id":  func(e *models.UsageEvent) { e.RequestID = "" },
		"no message id":  func(e *models.UsageEvent) { e.MessageID = "" },
		"negative input": func(e *models.UsageEvent) { e.Usage.InputTokens = -1 },
		"negative cache": func(e *models.UsageEvent) { e.Usage.CacheReadInputTokens = -5 },
		"negative cost":  func(e *models.UsageEvent) { e.CostUSD = models.Float(-0.1) },
		"nan cost":       func(e *models.UsageEvent) { e.CostUSD = models.Float(math.NaN()) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			ev := event(1, 1, nil)
			mutate(&ev)
			err := Validate(ev)
			assert.ErrorIs(t, err, ErrInvalidEvent)
			_, err = Resolve(ev, models.CostModeAuto, testCatalog)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
	assert.NoError(t, Validate(event(0, 0, models.Float(0))))
}

func TestAnnotateSkip(t *testing.T) {
	unknown := event(1, 1, nil)
	unknown.Model = "nope"
	unknown.RequestID = "req_2"
	events := []models.UsageEvent{event(1000, 500, nil), unknown, event(1, 1, models.Float(0.5))}

	costed, q, err := Annotate(context.Background(), events, models.CostModeAuto, testCatalog, PolicySkip)
	require.NoError(t, err)
	require.Len(t, costed, 2)
	assert.InDelta(t, 0.0105, costed[0].Cost, 1e-12)
	assert.Equal(t, 0.5, costed[1].Cost)
	assert.Equal(t, Quality{Total: 3, Costed: 2, Skipped: 1, ByReason: map[string]int{"unknown_model": 1}}, q)
	assert.Equal(t, []string{"unknown_model"}, q.Reasons())
	assert.Equal(t, "nope", events[1].Model, "input must not be mutated")
}

func TestQualityExclude(t *testing.T) {
	q := Quality{Total: 2, Costed: 1, Skipped: 1, ByReason: map[string]int{"unknown_model": 1}}
	q.Exclude(Kind(ErrInvalidEvent), 2)
	q.Exclude(ReasonMalformed, 1)
	q.Exclude(ReasonMalformed, 0)

	assert.Equal(t, 5, q.Total)
	assert.Equal(t, 1, q.Costed)
	assert.Equal(t, 4, q.Skipped)
	assert.Equal(t, map[string]int{"unknown_model": 1, "invalid_event": 2, "malformed_line": 1}, q.ByReason)
	assert.Equal(t, []string{"invalid_event", "malformed_line", "unknown_model"}, q.Reasons())

	var empty Quality
	empty.Exclude(ReasonMalformed, 0)
	assert.Nil(t, empty.ByReason)
}

func TestAnnotateAbort(t *testing.T) {
	events := []models.UsageEvent{event(1, 1, models.Float(0.1)), event(1, 1, nil)}
	_, q, err := Annotate(context.Background(), events, models.CostModeDisplay, testCatalog, PolicyAbort)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingPrecomputedCost)
	assert.Equal(t, 1, q.Costed)
}

func TestParsePolicyAndMode(t *testing.T) {
	p, err := ParsePolicy("ABORT")
	require.NoError(t, err)
	assert.Equal(t, PolicyAbort, p)
	_, err = ParsePolicy("retry")
	assert.Error(t, err)

	m, err := models.ParseCostMode(" Auto ")
	require.NoError(t, err)
	assert.Equal(t, models.CostModeAuto, m)
	_, err = models.ParseCostMode("guess")
	assert.Error(t, err)
}
