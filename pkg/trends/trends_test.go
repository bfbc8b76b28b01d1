package trends

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/ccmeter/pkg/models"
)

var start = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC) // a Monday

func series(costs ...float64) []models.Bucket {
	out := make([]models.Bucket, len(costs))
	for i, c := range costs {
		out[i] = models.Bucket{
			Key:         start.AddDate(0, 0, i).Format("2006-01-02"),
			Cost:        c,
			TotalTokens: int64(c * 100),
		}
	}
	return out
}

func TestAnalyzeLinearGrowth(t *testing.T) {
	tr, err := Analyze(series(1, 2, 3, 4, 5, 6, 7), Options{})
	require.NoError(t, err)

	assert.Equal(t, "2025-03-03", tr.FirstKey)
	assert.Equal(t, "2025-03-09", tr.LastKey)
	assert.Equal(t, 7, tr.ActiveDays)
	assert.Equal(t, 7, tr.SpanDays)
	assert.Equal(t, models.TrendIncreasing, tr.Direction)
	require.NotNil(t, tr.GrowthPercent)
	assert.InDelta(t, 600.0, *tr.GrowthPercent, 1e-9)
	assert.InDelta(t, 1.0, tr.SlopePerDay, 1e-9)
	assert.InDelta(t, 0.0, tr.Volatility, 1e-9)

	assert.InDelta(t, 28.0, tr.Cost.Total, 1e-9)
	assert.InDelta(t, 4.0, tr.Cost.Mean, 1e-9)
	assert.InDelta(t, 4.0, tr.Cost.Median, 1e-9)
	assert.InDelta(t, 2.0, tr.Cost.StdDev, 1e-9)
	assert.Equal(t, 1.0, tr.Cost.Min)
	assert.Equal(t, 7.0, tr.Cost.Max)
	assert.Equal(t, "2025-03-09", tr.Cost.PeakKey)
	assert.InDelta(t, 2800.0, tr.Tokens.Total, 1e-9)

	assert.InDeltaSlice(t, []float64{2, 3, 4, 5, 6}, tr.MovingAverage, 1e-9)
	assert.Empty(t, tr.Anomalies)
	assert.Equal(t, "Sunday", tr.BusiestWeekday)
	assert.Equal(t, 7.0, tr.WeekdayCost[time.Sunday])

	require.NotNil(t, tr.Forecast)
	assert.Equal(t, DefaultHorizon, tr.Forecast.Days)
	assert.InDelta(t, 77.0, tr.Forecast.Cost, 1e-9) // 8 + 9 + ... + 14
	assert.Equal(t, int64(7700), tr.Forecast.Tokens)
}

func TestAnalyzeDecreasing(t *testing.T) {
	tr, err := Analyze(series(7, 6, 5, 4, 3, 2, 1), Options{Horizon: 3})
	require.NoError(t, err)
	assert.Equal(t, models.TrendDecreasing, tr.Direction)
	require.NotNil(t, tr.Forecast)
	// The fitted line reaches 0 at day 7 and is clamped there.
	assert.InDelta(t, 0.0, tr.Forecast.Cost, 1e-9)
}

func TestAnalyzeStableWithoutForecast(t *testing.T) {
	tr, err := Analyze(series(2, 2, 2), Options{})
	require.NoError(t, err)
	assert.Equal(t, models.TrendStable, tr.Direction)
	require.NotNil(t, tr.GrowthPercent)
	assert.Equal(t, 0.0, *tr.GrowthPercent)
	assert.Empty(t, tr.Anomalies)
	assert.Nil(t, tr.Forecast)
}

func TestAnalyzeSpike(t *testing.T) {
	tr, err := Analyze(series(1, 1, 1, 1, 1, 1, 1, 1, 1, 10), Options{})
	require.NoError(t, err)
	require.Len(t, tr.Anomalies, 1)
	a := tr.Anomalies[0]
	assert.Equal(t, "2025-03-12", a.Key)
	assert.True(t, a.Spike)
	assert.InDelta(t, 3.0, a.ZScore, 1e-9)

	tr, err = Analyze(series(1, 1, 1, 1, 1, 1, 1, 1, 1, 10), Options{AnomalyZ: 4})
	require.NoError(t, err)
	assert.Empty(t, tr.Anomalies)
}

func TestAnalyzeCalendarGaps(t *testing.T) {
	daily := []models.Bucket{
		{Key: "2025-03-11", Cost: 11},
		{Key: "2025-03-01", Cost: 1},
	}
	tr, err := Analyze(daily, Options{})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", tr.FirstKey)
	assert.Equal(t, 2, tr.ActiveDays)
	assert.Equal(t, 11, tr.SpanDays)
	assert.InDelta(t, 1.0, tr.SlopePerDay, 1e-9)
	assert.InDelta(t, 6.0, tr.Cost.Median, 1e-9)
}

func TestAnalyzeSmallInputs(t *testing.T) {
	tr, err := Analyze(nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.TrendUnknown, tr.Direction)
	assert.Equal(t, 0, tr.ActiveDays)
	assert.NotNil(t, tr.Anomalies)

	tr, err = Analyze(series(0), Options{})
	require.NoError(t, err)
	assert.Equal(t, models.TrendUnknown, tr.Direction)
	assert.Nil(t, tr.GrowthPercent)
	assert.Equal(t, 1, tr.SpanDays)
	assert.Equal(t, "", tr.BusiestWeekday)

	tr, err = Analyze(series(0, 3), Options{})
	require.NoError(t, err)
	assert.Nil(t, tr.GrowthPercent)
	assert.Equal(t, models.TrendIncreasing, tr.Direction)
}

func TestAnalyzeRejectsNonDayKeys(t *testing.T) {
	_, err := Analyze([]models.Bucket{{Key: "2025-03"}}, Options{})
	assert.Error(t, err)
}
