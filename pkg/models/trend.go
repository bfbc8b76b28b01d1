package models

// TrendDirection summarises where daily spend is heading.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendUnknown    TrendDirection = "unknown"
)

// SeriesStats describes one metric over the days with usage.
type SeriesStats struct {
	Total  float64 `json:"total"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	// PeakKey is the first day holding Max.
	PeakKey string `json:"peak_key,omitempty"`
}

// Anomaly is a day whose cost lies far from the mean.
type Anomaly struct {
	Key    string  `json:"key"`
	Cost   float64 `json:"cost"`
	ZScore float64 `json:"z_score"`
	Spike  bool    `json:"spike"`
}

// Forecast extrapolates the fitted cost line past the last day.
type Forecast struct {
	Days   int     `json:"days"`
	Cost   float64 `json:"cost"`
	Tokens int64   `json:"tokens"`
}

// Trend is the result of a daily trend analysis.
type Trend struct {
	FirstKey   string         `json:"first_key,omitempty"`
	LastKey    string         `json:"last_key,omitempty"`
	ActiveDays int            `json:"active_days"`
	SpanDays   int            `json:"span_days"`
	Direction  TrendDirection `json:"direction"`
	// GrowthPercent compares the last day's cost with the first day's. It is
	// nil when the first day cost nothing.
	GrowthPercent *float64    `json:"growth_percent"`
	SlopePerDay   float64     `json:"slope_per_day"`
	Volatility    float64     `json:"volatility"`
	Cost          SeriesStats `json:"cost"`
	Tokens        SeriesStats `json:"tokens"`
	MovingAverage []float64   `json:"moving_average"`
	// WeekdayCost is spend per weekday, Sunday first.
	WeekdayCost    [7]float64 `json:"weekday_cost"`
	BusiestWeekday string     `json:"busiest_weekday,omitempty"`
	Anomalies      []Anomaly  `json:"anomalies"`
	Forecast       *Forecast  `json:"forecast,omitempty"`
}

// PeriodChange compares one calendar bucket with the one before it.
type PeriodChange struct {
	Key         string `json:"key"`
	PreviousKey string `json:"previous_key"`
	HasPrevious bool   `json:"has_previous"`
	TokenDelta  int64  `json:"token_delta"`
	// CostDelta and the percentages are relative to an empty bucket when
	// HasPrevious is false. Percentages are nil when the previous value is 0.
	CostDelta    float64  `json:"cost_delta"`
	TokenPercent *float64 `json:"token_percent"`
	CostPercent  *float64 `json:"cost_percent"`
}
