// Package trends derives statistics, a direction, cost anomalies and a short
// forecast from a daily usage series.
package trends

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

const (
	dayLayout = "2006-01-02"

	// DefaultAnomalyZ is the z-score at which a day's cost is an anomaly.
	DefaultAnomalyZ = 2.5
	// DefaultHorizon is the number of days forecast past the last day.
	DefaultHorizon = 7
	// MinForecastDays is the fewest days with usage that get a forecast.
	MinForecastDays = 7

	// stableBand is the fitted change, in percent of mean daily cost, below
	// which the direction is stable.
	stableBand = 5.0
	// smoothing sets the moving average window as a share of the series.
	smoothing = 0.3
)

// Options tunes Analyze. Zero values select the defaults.
type Options struct {
	AnomalyZ float64
	Horizon  int
}

// point is one day of the series. x is the calendar offset from the first day.
type point struct {
	key     string
	day     time.Time
	x       float64
	cost    float64
	tokens  float64
	weekday time.Weekday
}

// Analyze inspects daily buckets keyed YYYY-MM-DD. Days without usage are
// absent from the statistics but keep their place on the calendar axis used
// for the fitted line.
func Analyze(daily []models.Bucket, opts Options) (models.Trend, error) {
	if opts.AnomalyZ <= 0 {
		opts.AnomalyZ = DefaultAnomalyZ
	}
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}

	pts := make([]point, 0, len(daily))
	for _, b := range daily {
		day, err := time.Parse(dayLayout, b.Key)
		if err != nil {
			return models.Trend{}, fmt.Errorf("analyze trends: bucket key %q is not a day", b.Key)
		}
		pts = append(pts, point{
			key:     b.Key,
			day:     day,
			cost:    b.Cost,
			tokens:  float64(b.TotalTokens),
			weekday: day.Weekday(),
		})
	}
	slices.SortFunc(pts, func(a, b point) int { return strings.Compare(a.key, b.key) })

	tr := models.Trend{
		Direction:     models.TrendUnknown,
		ActiveDays:    len(pts),
		MovingAverage: []float64{},
		Anomalies:     []models.Anomaly{},
	}
	if len(pts) == 0 {
		return tr, nil
	}

	for i := range pts {
		pts[i].x = math.Round(pts[i].day.Sub(pts[0].day).Hours() / 24)
	}
	first, last := pts[0], pts[len(pts)-1]
	tr.FirstKey, tr.LastKey = first.key, last.key
	tr.SpanDays = int(last.x) + 1

	costs := make([]float64, len(pts))
	tokens := make([]float64, len(pts))
	for i, p := range pts {
		costs[i] = p.cost
		tokens[i] = p.tokens
		tr.WeekdayCost[p.weekday] += p.cost
	}
	tr.Cost = summarize(costs, pts)
	tr.Tokens = summarize(tokens, pts)
	tr.BusiestWeekday = busiest(tr.WeekdayCost)
	tr.MovingAverage = movingAverage(costs, max(3, int(float64(len(costs))*smoothing)))
	tr.Anomalies = anomalies(pts, tr.Cost, opts.AnomalyZ)

	if len(pts) < 2 {
		return tr, nil
	}

	if first.cost != 0 {
		g := (last.cost - first.cost) / first.cost * 100
		tr.GrowthPercent = &g
	}
	changes := make([]float64, len(costs)-1)
	for i := 1; i < len(costs); i++ {
		changes[i-1] = costs[i] - costs[i-1]
	}
	tr.Volatility = summarize(changes, nil).StdDev

	slope, intercept := fit(pts, func(p point) float64 { return p.cost })
	tr.SlopePerDay = slope
	tr.Direction = direction(slope*last.x, tr.Cost.Mean)

	if len(pts) >= MinForecastDays {
		tokSlope, tokIntercept := fit(pts, func(p point) float64 { return p.tokens })
		f := models.Forecast{Days: opts.Horizon}
		var tok float64
		for i := 1; i <= opts.Horizon; i++ {
			x := last.x + float64(i)
			f.Cost += math.Max(0, slope*x+intercept)
			tok += math.Max(0, tokSlope*x+tokIntercept)
		}
		f.Tokens = int64(math.Round(tok))
		tr.Forecast = &f
	}
	return tr, nil
}

// summarize computes population statistics. pts, when given, names the peak.
func summarize(values []float64, pts []point) models.SeriesStats {
	var s models.SeriesStats
	if len(values) == 0 {
		return s
	}
	s.Min, s.Max = values[0], values[0]
	peak := 0
	for i, v := range values {
		s.Total += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
			peak = i
		}
	}
	n := float64(len(values))
	s.Mean = s.Total / n

	var variance float64
	for _, v := range values {
		variance += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDev = math.Sqrt(variance / n)

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		s.Median = sorted[mid]
	}
	if pts != nil {
		s.PeakKey = pts[peak].key
	}
	return s
}

// movingAverage returns the mean of every full window.
func movingAverage(values []float64, window int) []float64 {
	window = min(window, len(values))
	if window == 0 {
		return []float64{}
	}
	out := make([]float64, 0, len(values)-window+1)
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}
	return out
}

func anomalies(pts []point, cost models.SeriesStats, z float64) []models.Anomaly {
	out := []models.Anomaly{}
	if cost.StdDev == 0 {
		return out
	}
	for _, p := range pts {
		score := (p.cost - cost.Mean) / cost.StdDev
		if math.Abs(score) >= z {
			out = append(out, models.Anomaly{Key: p.key, Cost: p.cost, ZScore: score, Spike: score > 0})
		}
	}
	return out
}

// fit is a least squares line over the calendar axis.
func fit(pts []point, y func(point) float64) (slope, intercept float64) {
	n := float64(len(pts))
	var sx, sy, sxy, sxx float64
	for _, p := range pts {
		v := y(p)
		sx += p.x
		sy += v
		sxy += p.x * v
		sxx += p.x * p.x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

// direction classifies the fitted change across the series against the
// mean daily cost.
func direction(change, mean float64) models.TrendDirection {
	if mean == 0 {
		return models.TrendStable
	}
	pct := change / mean * 100
	switch {
	case pct > stableBand:
		return models.TrendIncreasing
	case pct < -stableBand:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func busiest(byDay [7]float64) string {
	best := -1
	for d, v := range byDay {
		if v > 0 && (best < 0 || v > byDay[best]) {
			best = d
		}
	}
	if best < 0 {
		return ""
	}
	return time.Weekday(best).String()
}
