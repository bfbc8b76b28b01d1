package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/ccmeter/pkg/aggregate"
	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/models"
	"github.com/pario-ai/ccmeter/pkg/trends"
)

// trendsJSON is the JSON shape of the trends command.
type trendsJSON struct {
	models.Trend
	Quality cost.Quality `json:"quality"`
}

func newTrendsCmd(a *app) *cobra.Command {
	var (
		days int
		opts trends.Options
	)

	cmd := &cobra.Command{
		Use:     "trends",
		Aliases: []string{"stats"},
		Short:   "Show daily cost statistics, trend direction, anomalies and a forecast",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return fmt.Errorf("invalid --days %d", days)
			}
			events, q, err := a.Events(cmd.Context())
			if err != nil {
				return err
			}
			since := a.since
			if days > 0 {
				y, m, d := time.Now().In(a.loc).Date()
				window := time.Date(y, m, d-days+1, 0, 0, 0, 0, a.loc)
				if window.After(since) {
					since = window
				}
			}
			daily := aggregate.Daily(aggregate.Filter(events, since, a.until, a.loc), a.loc)

			tr, err := trends.Analyze(daily, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case a.opts.json:
				return writeJSON(out, trendsJSON{Trend: tr, Quality: q})
			case a.opts.csv:
				return writeBucketsCSV(out, "Date", daily, nil, a.opts.breakdown)
			}
			if tr.ActiveDays == 0 {
				fmt.Fprintln(out, "No usage data found.")
				writeQuality(out, q)
				return nil
			}
			if err := writeTrend(out, tr); err != nil {
				return err
			}
			writeQuality(out, q)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "only analyse the last N days (default: all)")
	cmd.Flags().Float64Var(&opts.AnomalyZ, "z", trends.DefaultAnomalyZ, "z-score at which a day's cost is reported as an anomaly")
	cmd.Flags().IntVar(&opts.Horizon, "horizon", trends.DefaultHorizon, "days to forecast")
	return cmd
}

func writeTrend(out io.Writer, tr models.Trend) error {
	headColor.Fprintf(out, "Usage trends %s to %s\n", tr.FirstKey, tr.LastKey)
	fmt.Fprintf(out, "%d of %d days with usage\n\n", tr.ActiveDays, tr.SpanDays)

	dir := string(tr.Direction)
	switch tr.Direction {
	case models.TrendIncreasing:
		dir = warnColor.Sprint(dir)
	case models.TrendDecreasing:
		dir = activeColor.Sprint(dir)
	}
	fmt.Fprintf(out, "Direction:   %s (%+.2f USD/day)\n", dir, tr.SlopePerDay)
	if tr.GrowthPercent != nil {
		fmt.Fprintf(out, "Growth:      %+.1f%% first to last day\n", *tr.GrowthPercent)
	}
	fmt.Fprintf(out, "Volatility:  %s day to day\n", usd(tr.Volatility))
	if tr.BusiestWeekday != "" {
		fmt.Fprintf(out, "Busiest day: %s\n", tr.BusiestWeekday)
	}
	fmt.Fprintln(out)

	w := newTable(out)
	fmt.Fprintln(w, "PER DAY\tTOTAL\tMEAN\tMEDIAN\tSTD DEV\tMIN\tMAX\tPEAK")
	c := tr.Cost
	fmt.Fprintf(w, "Cost\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		usd(c.Total), usd(c.Mean), usd(c.Median), usd(c.StdDev), usd(c.Min), usd(c.Max), c.PeakKey)
	k := tr.Tokens
	fmt.Fprintf(w, "Tokens\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		tokens(int64(k.Total)), tokens(int64(k.Mean)), tokens(int64(k.Median)), tokens(int64(k.StdDev)),
		tokens(int64(k.Min)), tokens(int64(k.Max)), k.PeakKey)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(tr.Anomalies) > 0 {
		fmt.Fprintln(out)
		for _, an := range tr.Anomalies {
			kind := "drop"
			if an.Spike {
				kind = "spike"
			}
			warnColor.Fprintf(out, "Anomaly: %s %s %s (z=%.1f)\n", an.Key, kind, usd(an.Cost), an.ZScore)
		}
	}
	if tr.Forecast != nil {
		fmt.Fprintf(out, "\nForecast: %s and %s tokens over the next %d days\n",
			usd(tr.Forecast.Cost), tokens(tr.Forecast.Tokens), tr.Forecast.Days)
	}
	return nil
}
