package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/ccmeter/pkg/aggregate"
	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/models"
	"github.com/pario-ai/ccmeter/pkg/report"
)

// reportJSON is the JSON shape of the report command.
type reportJSON struct {
	*report.Report
	Quality cost.Quality `json:"quality"`
}

func newReportCmd(a *app) *cobra.Command {
	var limitFlag string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compute every view in one pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := tokenLimit{value: a.cfg.Blocks.TokenLimit}
			if limitFlag != "" {
				var err error
				if limit, err = parseTokenLimit(limitFlag); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			events, q, err := a.Events(ctx)
			if err != nil {
				return err
			}
			events = aggregate.Filter(events, a.since, a.until, a.loc)

			r, err := report.Build(ctx, events, report.Options{
				Location:      a.loc,
				WeekStart:     weekStart(a),
				Threshold:     a.cfg.Blocks.InactivityThreshold,
				Now:           time.Now(),
				TokenLimit:    limit.value,
				MaxTokenLimit: limit.max,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.opts.json {
				return writeJSON(out, reportJSON{Report: r, Quality: q})
			}

			overLimit := 0
			for _, b := range r.Blocks {
				if b.LimitExceeded {
					overLimit++
				}
			}

			headColor.Fprintln(out, "Usage report")
			w := newTable(out)
			fmt.Fprintln(w, "View\tRows\tLatest")
			writeReportRow(w, "Daily", r.Daily)
			writeReportRow(w, "Weekly", r.Weekly)
			writeReportRow(w, "Monthly", r.Monthly)
			writeReportRow(w, "Projects", r.Projects)
			fmt.Fprintf(w, "Sessions\t%d\t\n", len(r.Sessions))
			fmt.Fprintf(w, "Blocks\t%d\t%d over limit\n", len(r.Blocks), overLimit)
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nTotal: %s tokens, %s over %d events\n",
				tokens(r.Total.TotalTokens), usd(r.Total.Cost), r.Total.EventCount)
			writeQuality(out, q)
			return nil
		},
	}

	cmd.Flags().StringVar(&limitFlag, "token-limit", "", "flag blocks above N tokens, or 'max' for the largest completed block")
	return cmd
}

func writeReportRow(w io.Writer, name string, rows []models.Bucket) {
	latest := ""
	if len(rows) > 0 {
		latest = rows[len(rows)-1].Key
	}
	fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(rows), latest)
}
