package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/ccmeter/pkg/aggregate"
	"github.com/pario-ai/ccmeter/pkg/models"
)

// viewFunc groups filtered events into one calendar view.
type viewFunc func(a *app, events []models.CostedEvent) ([]models.Bucket, error)

func newPeriodCmd(a *app, use, short, keyHeader string, view viewFunc, previous aggregate.PreviousKeyFunc) *cobra.Command {
	var compare bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			all, q, err := a.Events(ctx)
			if err != nil {
				return err
			}
			events := aggregate.Filter(all, a.since, a.until, a.loc)

			rows, err := view(a, events)
			if err != nil {
				return err
			}
			total := aggregate.Total(rows)
			if a.descending() {
				rows = aggregate.Reverse(rows)
			}

			var changes []models.PeriodChange
			if compare {
				history, err := view(a, all)
				if err != nil {
					return err
				}
				changes = aggregate.Compare(rows, history, previous)
			}

			out := cmd.OutOrStdout()
			switch {
			case a.opts.json:
				return writeJSON(out, viewJSON{Rows: rows, Totals: total, Changes: changes, Quality: q})
			case a.opts.csv:
				return writeBucketsCSV(out, keyHeader, rows, changes, a.opts.breakdown)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No usage data found.")
				writeQuality(out, q)
				return nil
			}
			if err := writeBuckets(out, keyHeader, rows, total, changes, a.opts.breakdown); err != nil {
				return err
			}
			writeQuality(out, q)
			return nil
		},
	}
	if previous != nil {
		cmd.Flags().BoolVar(&compare, "compare", false, "compare each row with the previous "+strings.ToLower(keyHeader))
	}
	return cmd
}

func newDailyCmd(a *app) *cobra.Command {
	return newPeriodCmd(a, "daily", "Show usage and cost per day", "Date",
		func(a *app, events []models.CostedEvent) ([]models.Bucket, error) {
			return aggregate.Daily(events, a.loc), nil
		}, aggregate.PreviousDay)
}

func newMonthlyCmd(a *app) *cobra.Command {
	return newPeriodCmd(a, "monthly", "Show usage and cost per month", "Month",
		func(a *app, events []models.CostedEvent) ([]models.Bucket, error) {
			return aggregate.Monthly(events, a.loc), nil
		}, aggregate.PreviousMonth)
}

func newWeeklyCmd(a *app) *cobra.Command {
	return newPeriodCmd(a, "weekly", "Show usage and cost per week", "Week",
		func(a *app, events []models.CostedEvent) ([]models.Bucket, error) {
			start, err := a.cfg.FirstWeekday()
			if err != nil {
				return nil, err
			}
			return aggregate.Weekly(events, a.loc, start), nil
		}, nil)
}

func newProjectsCmd(a *app) *cobra.Command {
	return newPeriodCmd(a, "projects", "Show usage and cost per project directory", "Project",
		func(_ *app, events []models.CostedEvent) ([]models.Bucket, error) {
			return aggregate.Projects(events), nil
		}, nil)
}

// weekStart returns the configured first weekday, Monday when unset.
func weekStart(a *app) time.Weekday {
	wd, err := a.cfg.FirstWeekday()
	if err != nil {
		return time.Monday
	}
	return wd
}
