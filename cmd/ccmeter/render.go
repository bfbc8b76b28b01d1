package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/models"
)

var (
	activeColor = color.New(color.FgGreen, color.Bold)
	warnColor   = color.New(color.FgYellow, color.Bold)
	errorColor  = color.New(color.FgRed, color.Bold)
	headColor   = color.New(color.FgCyan, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func tokens(n int64) string {
	return humanize.Comma(n)
}

func usd(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// writeBuckets renders a grouping view with a total row. changes, when set,
// is aligned with rows and adds a change column.
func writeBuckets(w io.Writer, keyHeader string, rows []models.Bucket, total models.Bucket, changes []models.PeriodChange, breakdown bool) error {
	tw := newTable(w)
	header := fmt.Sprintf("%s\tMODELS\tINPUT\tOUTPUT\tCACHE CREATE\tCACHE READ\tTOTAL TOKENS\tCOST", strings.ToUpper(keyHeader))
	if changes != nil {
		header += "\tVS PREVIOUS"
	}
	fmt.Fprintln(tw, header)
	for i, r := range rows {
		change := ""
		if changes != nil {
			change = "\t" + formatChange(changes[i])
		}
		writeUsageRow(tw, r.Key, strings.Join(r.Models, ", "), r.Usage, r.TotalTokens, r.Cost, change)
		if breakdown {
			for _, mb := range r.Breakdown {
				writeUsageRow(tw, "  └ "+mb.Model, "", mb.Usage, mb.Usage.Total(), mb.Cost, "")
			}
		}
	}
	fmt.Fprintln(tw, "\t\t\t\t\t\t\t")
	writeUsageRow(tw, "TOTAL", "", total.Usage, total.TotalTokens, total.Cost, "")
	return tw.Flush()
}

// formatChange renders the cost change against the previous period.
func formatChange(c models.PeriodChange) string {
	switch {
	case !c.HasPrevious:
		return "new"
	case c.CostPercent == nil:
		return fmt.Sprintf("%+.2f USD", c.CostDelta)
	default:
		return fmt.Sprintf("%+.1f%% (%+.2f USD)", *c.CostPercent, c.CostDelta)
	}
}

func writeUsageRow(w io.Writer, key, modelList string, u models.TokenUsage, total int64, amount float64, extra string) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s%s\n",
		key, modelList,
		tokens(u.InputTokens), tokens(u.OutputTokens),
		tokens(u.CacheCreationInputTokens), tokens(u.CacheReadInputTokens),
		tokens(total), usd(amount), extra)
}

// writeQuality prints a footer when events were skipped during costing.
func writeQuality(w io.Writer, q cost.Quality) {
	if q.Skipped == 0 {
		return
	}
	parts := make([]string, 0, len(q.ByReason))
	for _, r := range q.Reasons() {
		parts = append(parts, fmt.Sprintf("%s=%d", r, q.ByReason[r]))
	}
	fmt.Fprintln(w)
	warnColor.Fprintf(w, "Data quality: %d of %d events skipped (%s)\n",
		q.Skipped, q.Total, strings.Join(parts, ", "))
}

// viewJSON is the JSON envelope of the grouping commands.
type viewJSON struct {
	Rows    any                   `json:"rows"`
	Totals  models.Bucket         `json:"totals"`
	Changes []models.PeriodChange `json:"changes,omitempty"`
	Quality cost.Quality          `json:"quality"`
}
