package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/ccmeter/pkg/blocks"
	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/models"
)

// formatBuckets formats a calendar view as a text table with a total row.
func formatBuckets(keyHeader string, rows []models.Bucket) string {
	if len(rows) == 0 {
		return "No usage data found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %12s %12s %14s %14s %14s %10s  %s\n",
		keyHeader, "Input", "Output", "Cache Create", "Cache Read", "Total", "Cost", "Models")
	b.WriteString(strings.Repeat("-", 110) + "\n")
	var total models.TokenUsage
	var cost float64
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %12d %12d %14d %14d %14d %10s  %s\n",
			r.Key, r.Usage.InputTokens, r.Usage.OutputTokens,
			r.Usage.CacheCreationInputTokens, r.Usage.CacheReadInputTokens,
			r.TotalTokens, usd(r.Cost), strings.Join(r.Models, ", "))
		total = total.Add(r.Usage)
		cost += r.Cost
	}
	b.WriteString(strings.Repeat("-", 110) + "\n")
	fmt.Fprintf(&b, "%-12s %12d %12d %14d %14d %14d %10s\n",
		"Total", total.InputTokens, total.OutputTokens,
		total.CacheCreationInputTokens, total.CacheReadInputTokens, total.Total(), usd(cost))
	return b.String()
}

// formatSessions formats sessions as a text table.
func formatSessions(sessions []models.SessionBucket) string {
	if len(sessions) == 0 {
		return "No sessions found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-20s %10s %14s %10s  %s\n",
		"Session ID", "Last Activity", "Duration", "Tokens", "Cost", "Project")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "%-38s %-20s %10s %14d %10s  %s\n",
			s.Key,
			s.LastSeen.UTC().Format("2006-01-02 15:04:05"),
			s.Duration().Round(time.Minute),
			s.TotalTokens, usd(s.Cost), s.ProjectPath)
	}
	return b.String()
}

// formatBlocks formats billing blocks as a text table.
func formatBlocks(blks []models.BillingBlock, loc *time.Location) string {
	if len(blks) == 0 {
		return "No billing blocks found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-17s %-17s %8s %10s %14s %10s  %s\n",
		"Start", "End", "Events", "Gap Before", "Tokens", "Cost", "Status")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, blk := range blks {
		gap := "-"
		if blk.GapBefore != nil {
			gap = blk.GapBefore.Round(time.Minute).String()
		}
		status := ""
		if blk.IsActive {
			status = "ACTIVE"
		}
		if blk.LimitExceeded {
			status = strings.TrimSpace(status + " OVER LIMIT")
		}
		fmt.Fprintf(&b, "%-17s %-17s %8d %10s %14d %10s  %s\n",
			blk.Start.In(loc).Format("2006-01-02 15:04"),
			blk.End.In(loc).Format("2006-01-02 15:04"),
			blk.EventCount, gap, blk.TotalTokens, usd(blk.Cost), status)
	}
	return b.String()
}

// formatActiveBlock describes the active block with burn rate and projection.
func formatActiveBlock(blk models.BillingBlock, now time.Time, threshold time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active block since %s UTC\n", blk.Start.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "  Events:  %d\n", blk.EventCount)
	fmt.Fprintf(&b, "  Tokens:  %d\n", blk.TotalTokens)
	fmt.Fprintf(&b, "  Cost:    %s\n", usd(blk.Cost))
	fmt.Fprintf(&b, "  Models:  %s\n", strings.Join(blk.Models, ", "))
	if rate, ok := blocks.BurnRate(blk); ok {
		fmt.Fprintf(&b, "  Burn:    %.0f tokens/min, %s/hour\n", rate.TokensPerMinute, usd(rate.CostPerHour))
	}
	if proj, ok := blocks.Project(blk, now, threshold); ok {
		fmt.Fprintf(&b, "  Projected: %d tokens, %s (%.0f min remaining)\n",
			proj.TotalTokens, usd(proj.TotalCost), proj.RemainingMinutes)
	}
	return b.String()
}

// formatBudgetStatus formats budget statuses as a text table.
func formatBudgetStatus(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget policies found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %-11s %-20s %10s %10s %10s %10s %7s\n",
		"Period", "Key", "Model", "Limit", "Used", "Remaining", "Projected", "Usage%")
	b.WriteString(strings.Repeat("-", 94) + "\n")
	for _, s := range statuses {
		model := s.Policy.Model
		if model == "" {
			model = "*"
		}
		flag := ""
		switch {
		case s.Exceeded:
			flag = " EXCEEDED"
		case s.Warning:
			flag = " WARNING"
		}
		fmt.Fprintf(&b, "%-8s %-11s %-20s %10s %10s %10s %10s %6.1f%%%s\n",
			s.Policy.Period, s.PeriodKey, model, usd(s.Policy.MaxCost), usd(s.Used),
			usd(s.Remaining), usd(s.Projected), s.Percent, flag)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Pricing Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

// formatTrend summarises a daily trend analysis.
func formatTrend(tr models.Trend) string {
	if tr.ActiveDays == 0 {
		return "No usage data found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Trend %s to %s (%d of %d days with usage)\n", tr.FirstKey, tr.LastKey, tr.ActiveDays, tr.SpanDays)
	fmt.Fprintf(&b, "  Direction:   %s (%+.2f USD/day)\n", tr.Direction, tr.SlopePerDay)
	if tr.GrowthPercent != nil {
		fmt.Fprintf(&b, "  Growth:      %+.1f%%\n", *tr.GrowthPercent)
	}
	fmt.Fprintf(&b, "  Daily cost:  mean %s, median %s, max %s on %s\n",
		usd(tr.Cost.Mean), usd(tr.Cost.Median), usd(tr.Cost.Max), tr.Cost.PeakKey)
	if tr.BusiestWeekday != "" {
		fmt.Fprintf(&b, "  Busiest day: %s\n", tr.BusiestWeekday)
	}
	for _, a := range tr.Anomalies {
		kind := "drop"
		if a.Spike {
			kind = "spike"
		}
		fmt.Fprintf(&b, "  Anomaly:     %s %s %s (z=%.1f)\n", a.Key, kind, usd(a.Cost), a.ZScore)
	}
	if tr.Forecast != nil {
		fmt.Fprintf(&b, "  Forecast:    %s over the next %d days\n", usd(tr.Forecast.Cost), tr.Forecast.Days)
	}
	return b.String()
}

// formatQuality returns a footer when events were dropped during costing.
func formatQuality(q cost.Quality) string {
	if q.Skipped == 0 {
		return ""
	}
	parts := make([]string, 0, len(q.ByReason))
	for _, r := range q.Reasons() {
		parts = append(parts, fmt.Sprintf("%s=%d", r, q.ByReason[r]))
	}
	return fmt.Sprintf("\nNote: %d of %d events skipped (%s)\n", q.Skipped, q.Total, strings.Join(parts, ", "))
}

func usd(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
