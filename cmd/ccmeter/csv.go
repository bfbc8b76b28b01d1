package main

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pario-ai/ccmeter/pkg/models"
)

var usageColumns = []string{"input_tokens", "output_tokens", "cache_creation_tokens", "cache_read_tokens", "total_tokens", "cost_usd"}

func usageFields(u models.TokenUsage, total int64, amount float64) []string {
	return []string{
		strconv.FormatInt(u.InputTokens, 10),
		strconv.FormatInt(u.OutputTokens, 10),
		strconv.FormatInt(u.CacheCreationInputTokens, 10),
		strconv.FormatInt(u.CacheReadInputTokens, 10),
		strconv.FormatInt(total, 10),
		formatFloat(amount),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPercent(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

// writeBucketsCSV writes one record per bucket, or one per bucket and model
// with breakdown. changes, when set, is aligned with rows.
func writeBucketsCSV(w io.Writer, key string, rows []models.Bucket, changes []models.PeriodChange, breakdown bool) error {
	cw := csv.NewWriter(w)
	header := append([]string{strings.ToLower(key), "model"}, usageColumns...)
	if changes != nil {
		header = append(header, "previous_key", "token_change", "cost_change", "cost_change_percent")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, r := range rows {
		var tail []string
		if changes != nil {
			c := changes[i]
			prev := ""
			if c.HasPrevious {
				prev = c.PreviousKey
			}
			tail = []string{prev, strconv.FormatInt(c.TokenDelta, 10), formatFloat(c.CostDelta), formatPercent(c.CostPercent)}
		}
		if !breakdown {
			rec := append([]string{r.Key, strings.Join(r.Models, ";")}, usageFields(r.Usage, r.TotalTokens, r.Cost)...)
			if err := cw.Write(append(rec, tail...)); err != nil {
				return err
			}
			continue
		}
		for _, mb := range r.Breakdown {
			rec := append([]string{r.Key, mb.Model}, usageFields(mb.Usage, mb.Usage.Total(), mb.Cost)...)
			if err := cw.Write(append(rec, tail...)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSessionsCSV(w io.Writer, sessions []models.SessionBucket, breakdown bool) error {
	cw := csv.NewWriter(w)
	header := append([]string{"session_id", "project", "first_seen", "last_seen", "model"}, usageColumns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range sessions {
		head := []string{s.Key, s.ProjectPath, s.FirstSeen.UTC().Format(time.RFC3339), s.LastSeen.UTC().Format(time.RFC3339)}
		if !breakdown {
			rec := append(append(head, strings.Join(s.Models, ";")), usageFields(s.Usage, s.TotalTokens, s.Cost)...)
			if err := cw.Write(rec); err != nil {
				return err
			}
			continue
		}
		for _, mb := range s.Breakdown {
			rec := append(append(append([]string{}, head...), mb.Model), usageFields(mb.Usage, mb.Usage.Total(), mb.Cost)...)
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeBlocksCSV(w io.Writer, blks []models.BillingBlock, loc *time.Location) error {
	cw := csv.NewWriter(w)
	header := append([]string{"start", "end", "gap_before_seconds", "gap_after_seconds", "events", "models"}, usageColumns...)
	header = append(header, "active", "limit_exceeded")
	if err := cw.Write(header); err != nil {
		return err
	}
	gap := func(d *time.Duration) string {
		if d == nil {
			return ""
		}
		return formatFloat(d.Seconds())
	}
	for _, b := range blks {
		rec := []string{
			b.Start.In(loc).Format(time.RFC3339), b.End.In(loc).Format(time.RFC3339),
			gap(b.GapBefore), gap(b.GapAfter),
			strconv.Itoa(b.EventCount), strings.Join(b.Models, ";"),
		}
		rec = append(rec, usageFields(b.Usage, b.TotalTokens, b.Cost)...)
		rec = append(rec, strconv.FormatBool(b.IsActive), strconv.FormatBool(b.LimitExceeded))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
