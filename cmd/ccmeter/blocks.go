package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/ccmeter/pkg/aggregate"
	"github.com/pario-ai/ccmeter/pkg/blocks"
	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/models"
)

const recentWindow = 3 * 24 * time.Hour

// tokenLimit is the parsed --token-limit flag.
type tokenLimit struct {
	value int64
	max   bool
}

func parseTokenLimit(s string) (tokenLimit, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return tokenLimit{}, nil
	case strings.EqualFold(s, "max"):
		return tokenLimit{max: true}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return tokenLimit{}, fmt.Errorf("invalid --token-limit %q (want a positive number or max)", s)
	}
	return tokenLimit{value: n}, nil
}

func (l tokenLimit) resolve(blks []models.BillingBlock) int64 {
	if l.max {
		return blocks.MaxTokens(blks)
	}
	return l.value
}

// blocksJSON is the JSON shape of the blocks command.
type blocksJSON struct {
	Blocks     []models.BillingBlock `json:"blocks"`
	TokenLimit int64                 `json:"token_limit,omitempty"`
	BurnRate   *models.BurnRate      `json:"burn_rate,omitempty"`
	Projection *models.Projection    `json:"projection,omitempty"`
	Quality    cost.Quality          `json:"quality"`
}

func newBlocksCmd(a *app) *cobra.Command {
	var (
		threshold  time.Duration
		limitFlag  string
		activeOnly bool
		recent     bool
	)

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Show billing blocks separated by inactivity gaps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold == 0 {
				threshold = a.cfg.Blocks.InactivityThreshold
			}
			if threshold <= 0 {
				return fmt.Errorf("invalid --threshold %s", threshold)
			}
			limit := tokenLimit{value: a.cfg.Blocks.TokenLimit}
			if limitFlag != "" {
				var err error
				if limit, err = parseTokenLimit(limitFlag); err != nil {
					return err
				}
			}

			events, q, err := a.Events(cmd.Context())
			if err != nil {
				return err
			}
			events = aggregate.Filter(events, a.since, a.until, a.loc)

			now := time.Now()
			blks := blocks.Segment(events, threshold, now)
			lim := limit.resolve(blks)
			blks = blocks.ApplyTokenLimit(blks, lim)

			var (
				rate *models.BurnRate
				proj *models.Projection
			)
			active, hasActive := blocks.Active(blks)
			if hasActive {
				if r, ok := blocks.BurnRate(active); ok {
					rate = &r
				}
				if p, ok := blocks.Project(active, now, threshold); ok {
					proj = &p
				}
			}

			switch {
			case activeOnly && hasActive:
				blks = []models.BillingBlock{active}
			case activeOnly:
				blks = []models.BillingBlock{}
			case recent:
				blks = blocks.Recent(blks, now, recentWindow)
			}
			if a.descending() {
				blks = aggregate.Reverse(blks)
			}

			out := cmd.OutOrStdout()
			if a.opts.json {
				return writeJSON(out, blocksJSON{Blocks: blks, TokenLimit: lim, BurnRate: rate, Projection: proj, Quality: q})
			}
			if a.opts.csv {
				return writeBlocksCSV(out, blks, a.loc)
			}
			if len(blks) == 0 {
				if activeOnly {
					fmt.Fprintln(out, "No active block.")
				} else {
					fmt.Fprintln(out, "No billing blocks found.")
				}
				writeQuality(out, q)
				return nil
			}
			if err := writeBlocks(out, blks, a.loc, now); err != nil {
				return err
			}
			if hasActive {
				writeActive(out, active, rate, proj, lim)
			}
			writeQuality(out, q)
			return nil
		},
	}

	cmd.Flags().DurationVar(&threshold, "threshold", 0, "inactivity gap that starts a new block (default from config, 5h)")
	cmd.Flags().StringVar(&limitFlag, "token-limit", "", "flag blocks above N tokens, or 'max' for the largest completed block")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only show the active block")
	cmd.Flags().BoolVar(&recent, "recent", false, "only show blocks from the last three days")
	return cmd
}

func writeBlocks(out io.Writer, blks []models.BillingBlock, loc *time.Location, now time.Time) error {
	w := newTable(out)
	fmt.Fprintln(w, "START\tEND\tGAP BEFORE\tEVENTS\tMODELS\tTOTAL TOKENS\tCOST\tSTATUS")
	for _, b := range blks {
		gap := "-"
		if b.GapBefore != nil {
			gap = b.GapBefore.Round(time.Minute).String()
		}
		end := b.End.In(loc).Format("2006-01-02 15:04")
		status := ""
		if b.IsActive {
			end = fmt.Sprintf("(%s ago)", now.Sub(b.End).Round(time.Minute))
			status = "ACTIVE"
		}
		if b.LimitExceeded {
			status = strings.TrimSpace(status + " OVER LIMIT")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			b.Start.In(loc).Format("2006-01-02 15:04"), end, gap, b.EventCount,
			strings.Join(b.Models, ", "), tokens(b.TotalTokens), usd(b.Cost), status)
	}
	return w.Flush()
}

func writeActive(out io.Writer, b models.BillingBlock, rate *models.BurnRate, proj *models.Projection, limit int64) {
	fmt.Fprintln(out)
	headColor.Fprintln(out, "Active block")
	activeColor.Fprintf(out, "  %s tokens, %s over %s\n", tokens(b.TotalTokens), usd(b.Cost), b.Duration().Round(time.Minute))
	if rate != nil {
		fmt.Fprintf(out, "  Burn rate:  %s tokens/min, %s/hour\n", tokens(int64(rate.TokensPerMinute)), usd(rate.CostPerHour))
	}
	if proj != nil {
		line := fmt.Sprintf("  Projected:  %s tokens, %s (%.0f min left)\n", tokens(proj.TotalTokens), usd(proj.TotalCost), proj.RemainingMinutes)
		if limit > 0 && proj.TotalTokens > limit {
			warnColor.Fprint(out, line)
		} else {
			fmt.Fprint(out, line)
		}
	}
	if b.LimitExceeded {
		errorColor.Fprintf(out, "  Token limit %s exceeded\n", tokens(limit))
	}
}
