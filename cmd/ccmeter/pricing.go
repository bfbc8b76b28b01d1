package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/ccmeter/pkg/models"
)

func newPricingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Inspect model prices and the pricing cache",
	}

	showCmd := &cobra.Command{
		Use:   "show [model...]",
		Short: "Show per-million-token prices, optionally filtered by model substring",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, src, err := a.catalog(cmd.Context())
			if err != nil {
				return err
			}

			var entries []models.ModelPricing
			for _, p := range snap.Entries() {
				if matchesAny(p.Model, args) {
					entries = append(entries, p)
				}
			}

			out := cmd.OutOrStdout()
			if a.opts.json {
				return writeJSON(out, map[string]any{"source": src, "models": entries})
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No matching models.")
				return nil
			}
			w := newTable(out)
			fmt.Fprintln(w, "MODEL\tINPUT/M\tOUTPUT/M\tCACHE WRITE/M\tCACHE READ/M")
			for _, p := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Model,
					perMillion(&p.InputCostPerToken), perMillion(&p.OutputCostPerToken),
					perMillion(p.CacheCreationCostPerToken), perMillion(p.CacheReadCostPerToken))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			dimColor.Fprintf(out, "\n%d models, source: %s\n", len(entries), src)
			return nil
		},
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the pricing document cache",
	}

	cacheStatsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cached pricing documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCache()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			entries, err := c.Entries()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.opts.json {
				return writeJSON(out, map[string]any{"stats": stats, "entries": entries})
			}
			fmt.Fprintf(out, "Entries: %d\nTTL:     %s\n", stats.Entries, a.cfg.Pricing.CacheTTL)
			if len(entries) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			w := newTable(out)
			fmt.Fprintln(w, "KEY\tSIZE\tFETCHED\tSTATE")
			for _, e := range entries {
				state := activeColor.Sprint("fresh")
				if e.Expired {
					state = dimColor.Sprint("expired")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Key, humanize.Bytes(uint64(e.Size)), humanize.Time(e.FetchedAt), state)
			}
			return w.Flush()
		},
	}

	var expiredOnly bool
	cacheClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached pricing documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCache()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			n, err := c.Clear(expiredOnly)
			if err != nil {
				return err
			}
			if expiredOnly {
				fmt.Fprintf(cmd.OutOrStdout(), "%d expired cache entries cleared.\n", n)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%d cache entries cleared.\n", n)
			}
			return nil
		},
	}
	cacheClearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	cmd.AddCommand(showCmd, cacheCmd)
	return cmd
}

func matchesAny(model string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	lower := strings.ToLower(model)
	for _, f := range filters {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

func perMillion(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("$%.2f", *p*1e6)
}
