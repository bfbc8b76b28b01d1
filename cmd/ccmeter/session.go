package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/ccmeter/pkg/aggregate"
	"github.com/pario-ai/ccmeter/pkg/models"
)

func newSessionCmd(a *app) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Show usage and cost per conversation session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, q, err := a.Events(cmd.Context())
			if err != nil {
				return err
			}
			events = aggregate.Filter(events, a.since, a.until, a.loc)

			sessions := aggregate.Sessions(events)
			if sessionID != "" {
				sessions = filterSession(sessions, sessionID)
			}
			total := aggregate.Total(aggregate.SessionTotals(sessions))
			if a.descending() {
				sessions = aggregate.Reverse(sessions)
			}

			out := cmd.OutOrStdout()
			if a.opts.json {
				return writeJSON(out, viewJSON{Rows: sessions, Totals: total, Quality: q})
			}
			if a.opts.csv {
				return writeSessionsCSV(out, sessions, a.opts.breakdown)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				writeQuality(out, q)
				return nil
			}

			w := newTable(out)
			fmt.Fprintln(w, "SESSION ID\tPROJECT\tLAST ACTIVITY\tDURATION\tMODELS\tTOTAL TOKENS\tCOST")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					s.Key, defaultStr(s.ProjectPath, aggregate.UnknownProject),
					humanize.Time(s.LastSeen), s.Duration().Round(time.Second),
					strings.Join(s.Models, ", "), tokens(s.TotalTokens), usd(s.Cost))
				if a.opts.breakdown {
					for _, mb := range s.Breakdown {
						fmt.Fprintf(w, "  └ %s\t\t\t\t\t%s\t%s\n", mb.Model, tokens(mb.Usage.Total()), usd(mb.Cost))
					}
				}
			}
			fmt.Fprintf(w, "TOTAL\t\t\t\t\t%s\t%s\n", tokens(total.TotalTokens), usd(total.Cost))
			if err := w.Flush(); err != nil {
				return err
			}
			writeQuality(out, q)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "id", "", "show a single session (prefix match)")
	return cmd
}

func filterSession(sessions []models.SessionBucket, prefix string) []models.SessionBucket {
	var out []models.SessionBucket
	for _, s := range sessions {
		if strings.HasPrefix(s.Key, prefix) {
			out = append(out, s)
		}
	}
	return out
}
