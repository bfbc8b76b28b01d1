package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/ccmeter/pkg/logger"
	"github.com/pario-ai/ccmeter/pkg/tracker"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [path...]",
		Short: "Copy usage events from the log files into the archive",
		Long: "Copy usage events from the log files into the SQLite archive so reports\n" +
			"survive log rotation. Events already archived are ignored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			events, st, err := a.logEvents(ctx, args...)
			if err != nil {
				return err
			}

			tr, err := tracker.New(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			source := "logs"
			if len(args) > 0 {
				source = fmt.Sprint(args)
			}
			batch, err := tr.Record(ctx, source, events)
			if err != nil {
				return err
			}
			logger.Info(ctx, "import finished", "batch", batch.ID, "inserted", batch.Inserted)

			var pruned int64
			if days := a.cfg.Archive.RetentionDays; days > 0 {
				if pruned, err = tr.Prune(ctx, time.Now().AddDate(0, 0, -days)); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if a.opts.json {
				return writeJSON(out, map[string]any{"batch": batch, "load": st, "pruned": pruned})
			}
			fmt.Fprintf(out, "Imported %s new events (%s already archived) from %d files.\n",
				humanize.Comma(batch.Inserted), humanize.Comma(batch.Ignored), st.Files)
			fmt.Fprintf(out, "Batch: %s\n", batch.ID)
			if pruned > 0 {
				fmt.Fprintf(out, "Pruned %s events older than %d days.\n", humanize.Comma(pruned), a.cfg.Archive.RetentionDays)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List previous imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := tracker.New(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			batches, err := tr.Imports(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.opts.json {
				return writeJSON(out, batches)
			}
			if len(batches) == 0 {
				fmt.Fprintln(out, "No imports found.")
				return nil
			}
			w := newTable(out)
			fmt.Fprintln(w, "BATCH\tWHEN\tSOURCE\tINSERTED\tIGNORED")
			for _, b := range batches {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
					b.ID, humanize.Time(b.CreatedAt), b.Source, b.Inserted, b.Ignored)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(listCmd)
	return cmd
}

func newArchiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect and maintain the event archive",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show archive contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := tracker.New(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			ctx := cmd.Context()
			stats, err := tr.Stats(ctx)
			if err != nil {
				return err
			}
			summaries, err := tr.Summary(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.opts.json {
				return writeJSON(out, map[string]any{"stats": stats, "models": summaries})
			}
			fmt.Fprintf(out, "Events:   %s\nSessions: %s\nImports:  %d\n",
				humanize.Comma(stats.Events), humanize.Comma(stats.Sessions), stats.Imports)
			if stats.Events == 0 {
				return nil
			}
			fmt.Fprintf(out, "Range:    %s to %s\n\n",
				stats.FirstEvent.In(a.loc).Format("2006-01-02 15:04"),
				stats.LastEvent.In(a.loc).Format("2006-01-02 15:04"))

			w := newTable(out)
			fmt.Fprintln(w, "MODEL\tEVENTS\tINPUT\tOUTPUT\tCACHE CREATE\tCACHE READ")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Model, humanize.Comma(s.EventCount),
					tokens(s.Usage.InputTokens), tokens(s.Usage.OutputTokens),
					tokens(s.Usage.CacheCreationInputTokens), tokens(s.Usage.CacheReadInputTokens))
			}
			return w.Flush()
		},
	}

	var (
		days   int
		before string
	)
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived events older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := parseDateFlag("before", before, a.loc)
			if err != nil {
				return err
			}
			if cutoff.IsZero() {
				if days == 0 {
					days = a.cfg.Archive.RetentionDays
				}
				if days <= 0 {
					return fmt.Errorf("archive prune: set --days, --before or archive.retention_days")
				}
				cutoff = time.Now().AddDate(0, 0, -days)
			}

			tr, err := tracker.New(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			n, err := tr.Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s events before %s.\n",
				humanize.Comma(n), cutoff.In(a.loc).Format("2006-01-02"))
			return nil
		},
	}
	pruneCmd.Flags().IntVar(&days, "days", 0, "keep this many days (default archive.retention_days)")
	pruneCmd.Flags().StringVar(&before, "before", "", "delete events before this date (YYYYMMDD)")

	cmd.AddCommand(statsCmd, pruneCmd)
	return cmd
}
