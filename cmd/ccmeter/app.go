package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cachepkg "github.com/pario-ai/ccmeter/pkg/cache/sqlite"
	"github.com/pario-ai/ccmeter/pkg/config"
	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/loader"
	"github.com/pario-ai/ccmeter/pkg/logger"
	"github.com/pario-ai/ccmeter/pkg/models"
	"github.com/pario-ai/ccmeter/pkg/pricing"
	"github.com/pario-ai/ccmeter/pkg/tracker"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	json       bool
	csv        bool
	order      string
	since      string
	until      string
	timezone   string
	mode       string
	offline    bool
	fromDB     bool
	breakdown  bool
	debug      bool
}

// app carries the resolved configuration for one invocation.
type app struct {
	opts rootOptions

	cfg    *config.Config
	loc    *time.Location
	mode   models.CostMode
	policy cost.Policy
	since  time.Time
	until  time.Time
}

func (a *app) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&a.opts.configPath, "config", "c", "", "path to config file (default: user config dir)")
	f.BoolVar(&a.opts.json, "json", false, "output JSON")
	f.BoolVar(&a.opts.csv, "csv", false, "output CSV")
	f.StringVar(&a.opts.order, "order", "asc", "sort order: asc or desc")
	f.StringVar(&a.opts.since, "since", "", "first date to include (YYYYMMDD)")
	f.StringVar(&a.opts.until, "until", "", "last date to include (YYYYMMDD)")
	f.StringVar(&a.opts.timezone, "timezone", "", "IANA time zone for calendar grouping (default from config)")
	f.StringVar(&a.opts.mode, "mode", "", "cost mode: auto, calculate or display (default from config)")
	f.BoolVar(&a.opts.offline, "offline", false, "use embedded pricing only")
	f.BoolVar(&a.opts.fromDB, "from-db", false, "read events from the archive instead of the log files")
	f.BoolVar(&a.opts.breakdown, "breakdown", false, "show per-model breakdown rows")
	f.BoolVar(&a.opts.debug, "debug", false, "enable debug logging")
}

// setup resolves configuration and flags. It runs before every command.
func (a *app) setup(cmd *cobra.Command) error {
	if a.opts.json && a.opts.csv {
		return fmt.Errorf("--json and --csv cannot be combined")
	}
	cfg, err := config.Resolve(a.opts.configPath)
	if err != nil {
		return err
	}
	if a.opts.timezone != "" {
		cfg.Timezone = a.opts.timezone
	}
	if a.opts.mode != "" {
		cfg.CostMode = a.opts.mode
	}
	if a.opts.offline {
		cfg.Pricing.Offline = true
	}
	if a.opts.debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	if a.loc, err = cfg.Location(); err != nil {
		return err
	}
	if a.mode, err = cfg.Mode(); err != nil {
		return err
	}
	if a.policy, err = cfg.ErrorPolicy(); err != nil {
		return err
	}
	if a.since, err = parseDateFlag("since", a.opts.since, a.loc); err != nil {
		return err
	}
	if a.until, err = parseDateFlag("until", a.opts.until, a.loc); err != nil {
		return err
	}
	switch a.opts.order {
	case "asc", "desc":
	default:
		return fmt.Errorf("invalid --order %q (want asc or desc)", a.opts.order)
	}

	cmd.SetContext(logger.With(cmd.Context(), "command", cmd.Name()))
	return nil
}

func (a *app) descending() bool {
	return a.opts.order == "desc"
}

// parseDateFlag returns midnight of the given date in loc.
func parseDateFlag(name, v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --%s %q (use YYYYMMDD)", name, v)
}

func (a *app) openCache() (*cachepkg.Cache, error) {
	return cachepkg.New(a.cfg.DBPath, a.cfg.Pricing.CacheTTL)
}

// catalog loads the pricing snapshot for this pass.
func (a *app) catalog(ctx context.Context) (*pricing.Snapshot, pricing.Source, error) {
	opts := pricing.LoadOptions{
		URL:       a.cfg.Pricing.URL,
		Offline:   a.cfg.Pricing.Offline,
		Timeout:   a.cfg.Pricing.Timeout,
		Overrides: a.cfg.Pricing.Overrides,
	}
	if !opts.Offline {
		c, err := a.openCache()
		if err != nil {
			logger.Warn(ctx, "pricing cache unavailable", "error", err)
		} else {
			defer func() { _ = c.Close() }()
			opts.Cache = c
		}
	}
	return pricing.Load(ctx, opts)
}

// logEvents reads and deduplicates events from the configured log
// directories, or from paths when given.
func (a *app) logEvents(ctx context.Context, paths ...string) ([]models.UsageEvent, loader.Stats, error) {
	if len(paths) == 0 {
		paths = a.cfg.ExpandedDataDirs()
	}
	files, err := loader.Discover(paths)
	if err != nil {
		return nil, loader.Stats{}, err
	}
	logger.Debug(ctx, "discovered usage logs", "files", len(files))
	events, st, err := loader.LoadAll(ctx, files)
	if err != nil {
		return nil, st, err
	}
	if st.Invalid > 0 && a.policy == cost.PolicyAbort {
		return nil, st, fmt.Errorf("load usage logs: %d invalid records: %w", st.Invalid, cost.ErrInvalidEvent)
	}
	return events, st, nil
}

// archivedEvents reads events from the SQLite archive.
func (a *app) archivedEvents(ctx context.Context) ([]models.UsageEvent, error) {
	tr, err := tracker.New(a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tr.Close() }()
	return tr.Query(ctx, time.Time{}, time.Time{})
}

// Events runs one full pass: load, price and cost every event. The date
// range flags are not applied. Records the loader rejected are counted in
// the returned quality.
func (a *app) Events(ctx context.Context) ([]models.CostedEvent, cost.Quality, error) {
	var (
		raw []models.UsageEvent
		st  loader.Stats
		err error
	)
	if a.opts.fromDB {
		raw, err = a.archivedEvents(ctx)
	} else {
		raw, st, err = a.logEvents(ctx)
	}
	if err != nil {
		return nil, cost.Quality{}, err
	}

	snap, src, err := a.catalog(ctx)
	if err != nil {
		return nil, cost.Quality{}, err
	}
	logger.Debug(ctx, "costing events", "events", len(raw), "mode", a.mode, "pricing", src)

	costed, q, err := cost.Annotate(ctx, raw, a.mode, snap, a.policy)
	q.Exclude(cost.Kind(cost.ErrInvalidEvent), st.Invalid)
	q.Exclude(cost.ReasonMalformed, st.Malformed)
	return costed, q, err
}
