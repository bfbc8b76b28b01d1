// Package loader discovers and parses JSONL usage logs into usage events.
package loader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/ccmeter/pkg/cost"
	"github.com/pario-ai/ccmeter/pkg/logger"
	"github.com/pario-ai/ccmeter/pkg/models"
)

const maxLineSize = 16 * 1024 * 1024

// Stats counts what happened to the input while loading.
type Stats struct {
	Files       int `json:"files"`
	FailedFiles int `json:"failed_files"`
	Lines       int `json:"lines"`
	Events      int `json:"events"`
	Malformed   int `json:"malformed"`
	Skipped     int `json:"skipped"`
	Invalid     int `json:"invalid"`
	Duplicates  int `json:"duplicates"`
}

func (s *Stats) add(o Stats) {
	s.Files += o.Files
	s.FailedFiles += o.FailedFiles
	s.Lines += o.Lines
	s.Events += o.Events
	s.Malformed += o.Malformed
	s.Skipped += o.Skipped
	s.Invalid += o.Invalid
	s.Duplicates += o.Duplicates
}

// Discover returns every *.jsonl file under dirs, sorted and without
// duplicates. Missing directories are ignored. A path naming a file is
// returned as is.
func Discover(dirs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			if _, ok := seen[dir]; !ok {
				seen[dir] = struct{}{}
				files = append(files, dir)
			}
			continue
		}
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() || filepath.Ext(path) != ".jsonl" {
				return nil
			}
			if _, ok := seen[path]; !ok {
				seen[path] = struct{}{}
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// ParseReader decodes valid usage events from r. Malformed, usage-less and
// invalid lines are counted in the returned Stats and dropped.
func ParseReader(ctx context.Context, r io.Reader, source string) ([]models.UsageEvent, Stats, error) {
	var (
		events []models.UsageEvent
		st     Stats
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		st.Lines++

		ev, ok, err := decodeLine(line)
		if err != nil {
			st.Malformed++
			logger.Debug(ctx, "malformed line", "source", source, "line", st.Lines, "error", err)
			continue
		}
		if !ok {
			st.Skipped++
			continue
		}
		if err := cost.Validate(ev); err != nil {
			st.Invalid++
			logger.Debug(ctx, "invalid event", "source", source, "line", st.Lines, "error", err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, st, fmt.Errorf("scan %s: %w", source, err)
	}
	st.Events = len(events)
	return events, st, nil
}

// ParseFile opens path and parses it with ParseReader.
func ParseFile(ctx context.Context, path string) ([]models.UsageEvent, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ParseReader(ctx, f, path)
}

// LoadAll parses files concurrently and returns their events deduplicated on
// (message id, request id) and sorted by timestamp. Unreadable files are
// logged and counted; only cancellation aborts the load.
func LoadAll(ctx context.Context, files []string) ([]models.UsageEvent, Stats, error) {
	type result struct {
		events []models.UsageEvent
		stats  Stats
	}
	results := make([]result, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range files {
		g.Go(func() error {
			events, st, err := ParseFile(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn(gctx, "skipping unreadable log", "path", path, "error", err)
				results[i] = result{stats: Stats{Files: 1, FailedFiles: 1}}
				return nil
			}
			st.Files = 1
			results[i] = result{events: events, stats: st}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, fmt.Errorf("load usage logs: %w", err)
	}

	var total Stats
	n := 0
	for _, r := range results {
		total.add(r.stats)
		n += len(r.events)
	}

	// Files are in path order, so the first copy of a duplicate wins
	// deterministically.
	seen := make(map[string]struct{}, n)
	events := make([]models.UsageEvent, 0, n)
	for _, r := range results {
		for _, ev := range r.events {
			key := ev.DedupKey()
			if _, dup := seen[key]; dup {
				total.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			events = append(events, ev)
		}
	}
	total.Events = len(events)

	slices.SortStableFunc(events, func(a, b models.UsageEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	logger.Debug(ctx, "loaded usage logs", "files", total.Files, "events", total.Events, "duplicates", total.Duplicates)
	return events, total, nil
}
