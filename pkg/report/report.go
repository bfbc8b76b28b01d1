// Package report computes every usage view over one costed event set.
package report

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/ccmeter/pkg/aggregate"
	"github.com/pario-ai/ccmeter/pkg/blocks"
	"github.com/pario-ai/ccmeter/pkg/models"
)

// Options parameterises Build. Location and Threshold are required.
type Options struct {
	Location   *time.Location
	WeekStart  time.Weekday
	Threshold  time.Duration
	Now        time.Time
	TokenLimit int64
	// MaxTokenLimit uses the largest completed block as the token limit.
	MaxTokenLimit bool
}

// Report holds all views. Each slice is ascending.
type Report struct {
	Daily    []models.Bucket        `json:"daily"`
	Weekly   []models.Bucket        `json:"weekly"`
	Monthly  []models.Bucket        `json:"monthly"`
	Sessions []models.SessionBucket `json:"sessions"`
	Projects []models.Bucket        `json:"projects"`
	Blocks   []models.BillingBlock  `json:"blocks"`
	Total    models.Bucket          `json:"total"`
}

// Build runs the views concurrently over events, which must not be modified
// until Build returns.
func Build(ctx context.Context, events []models.CostedEvent, opts Options) (*Report, error) {
	if opts.Location == nil {
		return nil, fmt.Errorf("build report: location is required")
	}
	if opts.Threshold <= 0 {
		return nil, fmt.Errorf("build report: inactivity threshold must be positive, got %s", opts.Threshold)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	var r Report
	g, gctx := errgroup.WithContext(ctx)
	run := func(f func()) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f()
			return nil
		})
	}

	run(func() { r.Daily = aggregate.Daily(events, opts.Location) })
	run(func() { r.Weekly = aggregate.Weekly(events, opts.Location, opts.WeekStart) })
	run(func() { r.Monthly = aggregate.Monthly(events, opts.Location) })
	run(func() { r.Sessions = aggregate.Sessions(events) })
	run(func() { r.Projects = aggregate.Projects(events) })
	run(func() {
		blks := blocks.Segment(events, opts.Threshold, opts.Now)
		limit := opts.TokenLimit
		if opts.MaxTokenLimit {
			limit = blocks.MaxTokens(blks)
		}
		r.Blocks = blocks.ApplyTokenLimit(blks, limit)
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	r.Total = aggregate.Total(r.Daily)
	return &r, nil
}
