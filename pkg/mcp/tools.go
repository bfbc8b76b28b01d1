package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/ccmeter/pkg/aggregate"
	"github.com/pario-ai/ccmeter/pkg/blocks"
	"github.com/pario-ai/ccmeter/pkg/models"
	"github.com/pario-ai/ccmeter/pkg/trends"
)

// rangeArgs are shared by the calendar and session tools.
type rangeArgs struct {
	Since string `json:"since"`
	Until string `json:"until"`
	Order string `json:"order"`
}

type blocksArgs struct {
	Active bool `json:"active"`
	Recent bool `json:"recent"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"ccmeter_daily":         handleDaily,
	"ccmeter_monthly":       handleMonthly,
	"ccmeter_sessions":      handleSessions,
	"ccmeter_blocks":        handleBlocks,
	"ccmeter_trends":        handleTrends,
	"ccmeter_budget":        handleBudget,
	"ccmeter_pricing_cache": handlePricingCache,
}

var rangeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"since": map[string]any{
			"type":        "string",
			"description": "First date to include, YYYY-MM-DD (optional)",
		},
		"until": map[string]any{
			"type":        "string",
			"description": "Last date to include, YYYY-MM-DD (optional)",
		},
		"order": map[string]any{
			"type":        "string",
			"enum":        []string{"asc", "desc"},
			"description": "Sort order (default asc)",
		},
	},
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "ccmeter_daily",
		Description: "Show token usage and cost per calendar day.",
		InputSchema: rangeSchema,
	},
	{
		Name:        "ccmeter_monthly",
		Description: "Show token usage and cost per calendar month.",
		InputSchema: rangeSchema,
	},
	{
		Name:        "ccmeter_sessions",
		Description: "Show token usage and cost per conversation session.",
		InputSchema: rangeSchema,
	},
	{
		Name:        "ccmeter_blocks",
		Description: "Show billing blocks separated by inactivity gaps, with burn rate for the active block.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"active": map[string]any{
					"type":        "boolean",
					"description": "Only show the active block (optional)",
				},
				"recent": map[string]any{
					"type":        "boolean",
					"description": "Only show blocks from the last three days (optional)",
				},
			},
		},
	},
	{
		Name:        "ccmeter_trends",
		Description: "Show daily cost statistics, trend direction, anomalies and a seven day forecast.",
		InputSchema: rangeSchema,
	},
	{
		Name:        "ccmeter_budget",
		Description: "Show spend against the configured cost budgets.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "ccmeter_pricing_cache",
		Description: "Show pricing cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

const recentWindow = 3 * 24 * time.Hour

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

// parseDate accepts YYYY-MM-DD or YYYYMMDD as midnight in loc. Empty input
// is an open bound.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
}

// ranged is the filtered input of a calendar or session tool.
type ranged struct {
	events []models.CostedEvent
	footer string
	desc   bool
}

// rangedEvents loads events and applies the date range in args. Errors are
// phrased for the tool caller.
func (s *Server) rangedEvents(ctx context.Context, rawArgs json.RawMessage) (ranged, error) {
	var args rangeArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return ranged{}, fmt.Errorf("Invalid arguments: %w", err)
		}
	}
	since, err := parseDate(args.Since, s.opts.Location)
	if err != nil {
		return ranged{}, err
	}
	until, err := parseDate(args.Until, s.opts.Location)
	if err != nil {
		return ranged{}, err
	}
	events, q, err := s.source.Events(ctx)
	if err != nil {
		return ranged{}, fmt.Errorf("Error loading usage: %w", err)
	}
	return ranged{
		events: aggregate.Filter(events, since, until, s.opts.Location),
		footer: formatQuality(q),
		desc:   strings.EqualFold(args.Order, "desc"),
	}, nil
}

func handleDaily(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	in, err := s.rangedEvents(ctx, rawArgs)
	if err != nil {
		return errorResult(err.Error())
	}
	rows := aggregate.Daily(in.events, s.opts.Location)
	if in.desc {
		rows = aggregate.Reverse(rows)
	}
	return textResult(formatBuckets("Date", rows) + in.footer)
}

func handleMonthly(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	in, err := s.rangedEvents(ctx, rawArgs)
	if err != nil {
		return errorResult(err.Error())
	}
	rows := aggregate.Monthly(in.events, s.opts.Location)
	if in.desc {
		rows = aggregate.Reverse(rows)
	}
	return textResult(formatBuckets("Month", rows) + in.footer)
}

func handleSessions(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	in, err := s.rangedEvents(ctx, rawArgs)
	if err != nil {
		return errorResult(err.Error())
	}
	rows := aggregate.Sessions(in.events)
	if in.desc {
		rows = aggregate.Reverse(rows)
	}
	return textResult(formatSessions(rows) + in.footer)
}

func handleTrends(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	in, err := s.rangedEvents(ctx, rawArgs)
	if err != nil {
		return errorResult(err.Error())
	}
	tr, err := trends.Analyze(aggregate.Daily(in.events, s.opts.Location), trends.Options{})
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatTrend(tr) + in.footer)
}

func handleBlocks(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args blocksArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	events, q, err := s.source.Events(ctx)
	if err != nil {
		return errorResult("Error loading usage: " + err.Error())
	}

	now := s.now()
	blks := blocks.ApplyTokenLimit(blocks.Segment(events, s.opts.Threshold, now), s.opts.TokenLimit)
	if args.Active {
		active, ok := blocks.Active(blks)
		if !ok {
			return textResult("No active block.")
		}
		return textResult(formatActiveBlock(active, now, s.opts.Threshold))
	}
	if args.Recent {
		blks = blocks.Recent(blks, now, recentWindow)
	}
	return textResult(formatBlocks(blks, s.opts.Location) + formatQuality(q))
}

func handleBudget(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.enforcer == nil {
		return textResult("Budget enforcement is not configured.")
	}
	events, _, err := s.source.Events(ctx)
	if err != nil {
		return errorResult("Error loading usage: " + err.Error())
	}
	return textResult(formatBudgetStatus(s.enforcer.Status(events, s.now())))
}

func handlePricingCache(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Pricing cache is not configured.")
	}
	stats, err := s.cache.Stats()
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}
