package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/ccmeter/pkg/budget"
	"github.com/pario-ai/ccmeter/pkg/logger"
	"github.com/pario-ai/ccmeter/pkg/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve usage reports as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var statter mcp.CacheStatter
			c, err := a.openCache()
			if err != nil {
				logger.Warn(ctx, "pricing cache unavailable", "error", err)
			} else {
				defer func() { _ = c.Close() }()
				statter = c
			}

			var enforcer *budget.Enforcer
			if a.cfg.Budget.Enabled {
				enforcer = budget.New(a.cfg.Budget.Policies, a.loc)
			}

			srv := mcp.New(a, mcp.Options{
				Location:   a.loc,
				WeekStart:  weekStart(a),
				Threshold:  a.cfg.Blocks.InactivityThreshold,
				TokenLimit: a.cfg.Blocks.TokenLimit,
			}, statter, enforcer, version)

			logger.Info(ctx, "mcp server listening on stdio")
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
