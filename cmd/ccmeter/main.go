package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ccmeter",
		Short: "ccmeter: token usage and cost reports for Claude Code logs",
		Long: "ccmeter reads the assistant's JSONL usage logs and reports token usage and\n" +
			"cost per day, week, month, session, project and billing block.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return newDailyCmd(a).RunE(cmd, args)
		},
	}
	a.bind(root)

	root.AddCommand(
		newDailyCmd(a),
		newWeeklyCmd(a),
		newMonthlyCmd(a),
		newSessionCmd(a),
		newBlocksCmd(a),
		newProjectsCmd(a),
		newReportCmd(a),
		newTrendsCmd(a),
		newBudgetCmd(a),
		newImportCmd(a),
		newArchiveCmd(a),
		newPricingCmd(a),
		newMCPCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
