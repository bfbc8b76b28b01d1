package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/ccmeter/pkg/budget"
)

func newBudgetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show spend against cost budgets",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget usage vs limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !a.cfg.Budget.Enabled {
				fmt.Fprintln(out, "Budget enforcement is disabled.")
				return nil
			}
			if len(a.cfg.Budget.Policies) == 0 {
				fmt.Fprintln(out, "No budget policies configured.")
				return nil
			}

			events, _, err := a.Events(cmd.Context())
			if err != nil {
				return err
			}
			statuses := budget.New(a.cfg.Budget.Policies, a.loc).Status(events, time.Now())

			if a.opts.json {
				return writeJSON(out, statuses)
			}

			w := newTable(out)
			fmt.Fprintln(w, "PERIOD\tKEY\tMODEL\tLIMIT\tUSED\tREMAINING\tPROJECTED\tUSAGE%\tSTATUS")
			for _, s := range statuses {
				status := "ok"
				switch {
				case s.Exceeded:
					status = errorColor.Sprint("exceeded")
				case s.Warning:
					status = warnColor.Sprint("warning")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%.1f%%\t%s\n",
					s.Policy.Period, s.PeriodKey, defaultStr(s.Policy.Model, "*"),
					usd(s.Policy.MaxCost), usd(s.Used), usd(s.Remaining), usd(s.Projected),
					s.Percent, status)
			}
			return w.Flush()
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Exit non-zero if any budget is exhausted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Budget.Enabled {
				return nil
			}
			events, _, err := a.Events(cmd.Context())
			if err != nil {
				return err
			}
			return budget.New(a.cfg.Budget.Policies, a.loc).Check(events, time.Now())
		},
	}

	cmd.AddCommand(statusCmd, checkCmd)
	return cmd
}
