package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/engine"
	"mercator-hq/pricegate/pkg/pricing"
)

var alertsFlags struct {
	hours int
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Summarize decision outcomes and risk controls",
	Long: `Summarize decisions created in the last --hours and list the active
risk controls with their thresholds.

Risk triggers are kept in memory by the running service and exported as
the pricegate_risk_triggers_total metric.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, cleanup, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		summary, err := a.engine.GetAlertSummary(ctx, alertsFlags.hours)
		if err != nil {
			return cli.NewCommandError("alerts", err)
		}

		if outputFmt == string(cli.FormatJSON) {
			return formatter().FormatTo(cmd.OutOrStdout(), struct {
				*engine.AlertSummary
				Controls []pricing.RiskControl `json:"controls"`
			}{summary, a.engine.RiskControls()})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Decisions in the last %dh\n", summary.Hours)
		if err := formatter().FormatTo(out, outcomeTable(summary)); err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Risk controls")
		return formatter().FormatTo(out, controlTable(a.engine.RiskControls()))
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)

	alertsCmd.Flags().IntVar(&alertsFlags.hours, "hours", 24, "summary window in hours")
}

func outcomeTable(s *engine.AlertSummary) *cli.Table {
	statuses := make([]string, 0, len(s.Decisions))
	for status := range s.Decisions {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)

	table := &cli.Table{Headers: []string{"Status", "Count"}}
	for _, status := range statuses {
		table.Append(statusLabel(pricing.Status(status)), fmt.Sprint(s.Decisions[pricing.Status(status)]))
	}
	return table
}

func controlTable(controls []pricing.RiskControl) *cli.Table {
	table := &cli.Table{Headers: []string{"Control", "Threshold", "Action", "Enabled", "Last Triggered"}}
	for _, c := range controls {
		last := ""
		if c.LastTriggeredAt != nil {
			last = timestamp(*c.LastTriggeredAt)
		}
		table.Append(string(c.Type), fmt.Sprint(c.Threshold), string(c.Action), fmt.Sprint(c.Enabled), last)
	}
	return table
}
