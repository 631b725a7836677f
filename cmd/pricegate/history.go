package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/pricing"
)

var historyFlags struct {
	days int
}

var historyCmd = &cobra.Command{
	Use:   "history <product-id>",
	Short: "Show applied price changes for a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, cleanup, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		entries, err := a.engine.GetHistory(ctx, args[0], historyFlags.days)
		if err != nil {
			return cli.NewCommandError("history", err)
		}
		return formatter().FormatTo(cmd.OutOrStdout(), historyTable(entries))
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyFlags.days, "days", 30, "look-back window in days (0 for the whole log)")
}

func historyTable(entries []pricing.HistoryEntry) *cli.Table {
	table := &cli.Table{Headers: []string{"Timestamp", "Old", "New", "Change", "Type", "Rule", "Decision"}}
	for _, e := range entries {
		table.Append(timestamp(e.Timestamp), price(e.OldPrice), price(e.NewPrice), percent(e.ChangePct),
			string(e.ChangeType), e.RuleID, e.RequestID)
	}
	return table
}

// openOffline wires an offline engine. cleanup closes it.
func openOffline(cmd *cobra.Command) (*app, context.Context, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, cli.NewConfigError("telemetry.logging", err.Error())
	}

	ctx, cancel := withTimeout(cmd.Context())
	a, err := newApp(ctx, cfg, logger, appOptions{offline: true})
	if err != nil {
		cancel()
		return nil, nil, nil, cli.NewCommandError(cmd.Name(), err)
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
		cancel()
	}
	return a, ctx, cleanup, nil
}
