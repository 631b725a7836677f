package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/history"
	"mercator-hq/pricegate/pkg/scheduler"
)

var sweepCmd = &cobra.Command{
	Use:       "sweep [expire|prune]...",
	Short:     "Run maintenance jobs once",
	Long:      `Run the decision expiry sweep and the history retention job once, outside the service schedule. With no arguments both jobs run.`,
	ValidArgs: []string{"expire", "prune"},
	Args:      cobra.OnlyValidArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"expire", "prune"}
		}

		a, ctx, cleanup, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		cfg := a.cfg
		retention := time.Duration(cfg.Scheduler.RetentionDays) * 24 * time.Hour
		sched := scheduler.New(a.logger)
		// Schedules are irrelevant for RunNow; the standard parser still
		// needs a valid expression.
		if err := sched.Add("expire", "@daily", a.engine.ExpireDue); err != nil {
			return err
		}
		if err := sched.Add("prune", "@daily", history.NewPruner(a.history, retention, a.logger).Prune); err != nil {
			return err
		}

		for _, name := range args {
			n, err := sched.RunNow(ctx, name)
			if err != nil {
				return cli.NewCommandError("sweep "+name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d affected\n", styled(cli.SuccessStyle, "✓"), name, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
