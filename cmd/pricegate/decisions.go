package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/decision"
	"mercator-hq/pricegate/pkg/pricing"
)

var decisionsFlags struct {
	product string
	status  []string
	since   time.Duration
	limit   int
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List decisions waiting for manual approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, cleanup, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		reqs, err := a.engine.GetPendingApprovals(ctx)
		if err != nil {
			return cli.NewCommandError("pending", err)
		}
		return formatter().FormatTo(cmd.OutOrStdout(), decisionTable(reqs))
	},
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Query stored decisions",
	Long: `Query stored decisions by product, status and age.

Examples:
  pricegate decisions --product sku-1
  pricegate decisions --status applied --status rejected --since 24h -o csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, err := decisionStatuses(decisionsFlags.status)
		if err != nil {
			return err
		}

		a, ctx, cleanup, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		filter := decision.Filter{
			ProductID: decisionsFlags.product,
			Statuses:  statuses,
			Limit:     decisionsFlags.limit,
		}
		if decisionsFlags.since > 0 {
			filter.CreatedSince = time.Now().Add(-decisionsFlags.since)
		}
		reqs, err := a.engine.ListDecisions(ctx, filter)
		if err != nil {
			return cli.NewCommandError("decisions", err)
		}
		return formatter().FormatTo(cmd.OutOrStdout(), decisionTable(reqs))
	},
}

var showCmd = &cobra.Command{
	Use:   "show <decision-id>",
	Short: "Show one decision as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, cleanup, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		req, err := a.engine.GetDecision(ctx, args[0])
		if err != nil {
			return cli.NewCommandError("show", err)
		}
		return cli.NewFormatter(cli.FormatJSON).FormatTo(cmd.OutOrStdout(), req)
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd, decisionsCmd, showCmd)

	decisionsCmd.Flags().StringVar(&decisionsFlags.product, "product", "", "filter by product ID")
	decisionsCmd.Flags().StringSliceVar(&decisionsFlags.status, "status", nil, "filter by status (repeatable)")
	decisionsCmd.Flags().DurationVar(&decisionsFlags.since, "since", 0, "only decisions created within this window")
	decisionsCmd.Flags().IntVar(&decisionsFlags.limit, "limit", 100, "maximum rows (0 for all)")
}

// decisionStatuses parses --status values.
func decisionStatuses(values []string) ([]pricing.Status, error) {
	out := make([]pricing.Status, 0, len(values))
	for _, v := range values {
		s := pricing.Status(v)
		switch s {
		case pricing.StatusPending, pricing.StatusApplied, pricing.StatusRejected,
			pricing.StatusManualReview, pricing.StatusExpired:
			out = append(out, s)
		default:
			return nil, fmt.Errorf("unknown status %q", v)
		}
	}
	return out, nil
}
