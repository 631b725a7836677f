package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/telemetry/logging"
)

var approveFlags struct {
	reject   bool
	approver string
	yes      bool
	dryRun   bool
}

var approveCmd = &cobra.Command{
	Use:   "approve <decision-id>",
	Short: "Approve or reject a decision waiting in manual review",
	Long: `Resolve a decision in manual review. Approving applies the recommended
price through the configured sink; rejecting closes the decision.

Examples:
  # Approve after an interactive confirmation
  pricegate approve 0b8f6c1e-... --approver ops@example.com

  # Reject without prompting (scripts)
  pricegate approve 0b8f6c1e-... --reject --yes`,
	Args: cobra.ExactArgs(1),
	RunE: approveDecision,
}

func init() {
	rootCmd.AddCommand(approveCmd)

	approveCmd.Flags().BoolVar(&approveFlags.reject, "reject", false, "reject instead of approve")
	approveCmd.Flags().StringVar(&approveFlags.approver, "approver", "", "operator recorded on the decision (default $USER)")
	approveCmd.Flags().BoolVarP(&approveFlags.yes, "yes", "y", false, "skip the confirmation prompt")
	approveCmd.Flags().BoolVar(&approveFlags.dryRun, "dry-run", false, "log the price update instead of sending it")
}

func approveDecision(cmd *cobra.Command, args []string) error {
	id := args[0]
	approver := approveFlags.approver
	if approver == "" {
		approver = os.Getenv("USER")
	}
	if approver == "" {
		return fmt.Errorf("--approver is required when $USER is unset")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()
	ctx = logging.WithActor(logging.WithRequestID(ctx, id), approver)

	a, err := newApp(ctx, cfg, logger, appOptions{dryRun: approveFlags.dryRun})
	if err != nil {
		return cli.NewCommandError("approve", err)
	}
	defer a.Close()

	req, err := a.engine.GetDecision(ctx, id)
	if err != nil {
		return cli.NewCommandError("approve", err)
	}

	verb := "Approve"
	if approveFlags.reject {
		verb = "Reject"
	}
	if !approveFlags.yes {
		ok, err := confirm(fmt.Sprintf("%s %s for %s: %s -> %s (%s)?", verb, req.ID, req.ProductID,
			price(req.CurrentPrice), price(req.RecommendedPrice), percent(req.ChangePct())))
		if err != nil {
			return err
		}
		if !ok {
			return cli.ErrAborted
		}
	}

	applied, err := a.engine.Approve(ctx, id, !approveFlags.reject, approver)
	if err != nil {
		return cli.NewCommandError("approve", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case applied:
		fmt.Fprintf(out, "%s %s applied %s -> %s\n", styled(cli.SuccessStyle, "✓"), req.ProductID,
			price(req.CurrentPrice), price(req.RecommendedPrice))
	case approveFlags.reject:
		fmt.Fprintf(out, "%s %s rejected\n", styled(cli.ErrorStyle, "✗"), id)
	default:
		// The price write failed and the decision went back to review.
		after, err := a.engine.GetDecision(ctx, id)
		if err != nil {
			return cli.NewCommandError("approve", err)
		}
		return cli.NewCommandError("approve", fmt.Errorf("decision %s is %s: %s", id, after.Status, after.ApprovalReason))
	}
	return nil
}

// confirm asks a yes/no question. Ctrl+C counts as no.
func confirm(message string) (bool, error) {
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok)
	if errors.Is(err, terminal.InterruptErr) {
		return false, cli.ErrAborted
	}
	if err != nil {
		return false, fmt.Errorf("confirmation prompt (use --yes when not on a terminal): %w", err)
	}
	return ok, nil
}
