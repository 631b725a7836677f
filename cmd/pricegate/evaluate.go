package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/engine"
	"mercator-hq/pricegate/pkg/pricing"
)

var evaluateFlags struct {
	file       string
	volatility float64
	dryRun     bool
	noProgress bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a file of price recommendations",
	Long: `Evaluate recommendations read from a JSON file (or stdin with "-").

The file holds a single recommendation object or an array of them:

  [{"product_id": "sku-1", "current_price": 100, "recommended_price": 95,
    "confidence": 0.9, "context": {"category": "toys", "unit_cost": 60}}]

Examples:
  # Evaluate a catalog cycle and apply the results
  pricegate evaluate --file cycle.json

  # See what would happen without touching the storefront
  pricegate evaluate --file cycle.json --dry-run --volatility 0.3`,
	RunE: evaluateRecommendations,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evaluateFlags.file, "file", "f", "", "recommendations JSON file, - for stdin")
	evaluateCmd.Flags().Float64Var(&evaluateFlags.volatility, "volatility", -1, "market volatility index (omit when unknown)")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.dryRun, "dry-run", false, "log price updates instead of sending them")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.noProgress, "no-progress", false, "disable the progress bar")
	_ = evaluateCmd.MarkFlagRequired("file")
}

func evaluateRecommendations(cmd *cobra.Command, args []string) error {
	recs, err := readRecommendations(cmd.InOrStdin(), evaluateFlags.file)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
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

	a, err := newApp(ctx, cfg, logger, appOptions{dryRun: evaluateFlags.dryRun})
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	defer a.Close()

	var signals pricing.MarketSignals
	if evaluateFlags.volatility >= 0 {
		v := evaluateFlags.volatility
		signals.Volatility = &v
	}

	var done func(int, engine.BatchResult)
	if len(recs) > 1 && !evaluateFlags.noProgress && outputFmt == string(cli.FormatText) {
		progress := cli.NewProgressReporter(cmd.ErrOrStderr())
		progress.Start(int64(len(recs)))
		defer progress.Finish()
		done = func(_ int, r engine.BatchResult) { progress.Increment(r.Err != nil) }
	}

	results := a.engine.EvaluateBatchFunc(ctx, recs, signals, cfg.Engine.BatchWorkers, done)
	if err := formatter().FormatTo(cmd.OutOrStdout(), batchTable(results)); err != nil {
		return err
	}

	if err := a.engine.Halted(); err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	return nil
}

// readRecommendations accepts one recommendation object or an array.
func readRecommendations(stdin io.Reader, path string) ([]pricing.Recommendation, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read recommendations: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no recommendations in %s", path)
	}

	var recs []pricing.Recommendation
	if data[0] == '[' {
		err = json.Unmarshal(data, &recs)
	} else {
		var rec pricing.Recommendation
		err = json.Unmarshal(data, &rec)
		recs = append(recs, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	return recs, nil
}

func batchTable(results []engine.BatchResult) *cli.Table {
	table := &cli.Table{Headers: []string{"Product", "Current", "Recommended", "Change", "Status", "Decision", "Reason"}}
	for _, r := range results {
		rec := r.Recommendation
		if r.Err != nil {
			table.Append(rec.ProductID, price(rec.CurrentPrice), price(rec.RecommendedPrice),
				percent(pricing.ChangePct(rec.CurrentPrice, rec.RecommendedPrice)),
				styled(cli.ErrorStyle, "error"), "", r.Err.Error())
			continue
		}
		d := r.Decision
		table.Append(d.ProductID, price(d.CurrentPrice), price(d.RecommendedPrice), percent(d.ChangePct()),
			statusLabel(d.Status), d.ID, d.ApprovalReason)
	}
	return table
}
