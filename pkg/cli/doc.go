/*
Package cli provides command-line helpers for the pricegate binary.

Output Formatting:

Commands build a *Table and hand it to a Formatter chosen by --output:

	table := &cli.Table{Headers: []string{"ID", "Product", "Status"}}
	table.Append(req.ID, req.ProductID, string(req.Status))
	if err := cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, table); err != nil {
		return err
	}

Progress Reporting:

Batch evaluation reports settled recommendations from worker goroutines:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(recs)))
	eng.EvaluateBatchFunc(ctx, recs, signals, workers, func(_ int, r engine.BatchResult) {
		progress.Increment(r.Err != nil)
	})
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Exit Codes:

ExitCode maps command errors to process exit codes so scripts can tell a
halted engine or a missing decision apart from a generic failure.
*/
package cli
