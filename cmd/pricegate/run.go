package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/history"
	"mercator-hq/pricegate/pkg/ingest"
	"mercator-hq/pricegate/pkg/rules"
	"mercator-hq/pricegate/pkg/scheduler"
	"mercator-hq/pricegate/pkg/telemetry/health"
)

var runFlags struct {
	metricsAddress string
	logLevel       string
	dryRun         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the PriceGate engine service",
	Long: `Start the decision engine as a long-running service.

The service:
  - Consumes recommendations and approvals from NATS (messaging.enabled)
  - Expires stale decisions and prunes price history on a cron schedule
  - Hot reloads the rules file (rules.watch) or on SIGHUP
  - Serves Prometheus metrics and /healthz, /readyz, /version probes
    (telemetry.metrics.enabled)

Examples:
  # Start with a config file
  pricegate run --config /etc/pricegate/pricegate.yaml

  # Log price updates instead of calling the storefront
  pricegate run --dry-run`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.metricsAddress, "metrics-listen", "", "override metrics listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "log price updates instead of sending them")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.metricsAddress != "" {
		cfg.Telemetry.Metrics.ListenAddress = runFlags.metricsAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{dryRun: runFlags.dryRun})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "PriceGate v%s\n", Version)
	fmt.Fprintf(out, "Configuration: %s\n", configSource())

	var watcher *rules.Watcher
	if cfg.Rules.Watch {
		watcher, err = rules.NewWatcher(cfg.Rules.Path, a.rules, cfg.Rules.Debounce, logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		watcher.OnReload(a.engine.ReloadRules)
		go func() {
			if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("rules watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
		fmt.Fprintf(out, "%s Watching %s\n", cli.SuccessStyle.Render("✓"), cfg.Rules.Path)
	}

	sched := scheduler.New(logger)
	if cfg.Scheduler.ExpirySchedule != "" {
		if err := sched.Add("expire", cfg.Scheduler.ExpirySchedule, a.engine.ExpireDue); err != nil {
			return cli.NewCommandError("run", err)
		}
	}
	if cfg.Scheduler.PruneSchedule != "" {
		retention := time.Duration(cfg.Scheduler.RetentionDays) * 24 * time.Hour
		pruner := history.NewPruner(a.history, retention, logger)
		if err := sched.Add("prune", cfg.Scheduler.PruneSchedule, pruner.Prune); err != nil {
			return cli.NewCommandError("run", err)
		}
	}
	if err := sched.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer sched.Stop()
	if next := sched.NextRun("expire"); next != nil {
		logger.Debug("expiry sweep scheduled", "next_run", next)
	}

	if a.nats != nil {
		consumer := ingest.NewConsumer(ingest.NewHandler(a.engine, a.engine, logger), logger)
		if err := consumer.Start(ctx, a.nats, ingest.Subjects{
			Recommendations: cfg.Messaging.Subjects.Recommendations,
			Approvals:       cfg.Messaging.Subjects.Approvals,
			Queue:           cfg.Messaging.Queue,
		}); err != nil {
			return cli.NewCommandError("run", err)
		}
		defer consumer.Stop()
		fmt.Fprintf(out, "%s Consuming %s\n", cli.SuccessStyle.Render("✓"), cfg.Messaging.Subjects.Recommendations)
	}

	errChan := make(chan error, 1)
	var metricsSrv *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Telemetry.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		}))
		a.healthChecker().Register(mux, health.VersionInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildTime: BuildDate,
		})
		metricsSrv = &http.Server{
			Addr:              cfg.Telemetry.Metrics.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		fmt.Fprintf(out, "%s Metrics endpoint: http://%s%s\n", cli.SuccessStyle.Render("✓"),
			cfg.Telemetry.Metrics.ListenAddress, cfg.Telemetry.Metrics.Path)
	}

	reload, stopReload := cli.ReloadSignal()
	defer stopReload()

	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
	logger.Info("engine started", "storage", cfg.Storage.Backend, "sink", cfg.Sink.Mode, "dry_run", runFlags.dryRun)

	for {
		select {
		case err := <-errChan:
			return cli.NewCommandError("run", err)

		case <-reload:
			if err := reloadRules(ctx, a, cfg.Rules.Path); err != nil {
				logger.Error("rules reload failed; keeping current rules", "path", cfg.Rules.Path, "error", err)
				continue
			}
			logger.Info("rules reloaded on SIGHUP", "path", cfg.Rules.Path)

		case <-ctx.Done():
			fmt.Fprintln(out, "\nShutting down...")
			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
					logger.Error("metrics server shutdown failed", "error", err)
				}
			}
			fmt.Fprintf(out, "%s Engine stopped\n", cli.SuccessStyle.Render("✓"))
			return nil
		}
	}
}

// reloadRules swaps the rule set from path. A successful reload also
// clears a halt caused by an unreadable rule store.
func reloadRules(ctx context.Context, a *app, path string) error {
	loaded, err := rules.LoadFile(path)
	if err != nil {
		return err
	}
	return a.engine.ReloadRules(ctx, loaded)
}
