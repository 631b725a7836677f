package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/pricegate/pkg/config"
	"mercator-hq/pricegate/pkg/decision"
	decisionstorage "mercator-hq/pricegate/pkg/decision/storage"
	"mercator-hq/pricegate/pkg/engine"
	"mercator-hq/pricegate/pkg/history"
	historystorage "mercator-hq/pricegate/pkg/history/storage"
	"mercator-hq/pricegate/pkg/risk"
	"mercator-hq/pricegate/pkg/rules"
	"mercator-hq/pricegate/pkg/security/secrets"
	"mercator-hq/pricegate/pkg/sink"
	"mercator-hq/pricegate/pkg/telemetry/health"
	"mercator-hq/pricegate/pkg/telemetry/logging"
)

// app holds the wired engine and everything that must be closed with it.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	rules     *rules.Registry
	history   history.Store
	decisions decision.Store
	engine    *engine.Engine
	nats      *nats.Conn
}

// appOptions adjust wiring for one-shot commands.
type appOptions struct {
	// dryRun forces the logging sink regardless of sink.mode.
	dryRun bool

	// offline skips rule loading and messaging and never calls the
	// storefront. Used by query and maintenance commands.
	offline bool
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

// newApp wires storage, sinks, messaging and the engine from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	resolver, err := newSecretResolver(cfg.Secrets, logger)
	if err != nil {
		return a, err
	}
	storageCfg := cfg.Storage
	if storageCfg.Backend == "postgres" {
		if storageCfg.Postgres.DSN, err = resolver.Resolve(ctx, storageCfg.Postgres.DSN); err != nil {
			return a, fmt.Errorf("storage.postgres.dsn: %w", err)
		}
		if storageCfg.Postgres.Password, err = resolver.Resolve(ctx, storageCfg.Postgres.Password); err != nil {
			return a, fmt.Errorf("storage.postgres.password: %w", err)
		}
	}

	a.decisions, a.history, err = openStores(storageCfg)
	if err != nil {
		return a, err
	}
	logger.Debug("storage opened", "backend", cfg.Storage.Backend)

	loc, err := cfg.Engine.Location()
	if err != nil {
		return a, fmt.Errorf("engine timezone: %w", err)
	}

	a.rules = rules.NewRegistry(rules.NewMemoryStore(), logger)
	if !opts.offline {
		loaded, err := rules.LoadFile(cfg.Rules.Path)
		if err != nil {
			return a, err
		}
		if err := a.rules.Replace(ctx, loaded); err != nil {
			return a, err
		}
		logger.Info("rules loaded", "path", cfg.Rules.Path, "count", len(loaded))
	}

	layer, err := risk.NewLayer(risk.Config{
		Controls:      cfg.Risk.Controls,
		FreezeWindow:  cfg.Engine.FreezeWindow,
		AlertCapacity: cfg.Engine.AlertCapacity,
	}, logger)
	if err != nil {
		return a, fmt.Errorf("risk controls: %w", err)
	}

	sinkCfg := cfg.Sink
	if !opts.dryRun && !opts.offline && sinkCfg.Mode == "webhook" {
		if sinkCfg.Webhook.Headers, err = resolver.ResolveMap(ctx, sinkCfg.Webhook.Headers); err != nil {
			return a, fmt.Errorf("sink.webhook.headers: %w", err)
		}
	}
	priceSink, err := newPriceSink(sinkCfg, opts.dryRun || opts.offline, logger)
	if err != nil {
		return a, err
	}

	notifiers := sink.Fanout{sink.NewLogNotifier(logger)}
	if cfg.Messaging.Enabled && !opts.offline {
		a.nats, err = connectNATS(cfg.Messaging, logger)
		if err != nil {
			return a, err
		}
		natsNotifier, err := sink.NewNATSNotifier(a.nats, sink.Subjects{
			Approvals:       cfg.Messaging.Subjects.ApprovalRequired,
			Recommendations: cfg.Messaging.Subjects.Recommended,
		})
		if err != nil {
			return a, err
		}
		notifiers = append(notifiers, natsNotifier)
	}

	a.engine, err = engine.New(engine.Config{
		Rules:           a.rules,
		Tracker:         history.NewTracker(a.history, loc),
		Decisions:       a.decisions,
		Risk:            layer,
		Sink:            priceSink,
		Approvals:       notifiers,
		Recommendations: notifiers,
		ConflictPolicy:  engine.ConflictPolicy(cfg.Engine.ConflictPolicy),
		Expiry:          cfg.Engine.DefaultExpiry,
		Metrics:         engine.NewMetrics(a.registry),
		Logger:          logger,
	})
	if err != nil {
		return a, err
	}
	return a, nil
}

// Close releases messaging and storage.
func (a *app) Close() error {
	var errs []error
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
	}
	if a.decisions != nil {
		if err := a.decisions.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newSecretResolver checks the environment first, then the secrets
// directory when one is configured.
func newSecretResolver(cfg config.SecretsConfig, logger *slog.Logger) (*secrets.Resolver, error) {
	providers := []secrets.Provider{secrets.NewEnvProvider(cfg.EnvPrefix)}
	if cfg.Dir != "" {
		files, err := secrets.NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, files)
	}
	return secrets.NewResolver(logger, providers...), nil
}

func openStores(cfg config.StorageConfig) (decision.Store, history.Store, error) {
	switch cfg.Backend {
	case "memory":
		return decisionstorage.NewMemoryStore(), historystorage.NewMemoryStore(), nil

	case "sqlite":
		for _, p := range []string{cfg.SQLite.DecisionsPath, cfg.SQLite.HistoryPath} {
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		decisions, err := decisionstorage.NewSQLiteStore(cfg.SQLite.DecisionsPath)
		if err != nil {
			return nil, nil, err
		}
		hist, err := historystorage.NewSQLiteStoreWithConfig(historystorage.SQLiteConfig{
			Path:        cfg.SQLite.HistoryPath,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			decisions.Close()
			return nil, nil, err
		}
		return decisions, hist, nil

	case "postgres":
		db, err := historystorage.OpenPostgres(cfg.Postgres.ConnString())
		if err != nil {
			return nil, nil, err
		}
		hist, err := historystorage.NewPostgresStore(db)
		if err != nil {
			return nil, nil, err
		}
		decisions, err := decisionstorage.NewPostgresStore(db)
		if err != nil {
			hist.Close()
			return nil, nil, err
		}
		return decisions, hist, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func newPriceSink(cfg config.SinkConfig, dryRun bool, logger *slog.Logger) (decision.PriceSink, error) {
	if dryRun || cfg.Mode == "log" {
		return sink.NewLogSink(logger), nil
	}
	return sink.NewWebhookSink(sink.WebhookConfig{
		URL:       cfg.Webhook.URL,
		Timeout:   cfg.Webhook.Timeout,
		Headers:   cfg.Webhook.Headers,
		Retries:   cfg.Webhook.Retries,
		RetryWait: cfg.Webhook.RetryWait,
	}, logger)
}

func connectNATS(cfg config.MessagingConfig, logger *slog.Logger) (*nats.Conn, error) {
	log := logger.With("component", "nats")
	nc, err := nats.Connect(cfg.URL,
		nats.Name("pricegate"),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Debug("connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	log.Info("connected", "url", nc.ConnectedUrl())
	return nc, nil
}

// healthChecker registers readiness checks for storage, the engine halt
// state and messaging.
func (a *app) healthChecker() *health.Checker {
	checker := health.New(2 * time.Second)
	checker.RegisterCheck("storage", func(ctx context.Context) error {
		_, err := a.decisions.Query(ctx, decision.Filter{Limit: 1})
		return err
	})
	checker.RegisterCheck("engine", func(context.Context) error {
		return a.engine.Halted()
	})
	checker.RegisterCheck("rules", func(ctx context.Context) error {
		loaded, err := a.rules.List(ctx)
		if err != nil {
			return err
		}
		if len(loaded) == 0 {
			return errors.New("no rules loaded")
		}
		return nil
	})
	if a.nats != nil {
		checker.RegisterCheck("nats", func(context.Context) error {
			if !a.nats.IsConnected() {
				return fmt.Errorf("nats %s", a.nats.Status())
			}
			return nil
		})
	}
	return checker
}

// withTimeout bounds one-shot commands.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*time.Minute)
}
