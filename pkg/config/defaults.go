package config

import "time"

// Default values for configuration fields.
const (
	// Engine defaults
	DefaultTimezone       = "UTC"
	DefaultExpiry         = 24 * time.Hour
	DefaultConflictPolicy = "reject_new"
	DefaultFreezeWindow   = 30 * time.Minute
	DefaultBatchWorkers   = 8
	DefaultAlertCapacity  = 1000

	// Rules defaults
	DefaultRulesPath     = "./rules.yaml"
	DefaultRulesDebounce = 500 * time.Millisecond

	// Storage defaults
	DefaultStorageBackend      = "sqlite"
	DefaultSQLiteDecisionsPath = "data/decisions.db"
	DefaultSQLiteHistoryPath   = "data/history.db"
	DefaultSQLiteBusyTimeout   = 5 * time.Second
	DefaultPostgresPort        = 5432
	DefaultPostgresSSLMode     = "require"

	// Sink defaults
	DefaultSinkMode         = "log"
	DefaultWebhookTimeout   = 10 * time.Second
	DefaultWebhookRetries   = 2
	DefaultWebhookRetryWait = 500 * time.Millisecond

	// Messaging defaults
	DefaultNATSURL                  = "nats://127.0.0.1:4222"
	DefaultNATSQueue                = "pricegate"
	DefaultNATSReconnectWait        = 2 * time.Second
	DefaultNATSMaxReconnects        = -1
	DefaultSubjectRecommendations   = "pricegate.recommendations"
	DefaultSubjectApprovals         = "pricegate.approvals"
	DefaultSubjectApprovalRequired  = "pricegate.events.approval_required"
	DefaultSubjectRecommendedEvents = "pricegate.events.recommended"

	// Scheduler defaults
	DefaultExpirySchedule = "*/5 * * * *"
	DefaultPruneSchedule  = "0 3 * * *"
	DefaultRetentionDays  = 90

	// Secrets defaults
	DefaultSecretsEnvPrefix = "PRICEGATE_SECRET_"

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultLoggingRedact        = true
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"
)

// Default returns a configuration with every default applied, including
// the boolean defaults that ApplyDefaults cannot infer from zero values.
// LoadConfig decodes YAML on top of it.
func Default() *Config {
	cfg := &Config{}
	cfg.Telemetry.Logging.Redact = DefaultLoggingRedact
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Messaging.MaxReconnects = DefaultNATSMaxReconnects
	cfg.Scheduler.ExpirySchedule = DefaultExpirySchedule
	cfg.Scheduler.PruneSchedule = DefaultPruneSchedule
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.Timezone == "" {
		cfg.Engine.Timezone = DefaultTimezone
	}
	if cfg.Engine.DefaultExpiry == 0 {
		cfg.Engine.DefaultExpiry = DefaultExpiry
	}
	if cfg.Engine.ConflictPolicy == "" {
		cfg.Engine.ConflictPolicy = DefaultConflictPolicy
	}
	// Negative disables the freeze, so only zero takes the default
	if cfg.Engine.FreezeWindow == 0 {
		cfg.Engine.FreezeWindow = DefaultFreezeWindow
	}
	if cfg.Engine.BatchWorkers == 0 {
		cfg.Engine.BatchWorkers = DefaultBatchWorkers
	}
	if cfg.Engine.AlertCapacity == 0 {
		cfg.Engine.AlertCapacity = DefaultAlertCapacity
	}

	// Rules defaults
	if cfg.Rules.Path == "" {
		cfg.Rules.Path = DefaultRulesPath
	}
	if cfg.Rules.Debounce == 0 {
		cfg.Rules.Debounce = DefaultRulesDebounce
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.DecisionsPath == "" {
		cfg.Storage.SQLite.DecisionsPath = DefaultSQLiteDecisionsPath
	}
	if cfg.Storage.SQLite.HistoryPath == "" {
		cfg.Storage.SQLite.HistoryPath = DefaultSQLiteHistoryPath
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.Postgres.Port == 0 {
		cfg.Storage.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Storage.Postgres.SSLMode == "" {
		cfg.Storage.Postgres.SSLMode = DefaultPostgresSSLMode
	}

	// Sink defaults
	if cfg.Sink.Mode == "" {
		cfg.Sink.Mode = DefaultSinkMode
	}
	if cfg.Sink.Webhook.Timeout == 0 {
		cfg.Sink.Webhook.Timeout = DefaultWebhookTimeout
	}
	if cfg.Sink.Webhook.Retries == 0 {
		cfg.Sink.Webhook.Retries = DefaultWebhookRetries
	}
	if cfg.Sink.Webhook.RetryWait == 0 {
		cfg.Sink.Webhook.RetryWait = DefaultWebhookRetryWait
	}

	// Messaging defaults
	if cfg.Messaging.URL == "" {
		cfg.Messaging.URL = DefaultNATSURL
	}
	if cfg.Messaging.Queue == "" {
		cfg.Messaging.Queue = DefaultNATSQueue
	}
	if cfg.Messaging.ReconnectWait == 0 {
		cfg.Messaging.ReconnectWait = DefaultNATSReconnectWait
	}
	applySubjectDefaults(&cfg.Messaging.Subjects)

	// Scheduler defaults. Schedules are left alone so an explicit empty
	// string can disable a job; Default() seeds them.
	if cfg.Scheduler.RetentionDays == 0 {
		cfg.Scheduler.RetentionDays = DefaultRetentionDays
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}

func applySubjectDefaults(s *SubjectsConfig) {
	if s.Recommendations == "" {
		s.Recommendations = DefaultSubjectRecommendations
	}
	if s.Approvals == "" {
		s.Approvals = DefaultSubjectApprovals
	}
	if s.ApprovalRequired == "" {
		s.ApprovalRequired = DefaultSubjectApprovalRequired
	}
	if s.Recommended == "" {
		s.Recommended = DefaultSubjectRecommendedEvents
	}
}
