package config

import (
	"fmt"
	"net/url"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

// Config is the root configuration structure for PriceGate.
// It contains all configuration sections for the decision engine, rule
// source, risk layer, storage, outbound sinks, messaging and telemetry.
type Config struct {
	// Engine contains decision engine settings such as the business
	// timezone and the conflict policy for open decisions.
	Engine EngineConfig `yaml:"engine"`

	// Rules contains the rule file location and hot reload settings.
	Rules RulesConfig `yaml:"rules"`

	// Risk contains risk control overrides.
	Risk RiskConfig `yaml:"risk"`

	// Storage selects the backend for decisions and price history.
	Storage StorageConfig `yaml:"storage"`

	// Sink configures where applied prices are written.
	Sink SinkConfig `yaml:"sink"`

	// Messaging configures the NATS connection used for ingestion and
	// outbound events.
	Messaging MessagingConfig `yaml:"messaging"`

	// Scheduler configures the periodic expiry and retention jobs.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Secrets configures how ${secret:name} references are resolved.
	Secrets SecretsConfig `yaml:"secrets"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig contains decision engine settings.
type EngineConfig struct {
	// Timezone is the IANA zone that defines "today" for daily limits and
	// the hour checked against rule active hours.
	// Default: "UTC"
	Timezone string `yaml:"timezone"`

	// DefaultExpiry is how long an open decision waits before the expiry
	// sweep closes it.
	// Default: 24h
	DefaultExpiry time.Duration `yaml:"default_expiry"`

	// ConflictPolicy decides what happens when a product already has an
	// open decision.
	// Options: "reject_new", "supersede"
	// Default: "reject_new"
	ConflictPolicy string `yaml:"conflict_policy"`

	// FreezeWindow is how long a freeze_all control blocks all pricing
	// after it fires. A negative value disables the freeze.
	// Default: 30m
	FreezeWindow time.Duration `yaml:"freeze_window"`

	// BatchWorkers bounds the goroutines used by batch evaluation.
	// Default: 8
	BatchWorkers int `yaml:"batch_workers"`

	// AlertCapacity is the number of risk alerts kept in memory.
	// Default: 1000
	AlertCapacity int `yaml:"alert_capacity"`
}

// Location resolves Timezone.
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(e.Timezone)
}

// RulesConfig contains rule source configuration.
type RulesConfig struct {
	// Path is the YAML file holding the rule set.
	// Default: "./rules.yaml"
	Path string `yaml:"path"`

	// Watch enables hot reload when the file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce coalesces bursts of file events.
	// Default: 500ms
	Debounce time.Duration `yaml:"debounce"`
}

// RiskConfig contains risk control overrides. Controls not listed keep
// their built-in thresholds.
type RiskConfig struct {
	Controls []pricing.RiskControl `yaml:"controls"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is the storage type.
	// Options: "memory", "sqlite", "postgres"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL-specific configuration.
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite storage configuration.
type SQLiteConfig struct {
	// DecisionsPath is the database file for decision requests.
	// Default: "data/decisions.db"
	DecisionsPath string `yaml:"decisions_path"`

	// HistoryPath is the database file for the price history log.
	// Default: "data/history.db"
	HistoryPath string `yaml:"history_path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL storage configuration.
// DSN takes precedence over the individual connection fields.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// SSLMode is passed to the driver.
	// Default: "require"
	SSLMode string `yaml:"ssl_mode"`
}

// ConnString returns the DSN, building it from the individual fields when
// DSN is empty.
func (p PostgresConfig) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

// SinkConfig configures the price sink.
type SinkConfig struct {
	// Mode selects the sink.
	// Options: "log" (dry run), "webhook"
	// Default: "log"
	Mode string `yaml:"mode"`

	// Webhook configures the HTTP storefront sink.
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig configures the HTTP price sink.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds each attempt.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Retries on transport errors, 429 and 5xx.
	// Default: 2
	Retries int `yaml:"retries"`

	// RetryWait is the initial backoff.
	// Default: 500ms
	RetryWait time.Duration `yaml:"retry_wait"`
}

// MessagingConfig configures NATS.
type MessagingConfig struct {
	// Enabled turns on ingestion and outbound events.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// URL is the NATS server URL.
	// Default: "nats://127.0.0.1:4222"
	URL string `yaml:"url"`

	// Queue is the queue group shared by engine replicas.
	// Default: "pricegate"
	Queue string `yaml:"queue"`

	// ReconnectWait is the delay between reconnect attempts.
	// Default: 2s
	ReconnectWait time.Duration `yaml:"reconnect_wait"`

	// MaxReconnects caps reconnect attempts; -1 retries forever.
	// Default: -1
	MaxReconnects int `yaml:"max_reconnects"`

	Subjects SubjectsConfig `yaml:"subjects"`
}

// SubjectsConfig names the NATS subjects.
type SubjectsConfig struct {
	// Default: "pricegate.recommendations"
	Recommendations string `yaml:"recommendations"`

	// Default: "pricegate.approvals"
	Approvals string `yaml:"approvals"`

	// Default: "pricegate.events.approval_required"
	ApprovalRequired string `yaml:"approval_required"`

	// Default: "pricegate.events.recommended"
	Recommended string `yaml:"recommended"`
}

// SchedulerConfig configures the periodic jobs. An empty schedule disables
// the job.
type SchedulerConfig struct {
	// ExpirySchedule is a cron expression for the decision expiry sweep.
	// Default: "*/5 * * * *"
	ExpirySchedule string `yaml:"expiry_schedule"`

	// PruneSchedule is a cron expression for history retention.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// RetentionDays is how long history entries are kept.
	// Default: 90
	RetentionDays int `yaml:"retention_days"`
}

// SecretsConfig configures secret reference resolution for webhook headers
// and PostgreSQL credentials.
type SecretsConfig struct {
	// EnvPrefix is prepended to environment variable lookups.
	// Default: "PRICEGATE_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret. Empty disables file lookups.
	Dir string `yaml:"dir"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// Redact masks credentials such as bearer tokens and DSN passwords.
	// Default: true
	Redact bool `yaml:"redact"`

	// RedactPatterns adds custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern is a custom log redaction rule.
type RedactPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled exposes the Prometheus endpoint.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is where the metrics server listens.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
