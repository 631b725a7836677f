package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PRICEGATE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of Default(), then defaults are applied again
// for fields the file zeroed, and the result is validated.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention PRICEGATE_SECTION_FIELD (e.g., PRICEGATE_STORAGE_BACKEND).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from Default().
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Malformed values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	env := envReader{}

	// Engine overrides
	env.str("ENGINE_TIMEZONE", &cfg.Engine.Timezone)
	env.duration("ENGINE_DEFAULT_EXPIRY", &cfg.Engine.DefaultExpiry)
	env.str("ENGINE_CONFLICT_POLICY", &cfg.Engine.ConflictPolicy)
	env.duration("ENGINE_FREEZE_WINDOW", &cfg.Engine.FreezeWindow)
	env.integer("ENGINE_BATCH_WORKERS", &cfg.Engine.BatchWorkers)

	// Rules overrides
	env.str("RULES_PATH", &cfg.Rules.Path)
	env.boolean("RULES_WATCH", &cfg.Rules.Watch)
	env.duration("RULES_DEBOUNCE", &cfg.Rules.Debounce)

	// Storage overrides
	env.str("STORAGE_BACKEND", &cfg.Storage.Backend)
	env.str("STORAGE_SQLITE_DECISIONS_PATH", &cfg.Storage.SQLite.DecisionsPath)
	env.str("STORAGE_SQLITE_HISTORY_PATH", &cfg.Storage.SQLite.HistoryPath)
	env.duration("STORAGE_SQLITE_BUSY_TIMEOUT", &cfg.Storage.SQLite.BusyTimeout)
	env.str("STORAGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	env.str("STORAGE_POSTGRES_HOST", &cfg.Storage.Postgres.Host)
	env.integer("STORAGE_POSTGRES_PORT", &cfg.Storage.Postgres.Port)
	env.str("STORAGE_POSTGRES_DATABASE", &cfg.Storage.Postgres.Database)
	env.str("STORAGE_POSTGRES_USER", &cfg.Storage.Postgres.User)
	env.str("STORAGE_POSTGRES_PASSWORD", &cfg.Storage.Postgres.Password)
	env.str("STORAGE_POSTGRES_SSL_MODE", &cfg.Storage.Postgres.SSLMode)

	// Sink overrides
	env.str("SINK_MODE", &cfg.Sink.Mode)
	env.str("SINK_WEBHOOK_URL", &cfg.Sink.Webhook.URL)
	env.duration("SINK_WEBHOOK_TIMEOUT", &cfg.Sink.Webhook.Timeout)
	env.integer("SINK_WEBHOOK_RETRIES", &cfg.Sink.Webhook.Retries)
	if token, ok := os.LookupEnv(EnvPrefix + "SINK_WEBHOOK_TOKEN"); ok && token != "" {
		if cfg.Sink.Webhook.Headers == nil {
			cfg.Sink.Webhook.Headers = make(map[string]string)
		}
		cfg.Sink.Webhook.Headers["Authorization"] = "Bearer " + token
	}

	// Messaging overrides
	env.boolean("MESSAGING_ENABLED", &cfg.Messaging.Enabled)
	env.str("MESSAGING_URL", &cfg.Messaging.URL)
	env.str("MESSAGING_QUEUE", &cfg.Messaging.Queue)

	// Scheduler overrides
	env.str("SCHEDULER_EXPIRY_SCHEDULE", &cfg.Scheduler.ExpirySchedule)
	env.str("SCHEDULER_PRUNE_SCHEDULE", &cfg.Scheduler.PruneSchedule)
	env.integer("SCHEDULER_RETENTION_DAYS", &cfg.Scheduler.RetentionDays)

	// Secrets overrides
	env.str("SECRETS_DIR", &cfg.Secrets.Dir)

	// Telemetry overrides
	env.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	env.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	env.boolean("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	env.boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	env.str("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	env.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)

	if len(env.errs) > 0 {
		return ValidationError{Errors: env.errs}
	}
	return nil
}

// envReader reads PRICEGATE_ variables and collects parse failures.
type envReader struct {
	errs []FieldError
}

func (r *envReader) lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (r *envReader) fail(name, msg string) {
	r.errs = append(r.errs, FieldError{Field: EnvPrefix + name, Message: msg})
}

func (r *envReader) str(name string, dst *string) {
	if val, ok := r.lookup(name); ok {
		*dst = val
	}
}

func (r *envReader) duration(name string, dst *time.Duration) {
	if val, ok := r.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			r.fail(name, fmt.Sprintf("invalid duration %q", val))
			return
		}
		*dst = d
	}
}

func (r *envReader) integer(name string, dst *int) {
	if val, ok := r.lookup(name); ok {
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			r.fail(name, fmt.Sprintf("invalid integer %q", val))
			return
		}
		*dst = i
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	if val, ok := r.lookup(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			r.fail(name, fmt.Sprintf("invalid boolean %q", val))
			return
		}
		*dst = b
	}
}
