package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/pricegate/pkg/risk"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateRules(&cfg.Rules)...)
	errs = append(errs, validateRisk(&cfg.Risk)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateSink(&cfg.Sink)...)
	errs = append(errs, validateMessaging(&cfg.Messaging)...)
	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError

	if _, err := cfg.Location(); err != nil {
		errs = append(errs, FieldError{
			Field:   "engine.timezone",
			Message: fmt.Sprintf("unknown timezone %q", cfg.Timezone),
		})
	}
	if cfg.DefaultExpiry <= 0 {
		errs = append(errs, FieldError{
			Field:   "engine.default_expiry",
			Message: "must be positive",
		})
	}
	switch cfg.ConflictPolicy {
	case "reject_new", "supersede":
	default:
		errs = append(errs, FieldError{
			Field:   "engine.conflict_policy",
			Message: fmt.Sprintf("must be one of: reject_new, supersede (got %q)", cfg.ConflictPolicy),
		})
	}
	if cfg.BatchWorkers < 1 {
		errs = append(errs, FieldError{
			Field:   "engine.batch_workers",
			Message: "must be at least 1",
		})
	}
	if cfg.AlertCapacity < 1 {
		errs = append(errs, FieldError{
			Field:   "engine.alert_capacity",
			Message: "must be at least 1",
		})
	}
	return errs
}

func validateRules(cfg *RulesConfig) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(cfg.Path) == "" {
		errs = append(errs, FieldError{Field: "rules.path", Message: "field is required"})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "rules.debounce", Message: "must not be negative"})
	}
	return errs
}

func validateRisk(cfg *RiskConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool)
	for i, c := range cfg.Controls {
		field := fmt.Sprintf("risk.controls[%d]", i)
		if err := risk.ValidateControl(c); err != nil {
			errs = append(errs, FieldError{Field: field, Message: err.Error()})
			continue
		}
		if seen[string(c.Type)] {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("duplicate control %s", c.Type)})
		}
		seen[string(c.Type)] = true
	}
	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.DecisionsPath == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.decisions_path", Message: "field is required"})
		}
		if cfg.SQLite.HistoryPath == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.history_path", Message: "field is required"})
		}
		if cfg.SQLite.DecisionsPath != "" && cfg.SQLite.DecisionsPath == cfg.SQLite.HistoryPath {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.history_path",
				Message: "must differ from decisions_path",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.busy_timeout", Message: "must not be negative"})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			if cfg.Postgres.Host == "" {
				errs = append(errs, FieldError{Field: "storage.postgres.host", Message: "host or dsn is required"})
			}
			if cfg.Postgres.Database == "" {
				errs = append(errs, FieldError{Field: "storage.postgres.database", Message: "database or dsn is required"})
			}
		}
		if cfg.Postgres.Port < 1 || cfg.Postgres.Port > 65535 {
			errs = append(errs, FieldError{Field: "storage.postgres.port", Message: "must be between 1 and 65535"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("must be one of: memory, sqlite, postgres (got %q)", cfg.Backend),
		})
	}
	return errs
}

func validateSink(cfg *SinkConfig) []FieldError {
	var errs []FieldError

	switch cfg.Mode {
	case "log":
	case "webhook":
		if cfg.Webhook.URL == "" {
			errs = append(errs, FieldError{Field: "sink.webhook.url", Message: "field is required when mode is webhook"})
		} else if err := validateURL(cfg.Webhook.URL, "http", "https"); err != nil {
			errs = append(errs, FieldError{Field: "sink.webhook.url", Message: err.Error()})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "sink.mode",
			Message: fmt.Sprintf("must be one of: log, webhook (got %q)", cfg.Mode),
		})
	}
	if cfg.Webhook.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "sink.webhook.timeout", Message: "must be positive"})
	}
	if cfg.Webhook.Retries < 0 {
		errs = append(errs, FieldError{Field: "sink.webhook.retries", Message: "must not be negative"})
	}
	return errs
}

func validateMessaging(cfg *MessagingConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if err := validateURL(cfg.URL, "nats", "tls", "ws", "wss"); err != nil {
		errs = append(errs, FieldError{Field: "messaging.url", Message: err.Error()})
	}
	subjects := map[string]string{
		"messaging.subjects.recommendations":   cfg.Subjects.Recommendations,
		"messaging.subjects.approvals":         cfg.Subjects.Approvals,
		"messaging.subjects.approval_required": cfg.Subjects.ApprovalRequired,
		"messaging.subjects.recommended":       cfg.Subjects.Recommended,
	}
	for field, subject := range subjects {
		if strings.ContainsAny(subject, " \t") {
			errs = append(errs, FieldError{Field: field, Message: "must not contain whitespace"})
		}
	}
	if cfg.ReconnectWait < 0 {
		errs = append(errs, FieldError{Field: "messaging.reconnect_wait", Message: "must not be negative"})
	}
	return errs
}

func validateScheduler(cfg *SchedulerConfig) []FieldError {
	var errs []FieldError
	for field, spec := range map[string]string{
		"scheduler.expiry_schedule": cfg.ExpirySchedule,
		"scheduler.prune_schedule":  cfg.PruneSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}
	if cfg.RetentionDays < 1 {
		errs = append(errs, FieldError{Field: "scheduler.retention_days", Message: "must be at least 1"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be one of: json, text (got %q)", cfg.Logging.Format),
		})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		if p.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: "field is required",
			})
		}
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}
	return errs
}

// validateURL checks that raw parses with one of the allowed schemes.
func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("URL must include a host")
			}
			return nil
		}
	}
	return fmt.Errorf("URL scheme must be one of %s (got %q)", strings.Join(schemes, ", "), u.Scheme)
}
