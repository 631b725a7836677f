// Package config provides configuration management for PriceGate.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("pricegate.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("pricegate.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention PRICEGATE_SECTION_FIELD:
//
//   - PRICEGATE_STORAGE_BACKEND overrides storage.backend
//   - PRICEGATE_SINK_WEBHOOK_URL overrides sink.webhook.url
//   - PRICEGATE_SINK_WEBHOOK_TOKEN sets a bearer Authorization header
//   - PRICEGATE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A malformed override (e.g. a bad duration) fails loading instead of being
// ignored.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
//	if err := config.Initialize("pricegate.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
//
// # Example Configuration
//
//	engine:
//	  timezone: "Europe/Berlin"
//	  conflict_policy: "supersede"
//
//	rules:
//	  path: "./rules.yaml"
//	  watch: true
//
//	risk:
//	  controls:
//	    - type: max_adjustment_limit
//	      threshold: 0.15
//	      action: block
//	      enabled: true
//
//	storage:
//	  backend: "sqlite"
//
//	sink:
//	  mode: "webhook"
//	  webhook:
//	    url: "https://shop.example.com/hooks/prices"
package config
