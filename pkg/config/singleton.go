package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// The process-wide configuration. Commands load it once in their
// PersistentPreRun; library packages take an explicit *Config instead.
var (
	current    atomic.Pointer[Config]
	loadedFrom atomic.Value // string

	initMu sync.Mutex
)

// Initialize loads path with environment overrides and installs the result.
// Once a load has succeeded later calls are no-ops, so every cobra
// subcommand can call it. A failed load leaves nothing installed and may be
// retried.
func Initialize(path string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if current.Load() != nil {
		return nil
	}
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return err
	}
	loadedFrom.Store(path)
	current.Store(cfg)
	return nil
}

// GetConfig returns the installed configuration, or nil before Initialize.
func GetConfig() *Config {
	return current.Load()
}

// MustGetConfig is GetConfig for code that runs only after startup.
func MustGetConfig() *Config {
	cfg := current.Load()
	if cfg == nil {
		panic("config: Initialize has not been called")
	}
	return cfg
}

// SetConfig installs cfg directly. Tests use it to bypass file loading.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// Path returns the file Initialize or ReloadConfig last loaded.
func Path() string {
	p, _ := loadedFrom.Load().(string)
	return p
}

// ReloadConfig loads path and swaps it in. An empty path reloads Path().
// On error the installed configuration is kept.
func ReloadConfig(path string) error {
	if path == "" {
		path = Path()
	}
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("reload %s: %w", path, err)
	}
	loadedFrom.Store(path)
	current.Store(cfg)
	return nil
}

func reset() {
	initMu.Lock()
	defer initMu.Unlock()
	current.Store(nil)
	loadedFrom.Store("")
}
