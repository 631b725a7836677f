package cli

import (
	"errors"
	"fmt"

	"mercator-hq/pricegate/pkg/pricing"
)

// Exit codes returned by the pricegate binary.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitConfig   = 3
	ExitHalted   = 4
	ExitNotFound = 5
)

// ErrAborted is returned when the operator declines a confirmation prompt.
var ErrAborted = errors.New("aborted by operator")

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.Is(err, pricing.ErrEngineHalted):
		return ExitHalted
	case errors.Is(err, pricing.ErrDecisionNotFound), errors.Is(err, pricing.ErrRuleNotFound):
		return ExitNotFound
	case errors.Is(err, pricing.ErrInvalidRecommendation), errors.Is(err, pricing.ErrInvalidRule):
		return ExitUsage
	}
	return ExitFailure
}
