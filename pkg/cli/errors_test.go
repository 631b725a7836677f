package cli

import (
	"errors"
	"fmt"
	"testing"

	"mercator-hq/pricegate/pkg/pricing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("storage.backend", "unknown backend")

	expected := "config error in storage.backend: unknown backend"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	underlying := errors.New("boom")
	err := NewCommandError("approve", underlying)

	if err.Error() != "approve: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is() should see the wrapped error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", NewConfigError("rules.path", "missing"), ExitConfig},
		{"wrapped config", fmt.Errorf("load: %w", NewConfigError("x", "y")), ExitConfig},
		{"halted", NewCommandError("evaluate", pricing.ErrEngineHalted), ExitHalted},
		{"not found", fmt.Errorf("get: %w", pricing.ErrDecisionNotFound), ExitNotFound},
		{"invalid recommendation", pricing.NewValidationError("confidence", "must be within [0,1]"), ExitUsage},
		{"invalid rule", &pricing.RuleError{RuleID: "r1", Problems: []string{"bad"}}, ExitUsage},
		{"other", errors.New("boom"), ExitFailure},
		{"aborted", ErrAborted, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
