package pricing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRecommendation is wrapped by every ValidationError.
	ErrInvalidRecommendation = errors.New("invalid recommendation")

	// ErrDecisionNotFound is returned when a request ID is unknown.
	ErrDecisionNotFound = errors.New("decision not found")

	// ErrRuleNotFound is returned when a rule ID is unknown.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrInvalidRule is wrapped by every RuleError.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrIllegalTransition is returned for a state change the lifecycle forbids.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrDecisionInFlight is returned when a request is waiting on its price
	// update and cannot change state.
	ErrDecisionInFlight = errors.New("decision has a price update in flight")

	// ErrEngineHalted is returned while the engine refuses new recommendations
	// after a fatal failure.
	ErrEngineHalted = errors.New("engine halted")
)

// ValidationError describes a malformed recommendation.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid recommendation: %s %s", e.Field, e.Message)
}

// Unwrap returns ErrInvalidRecommendation.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRecommendation
}

// RuleError lists the problems found in a rule definition.
type RuleError struct {
	RuleID   string
	Problems []string
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	id := e.RuleID
	if id == "" {
		id = "<unnamed>"
	}
	return fmt.Sprintf("invalid rule %s: %s", id, strings.Join(e.Problems, "; "))
}

// Unwrap returns ErrInvalidRule.
func (e *RuleError) Unwrap() error {
	return ErrInvalidRule
}

// TransitionError records a rejected status change.
type TransitionError struct {
	RequestID string
	From      Status
	To        Status
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("decision %s: cannot move from %s to %s", e.RequestID, e.From, e.To)
}

// Unwrap returns ErrIllegalTransition.
func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// StorageError represents a failure in a storage backend.
type StorageError struct {
	Backend   string // "memory", "sqlite", "postgres"
	Operation string // "save", "get", "append", ...
	Cause     error
}

// NewStorageError creates a StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// SinkError wraps a failure reported by an external side-effect receiver.
type SinkError struct {
	Sink      string // "price_update", "approval_required", "recommendation"
	RequestID string
	Cause     error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink failed for decision %s: %v", e.Sink, e.RequestID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *SinkError) Unwrap() error {
	return e.Cause
}
