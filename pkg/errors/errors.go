// Package errors defines unified error types for the optimization pipeline.
// Every stage failure is mapped to one of these standard error types so the
// orchestrator can decide between degrading and surfacing.
package errors

import (
	"errors"
	"fmt"
)

// Common error types as constants for consistency.
const (
	TypeValidation       = "validation_error"
	TypeCapacity         = "capacity_error"
	TypeTimeout          = "timeout_error"
	TypeBackend          = "backend_error"
	TypeDegradedFallback = "degraded_fallback"
)

// PipelineError represents a standardized error from a pipeline stage.
// It contains everything needed for fallback decisions, logging, and
// telemetry.
type PipelineError struct {
	Type      string `json:"type"`
	Stage     string `json:"stage,omitempty"`
	Message   string `json:"message"`
	Operation string `json:"operation,omitempty"`
	Retryable bool   `json:"-"`

	cause error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s (stage=%s, operation=%s)", e.Type, e.Message, e.Stage, e.Operation)
	}
	return fmt.Sprintf("[%s] %s (operation=%s)", e.Type, e.Message, e.Operation)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *PipelineError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error.
func (e *PipelineError) WithCause(err error) *PipelineError {
	e.cause = err
	return e
}

// NewValidationError creates an error for a malformed request.
func NewValidationError(operation, message string) *PipelineError {
	return &PipelineError{
		Type:      TypeValidation,
		Message:   message,
		Operation: operation,
		Retryable: false,
	}
}

// NewCapacityError creates an error for a full queue or table.
func NewCapacityError(stage, operation, message string) *PipelineError {
	return &PipelineError{
		Type:      TypeCapacity,
		Stage:     stage,
		Message:   message,
		Operation: operation,
		Retryable: true,
	}
}

// NewTimeoutError creates an error for a result that was not ready in time.
func NewTimeoutError(stage, operation, message string) *PipelineError {
	return &PipelineError{
		Type:      TypeTimeout,
		Stage:     stage,
		Message:   message,
		Operation: operation,
		Retryable: true,
	}
}

// NewBackendError creates an error for a failed external backend call.
func NewBackendError(operation, message string) *PipelineError {
	return &PipelineError{
		Type:      TypeBackend,
		Stage:     "backend_call",
		Message:   message,
		Operation: operation,
		Retryable: true,
	}
}

// NewDegradedFallbackError records a non-fatal stage failure. The pipeline
// still returns a result via an uncached, unbatched direct call; this error
// is emitted as telemetry only, never surfaced to the caller.
func NewDegradedFallbackError(stage, operation, message string) *PipelineError {
	return &PipelineError{
		Type:      TypeDegradedFallback,
		Stage:     stage,
		Message:   message,
		Operation: operation,
		Retryable: false,
	}
}

// IsType reports whether err is a PipelineError of the given type.
func IsType(err error, errType string) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == errType
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsType(err, TypeValidation) }

// IsCapacity reports whether err is a capacity error.
func IsCapacity(err error) bool { return IsType(err, TypeCapacity) }

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool { return IsType(err, TypeTimeout) }

// IsBackend reports whether err is a backend error.
func IsBackend(err error) bool { return IsType(err, TypeBackend) }
