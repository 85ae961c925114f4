package helpers

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type PipelineError struct {
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As checks at call sites
type ConfigurationError struct{ PipelineError }
type NetworkError struct{ PipelineError }
type DataSourceError struct{ PipelineError }
type DatabaseError struct{ PipelineError }
type ValidationError struct{ PipelineError }

// -----------------------------------------------------------------------------

func NewNetworkError(msg string, cause error) *NetworkError {
	return &NetworkError{PipelineError{Message: msg, Cause: cause}}
}

func NewDatabaseError(msg string, cause error) *DatabaseError {
	return &DatabaseError{PipelineError{Message: msg, Cause: cause}}
}

func NewValidationError(msg string, cause error) *ValidationError {
	return &ValidationError{PipelineError{Message: msg, Cause: cause}}
}

func NewDataSourceError(msg string, cause error) *DataSourceError {
	return &DataSourceError{PipelineError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Resilience Rejections
// -----------------------------------------------------------------------------

// Sentinel errors returned by the failure-control primitives. Callers match
// with errors.Is to distinguish rejections from upstream failures.
var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrQueueFull        = errors.New("bulkhead queue is full")
	ErrQueueTimeout     = errors.New("task expired in bulkhead queue")
	ErrExecutionTimeout = errors.New("task execution timed out")
	ErrPoolFull         = errors.New("connection pool is full")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

// -----------------------------------------------------------------------------

// IsRejection reports whether err is a load-shedding rejection rather than a
// genuine upstream failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrQueueTimeout) ||
		errors.Is(err, ErrRateLimited)
}
