package domain

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel wrapped by every ConfigurationError.
var ErrConfiguration = errors.New("invalid configuration")

// ErrCancelled is returned when a run was aborted via its context between batches.
var ErrCancelled = errors.New("simulation cancelled")

// ConfigurationError reports malformed input detected before any simulation work begins.
// It is never retried.
type ConfigurationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error implements error
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrConfiguration)
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigurationError creates a ConfigurationError for the given field
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// Partial describes how far a cancelled run got before it stopped.
// Percentiles over a truncated sample are misleading, so a cancelled run
// carries this indicator instead of a report.
type Partial struct {
	CompletedTrials int `json:"completed_trials"`
	TotalTrials     int `json:"total_trials"`
}

// CancelledError wraps ErrCancelled with the partial-progress indicator
type CancelledError struct {
	Partial Partial
}

// Error implements error
func (e *CancelledError) Error() string {
	return fmt.Sprintf("simulation cancelled after %d of %d trials",
		e.Partial.CompletedTrials, e.Partial.TotalTrials)
}

// Unwrap allows errors.Is(err, ErrCancelled)
func (e *CancelledError) Unwrap() error {
	return ErrCancelled
}

// Degeneracy records a numerical degeneracy that made one report field
// undefined (or forced a fallback) without invalidating the rest of the run.
type Degeneracy struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}
