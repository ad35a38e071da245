package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches any *ValidationError via errors.Is.
	ErrValidation = errors.New("validation error")

	// ErrConfiguration matches any *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("configuration error")
)

// ValidationError reports a malformed, out-of-range or missing input field.
// It is always returned to the caller and never retried.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConfigurationError reports inconsistent engine configuration.
// It is raised when an engine is constructed, never per call.
type ConfigurationError struct {
	Component string `json:"component"`
	Reason    string `json:"reason"`
}

// NewConfigurationError creates a ConfigurationError for component.
func NewConfigurationError(component, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s configuration: %s", e.Component, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
