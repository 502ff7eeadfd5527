package services

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestNotFound is returned when a request id is unknown.
	ErrRequestNotFound = errors.New("request not found")

	// ErrNotAssigned is returned when human_complete is called for a
	// request that has no committed agent assignment.
	ErrNotAssigned = errors.New("request has no assigned agent")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
