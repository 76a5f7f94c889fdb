package models

import (
	"errors"
	"fmt"
)

// ErrAnalysisTimeout is returned when an analysis exceeds its end-to-end budget.
var ErrAnalysisTimeout = errors.New("analysis timed out")

// ValidationError is a rejected client input. No upstream work is done for it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
