package commands

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a missing ledger record.
	ErrNotFound = errors.New("command: not found")
	// ErrValidation marks input rejected before any state mutation.
	ErrValidation = errors.New("command: validation")
)

// NewValidationError wraps ErrValidation with a caller-facing message.
func NewValidationError(message string) error {
	return fmt.Errorf("%w: %s", ErrValidation, message)
}

// IsValidation reports whether err was rejected as bad input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
