package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for logical record state. Callers match these with errors.Is.
var (
	// ErrWriteConflict is returned when a conditional write lost the race
	// more times than the configured retry bound allows.
	ErrWriteConflict = errors.New("write conflict: concurrent update exceeded retry bound")

	// ErrVersionMismatch signals a single failed compare-and-swap attempt.
	// It is consumed by the retry loop and never escapes to API callers.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrDuplicateKey signals an insert that collided with an existing row
	// for the same deterministic record key.
	ErrDuplicateKey = errors.New("duplicate record key")

	// ErrNoOpenShift is returned by clock-out when no open record exists
	// for the employee and date.
	ErrNoOpenShift = errors.New("no open shift for this date")

	// ErrAlreadyClockedOut is returned when a clock-out targets a record
	// that has already been closed.
	ErrAlreadyClockedOut = errors.New("shift already clocked out")

	// ErrRecordNotFound is returned by reads and edits against a record key
	// that has never been written.
	ErrRecordNotFound = errors.New("attendance record not found")

	// ErrPeriodFinalized is returned when a write targets a record whose
	// payroll period has been finalized.
	ErrPeriodFinalized = errors.New("payroll period is finalized")
)

// ValidationError rejects a request before any write happens. It is never
// retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError anywhere in its chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
