/*
errors.go - Centralized error types for the finance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Storage implementations and the HTTP layer classify failures with
  errors.Is against the sentinels below.

ERROR CATEGORIES:
  1. Lookup errors     - NotFoundError (rule, account, transaction, ...)
  2. Rule state errors - InactiveRuleError, UnknownFrequencyError
  3. Validation errors - ValidationError, ConflictError
  4. Storage errors    - StorageError wrapping the driver error

USAGE:
  if errors.Is(err, finance.ErrInactiveRule) {
      // 409 to the caller, nothing was written
  }

SEE ALSO:
  - materialize.go: Returns rule state errors
  - api/errors.go: Maps these errors to HTTP status codes
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInactiveRule is returned when materializing a deactivated rule.
	ErrInactiveRule = errors.New("recurring rule is inactive")

	// ErrUnknownFrequency is returned for a frequency outside the enumeration.
	ErrUnknownFrequency = errors.New("unknown frequency")

	// ErrValidation is returned when input violates a domain invariant.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when an operation clashes with existing state
	// (duplicate name, row still referenced, non-zero balance on delete).
	ErrConflict = errors.New("conflict")

	// ErrStorage is returned when the backing store fails.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing row.
type NotFoundError struct {
	Kind string // "account", "recurring rule", ...
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InactiveRuleError is returned by Materialize for a deactivated rule.
type InactiveRuleError struct {
	RuleID RuleID
}

func (e *InactiveRuleError) Error() string {
	return fmt.Sprintf("recurring rule %d is inactive", e.RuleID)
}

func (e *InactiveRuleError) Unwrap() error { return ErrInactiveRule }

type UnknownFrequencyError struct {
	Frequency string
}

func (e *UnknownFrequencyError) Error() string {
	return fmt.Sprintf("unknown frequency %q", e.Frequency)
}

func (e *UnknownFrequencyError) Unwrap() error { return ErrUnknownFrequency }

// ValidationError provides details about a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StorageError wraps a driver failure with the operation that hit it.
// Both ErrStorage and the driver error match errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// Materialization is idempotent, so storage failures are safe to repeat.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInactiveRule) ||
		errors.Is(err, ErrUnknownFrequency) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
