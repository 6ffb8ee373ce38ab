// Package shared contains common domain types, errors and events used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState   = errors.New("invalid state")
	ErrReconciliation = errors.New("reconciliation error")

	// Storage errors
	ErrPersistence            = errors.New("persistence error")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "attendance", "subject", "ledger"
	Op      string // Operation that failed, e.g., "MarkStatus"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Kind == t.Kind && e.Message == t.Message
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Subject errors
var (
	ErrSubjectNotFound     = NewDomainError("subject", "Find", ErrNotFound, "subject not found")
	ErrSubjectExists       = NewDomainError("subject", "Create", ErrAlreadyExists, "subject already exists")
	ErrEmptySubjectName    = NewDomainError("subject", "Validate", ErrEmptyValue, "subject name is required")
	ErrInvalidThreshold    = NewDomainError("subject", "Validate", ErrValueOutOfRange, "required attendance must be between 0 and 100")
	ErrFolderNesting       = NewDomainError("subject", "Validate", ErrInvalidInput, "folders can only be nested one level deep")
	ErrParentNotFolder     = NewDomainError("subject", "Validate", ErrInvalidInput, "parent subject is not a folder")
	ErrCounterInvariant    = NewDomainError("subject", "Validate", ErrInvalidState, "total count must equal present plus absent")
	ErrFolderNotAttendable = NewDomainError("subject", "MarkStatus", ErrInvalidInput, "attendance cannot be marked on a folder")
)

// Attendance errors
var (
	ErrRecordNotFound     = NewDomainError("attendance", "FindRecord", ErrNotFound, "attendance record not found")
	ErrInvalidStatus      = NewDomainError("attendance", "Validate", ErrInvalidInput, "unknown attendance status")
	ErrInvalidRepeatCount = NewDomainError("attendance", "Validate", ErrValueOutOfRange, "repeat count must be at least 1")
	ErrCorruptRecord      = NewDomainError("attendance", "Reconcile", ErrReconciliation, "stored record has a non-positive repeat count")
	ErrInvalidWeekday     = NewDomainError("schedule", "Validate", ErrValueOutOfRange, "weekday must be between 0 (Sunday) and 6")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsPersistence checks if the error came from the entity store.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsReconciliation checks if the error is a reconciliation failure.
func IsReconciliation(err error) bool {
	return errors.Is(err, ErrReconciliation)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
