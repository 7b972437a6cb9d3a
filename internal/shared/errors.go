package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error unwraps to exactly one of these so transport
// layers can map failures without knowing concrete types.
var (
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConcurrencyConflict indicates a duplicate or a lost race with another writer.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrIntegrity indicates the books cannot be kept consistent with the request.
	ErrIntegrity = errors.New("integrity violation")
)

// ValidationError describes rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s %s", e.Entity, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConcurrencyConflict reports a write that lost against a concurrent or earlier writer.
type ConcurrencyConflict struct {
	Resource string
	Detail   string
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("%s on %s: %s", ErrConcurrencyConflict, e.Resource, e.Detail)
}

func (e *ConcurrencyConflict) Unwrap() error { return ErrConcurrencyConflict }

// NewConflict builds a ConcurrencyConflict.
func NewConflict(resource, detail string) error {
	return &ConcurrencyConflict{Resource: resource, Detail: detail}
}

// IntegrityError reports a condition that would leave the ledger inconsistent.
type IntegrityError struct {
	Detail string
	Err    error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrIntegrity, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrIntegrity, e.Detail)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *IntegrityError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrIntegrity}
	}
	return []error{ErrIntegrity, e.Err}
}

// NewIntegrityError builds an IntegrityError.
func NewIntegrityError(detail string, err error) error {
	return &IntegrityError{Detail: detail, Err: err}
}
