package journals

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = &shared.ValidationError{Field: "lines", Reason: "journal requires at least two lines"}
	// ErrInvalidStatus indicates the entry is not in a state that allows the action.
	ErrInvalidStatus = &shared.ConcurrencyConflict{Resource: "journal entry", Detail: "invalid status transition"}
	// ErrSourceConflict is returned by repositories when the source link already exists.
	ErrSourceConflict = &shared.ConcurrencyConflict{Resource: "source link", Detail: "already linked"}
)

// UnbalancedEntryError reports debits that differ from credits.
type UnbalancedEntryError struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("journals: unbalanced entry: debits %s != credits %s", e.Debits.String(), e.Credits.String())
}

func (e *UnbalancedEntryError) Unwrap() error { return shared.ErrValidation }

// LineError reports a malformed line item.
type LineError struct {
	Index  int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("journals: line %d: %s", e.Index, e.Reason)
}

func (e *LineError) Unwrap() error { return shared.ErrValidation }

// AccountNotFoundError reports a line referencing an unknown account.
type AccountNotFoundError struct {
	AccountID uuid.UUID
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("journals: account %s not found", e.AccountID)
}

func (e *AccountNotFoundError) Unwrap() error { return shared.ErrNotFound }

// InactiveAccountError reports a line referencing a deactivated account.
type InactiveAccountError struct {
	AccountID uuid.UUID
	Code      string
}

func (e *InactiveAccountError) Error() string {
	return fmt.Sprintf("journals: account %s (%s) is inactive", e.Code, e.AccountID)
}

func (e *InactiveAccountError) Unwrap() error { return shared.ErrValidation }

// AlreadyPostedError reports a second posting for the same source.
type AlreadyPostedError struct {
	SourceType SourceType
	SourceID   string
	ExistingID uuid.UUID
}

func (e *AlreadyPostedError) Error() string {
	return fmt.Sprintf("journals: %s/%s already posted as %s", e.SourceType, e.SourceID, e.ExistingID)
}

func (e *AlreadyPostedError) Unwrap() error { return shared.ErrConcurrencyConflict }
