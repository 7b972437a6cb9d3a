// Package billing keeps the invoice and bill documents that post to
// receivables and payables.
package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes receivables from payables.
type Kind string

const (
	KindInvoice Kind = "invoice"
	KindBill    Kind = "bill"
)

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	return k == KindInvoice || k == KindBill
}

// Status enumerates document settlement states.
type Status string

const (
	StatusOpen          Status = "open"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusVoid          Status = "void"
)

// Document is an invoice or a bill. ExchangeRate is quoted as units of
// Currency per one unit of the base currency.
type Document struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	Kind           Kind
	Number         string
	Party          string
	Date           time.Time
	Currency       string
	ExchangeRate   decimal.Decimal
	Total          decimal.Decimal
	AmountPaid     decimal.Decimal
	BalanceDue     decimal.Decimal
	BaseBalanceDue decimal.Decimal
	Status         Status
	SourceType     string
	SourceID       string
	RevaluedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Open reports whether the document still carries an unsettled balance.
func (d Document) Open() bool {
	return (d.Status == StatusOpen || d.Status == StatusPartiallyPaid) && d.BalanceDue.IsPositive()
}

// Filter narrows document listings.
type Filter struct {
	Kind   Kind
	Status Status
}

// Match reports whether d passes the filter.
func (f Filter) Match(d Document) bool {
	if f.Kind != "" && d.Kind != f.Kind {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}

// Revaluation is the outcome of restating a document at a new rate.
type Revaluation struct {
	DocumentID     uuid.UUID
	Rate           decimal.Decimal
	BaseBalanceDue decimal.Decimal
	At             time.Time
}
