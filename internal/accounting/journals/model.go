package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusPosted Status = "posted"
	StatusVoid   Status = "void"
)

// SourceType names the business event that produced an entry.
type SourceType string

const (
	SourceInvoice             SourceType = "invoice"
	SourceBill                SourceType = "bill"
	SourcePayment             SourceType = "payment"
	SourcePosSale             SourceType = "pos_sale"
	SourceInventoryAdjustment SourceType = "inventory_adjustment"
	SourceManual              SourceType = "manual"
	SourceFXRevaluation       SourceType = "fx_revaluation"
	SourceOpeningBalance      SourceType = "opening_balance"
	SourceReversal            SourceType = "reversal"
)

var numberPrefixes = map[SourceType]string{
	SourceOpeningBalance:      "JE-OB",
	SourceFXRevaluation:       "JE-FX",
	SourcePosSale:             "JE-POS",
	SourceInvoice:             "JE-INV",
	SourceBill:                "JE-BILL",
	SourcePayment:             "JE-PAY",
	SourceInventoryAdjustment: "JE-ADJ",
	SourceManual:              "JE-MAN",
	SourceReversal:            "JE-REV",
}

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	_, ok := numberPrefixes[t]
	return ok
}

// NumberPrefix returns the entry-number prefix for the source type.
func (t SourceType) NumberPrefix() string {
	if p, ok := numberPrefixes[t]; ok {
		return p
	}
	return "JE"
}

// LineItem is one debit or credit against an account.
type LineItem struct {
	AccountID   uuid.UUID
	AccountCode string
	AccountName string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	Number       string
	Date         time.Time
	Reference    string
	SourceType   SourceType
	SourceID     string
	Description  string
	Status       Status
	Lines        []LineItem
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
	PostedBy     string
	PostedAt     *time.Time
	VoidedBy     string
	VoidedAt     *time.Time
	VoidReason   string
	ReversalOf   *uuid.UUID
	CreatedAt    time.Time
}

// AccountIDs returns the distinct accounts referenced by the entry in line order.
func (e JournalEntry) AccountIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(e.Lines))
	out := make([]uuid.UUID, 0, len(e.Lines))
	for _, line := range e.Lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		out = append(out, line.AccountID)
	}
	return out
}

// SourceLink records which business event an entry was posted for.
type SourceLink struct {
	CompanyID  uuid.UUID
	SourceType SourceType
	SourceID   string
	EntryID    uuid.UUID
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	CompanyID uuid.UUID
	EntryID   uuid.UUID
	Actor     string
	Reason    string
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	CompanyID   uuid.UUID
	EntryID     uuid.UUID
	Actor       string
	Description string
	Date        *time.Time
}

// ListFilter narrows journal listings.
type ListFilter struct {
	CompanyID  uuid.UUID
	Status     Status
	SourceType SourceType
	From       *time.Time
	To         *time.Time
	Limit      int
}

// Match reports whether e passes the filter.
func (f ListFilter) Match(e JournalEntry) bool {
	if e.CompanyID != f.CompanyID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.SourceType != "" && e.SourceType != f.SourceType {
		return false
	}
	if f.From != nil && e.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Date.After(*f.To) {
		return false
	}
	return true
}
