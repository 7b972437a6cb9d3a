// Package integration turns business events into posted journal entries and
// the operational side effects that go with them.
package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
)

// Kind tags an event variant.
type Kind string

const (
	KindOpeningBalance  Kind = "opening_balance"
	KindPosSale         Kind = "pos_sale"
	KindFxRevaluation   Kind = "fx_revaluation"
	KindDocumentIssued  Kind = "document_issued"
	KindStockAdjustment Kind = "stock_adjustment"
)

// Event is a business fact that posts to the ledger at most once. Source
// identifies the fact for idempotency.
type Event interface {
	Kind() Kind
	Company() uuid.UUID
	Source() (journals.SourceType, string)
}

// OpeningBalanceEvent books the stock a product was created with.
type OpeningBalanceEvent struct {
	CompanyID uuid.UUID
	Product   inventory.Product
	Quantity  decimal.Decimal
	Location  string
	Date      time.Time
}

func (e OpeningBalanceEvent) Kind() Kind         { return KindOpeningBalance }
func (e OpeningBalanceEvent) Company() uuid.UUID { return e.CompanyID }
func (e OpeningBalanceEvent) Source() (journals.SourceType, string) {
	return journals.SourceOpeningBalance, e.Product.ID.String()
}

// PosLine is one item sold at the register. A nil UnitPrice sells at the
// product's list price.
type PosLine struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
	UnitPrice *decimal.Decimal
}

// PosSaleEvent is a completed, fully paid register sale.
type PosSaleEvent struct {
	CompanyID     uuid.UUID
	SaleID        string
	ReceiptNumber string
	Date          time.Time
	Location      string
	Customer      string
	Lines         []PosLine
	Tax           decimal.Decimal
	CashAccountID *uuid.UUID
}

func (e PosSaleEvent) Kind() Kind         { return KindPosSale }
func (e PosSaleEvent) Company() uuid.UUID { return e.CompanyID }
func (e PosSaleEvent) Source() (journals.SourceType, string) {
	return journals.SourcePosSale, e.SaleID
}

// FxRevaluationEvent restates open foreign documents at the rates effective on AsOf.
type FxRevaluationEvent struct {
	CompanyID uuid.UUID
	AsOf      time.Time
}

func (e FxRevaluationEvent) Kind() Kind         { return KindFxRevaluation }
func (e FxRevaluationEvent) Company() uuid.UUID { return e.CompanyID }
func (e FxRevaluationEvent) Source() (journals.SourceType, string) {
	return journals.SourceFXRevaluation, e.AsOf.Format(time.DateOnly)
}

// DocumentIssuedEvent records an invoice or bill. A zero ExchangeRate on a
// foreign document is looked up in the rate book for Date.
type DocumentIssuedEvent struct {
	CompanyID        uuid.UUID
	DocKind          billing.Kind
	Number           string
	Party            string
	Date             time.Time
	Currency         string
	ExchangeRate     decimal.Decimal
	Total            decimal.Decimal
	CounterAccountID *uuid.UUID
}

func (e DocumentIssuedEvent) Kind() Kind         { return KindDocumentIssued }
func (e DocumentIssuedEvent) Company() uuid.UUID { return e.CompanyID }
func (e DocumentIssuedEvent) Source() (journals.SourceType, string) {
	if e.DocKind == billing.KindBill {
		return journals.SourceBill, e.Number
	}
	return journals.SourceInvoice, e.Number
}

// StockAdjustmentEvent corrects on-hand stock after a count. Quantity is
// signed. Surpluses are valued at UnitCost, or the product's current cost
// when zero; shortages always at the current cost. CounterAccountID takes the
// gain or loss.
type StockAdjustmentEvent struct {
	CompanyID        uuid.UUID
	AdjustmentID     string
	ProductID        uuid.UUID
	Location         string
	Quantity         decimal.Decimal
	UnitCost         decimal.Decimal
	CounterAccountID uuid.UUID
	Date             time.Time
	Note             string
}

func (e StockAdjustmentEvent) Kind() Kind         { return KindStockAdjustment }
func (e StockAdjustmentEvent) Company() uuid.UUID { return e.CompanyID }
func (e StockAdjustmentEvent) Source() (journals.SourceType, string) {
	return journals.SourceInventoryAdjustment, e.AdjustmentID
}

// Result reports what handling an event did.
type Result struct {
	// Entry is the posted entry, or the earlier one when Duplicate is set.
	Entry *journals.JournalEntry
	// Duplicate means the event had already been posted and nothing changed.
	Duplicate bool
	// Skipped means the event was applied but had no ledger value to post.
	Skipped      bool
	Document     *billing.Document
	Movements    []inventory.Movement
	Revaluations []billing.Revaluation
}
