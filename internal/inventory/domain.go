package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DefaultLocation receives opening stock and is issued from when no location is given.
const DefaultLocation = "main"

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	MovementOpeningBalance MovementType = "opening_balance"
	MovementSale           MovementType = "sale"
	MovementReceipt        MovementType = "receipt"
	MovementAdjustment     MovementType = "adjustment"
)

// Product is a stocked item with its linked ledger accounts.
type Product struct {
	ID                 uuid.UUID
	CompanyID          uuid.UUID
	SKU                string
	Name               string
	CostPrice          decimal.Decimal
	UnitPrice          decimal.Decimal
	QuantityOnHand     decimal.Decimal
	SalesAccountID     *uuid.UUID
	InventoryAccountID *uuid.UUID
	COGSAccountID      *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StockLevel is the quantity of a product held at one location.
type StockLevel struct {
	CompanyID uuid.UUID
	ProductID uuid.UUID
	Location  string
	Quantity  decimal.Decimal
	UpdatedAt time.Time
}

// Movement is one line on the stock card.
type Movement struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	ProductID   uuid.UUID
	Location    string
	Type        MovementType
	QuantityIn  decimal.Decimal
	QuantityOut decimal.Decimal
	UnitCost    decimal.Decimal
	BalanceQty  decimal.Decimal
	RefType     string
	RefID       string
	Note        string
	OccurredAt  time.Time
}

// CreateProductInput describes a new product and its opening stock.
type CreateProductInput struct {
	CompanyID          uuid.UUID
	SKU                string `validate:"required,max=64"`
	Name               string `validate:"required,max=200"`
	CostPrice          decimal.Decimal
	UnitPrice          decimal.Decimal
	QuantityOnHand     decimal.Decimal
	SalesAccountID     *uuid.UUID
	InventoryAccountID *uuid.UUID
	COGSAccountID      *uuid.UUID
	Location           string
}

// MovementInput requests a stock receipt or issue. Quantity is always positive.
type MovementInput struct {
	CompanyID uuid.UUID
	ProductID uuid.UUID
	Location  string
	Type      MovementType
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	RefType   string
	RefID     string
	Note      string
}

var (
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = &shared.IntegrityError{Detail: "inventory: negative stock not allowed"}
	// ErrInvalidQuantity indicates a zero or negative movement quantity.
	ErrInvalidQuantity = &shared.ValidationError{Field: "quantity", Reason: "must be positive"}
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = &shared.ValidationError{Field: "unit_cost", Reason: "must not be negative"}
)
