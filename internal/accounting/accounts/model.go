package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	TypeAsset     AccountType = "asset"
	TypeLiability AccountType = "liability"
	TypeEquity    AccountType = "equity"
	TypeRevenue   AccountType = "revenue"
	TypeCOGS      AccountType = "cost_of_goods_sold"
	TypeExpense   AccountType = "expense"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeCOGS, TypeExpense:
		return true
	}
	return false
}

// Side is the debit or credit side of a line.
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// NormalSide returns the side on which the account type naturally increases.
func (t AccountType) NormalSide() Side {
	switch t {
	case TypeAsset, TypeExpense, TypeCOGS:
		return SideDebit
	default:
		return SideCredit
	}
}

// SignedDelta is the change a line applies to a balance carried in the
// account's natural sign.
func (t AccountType) SignedDelta(debit, credit decimal.Decimal) decimal.Decimal {
	if t.NormalSide() == SideDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// Account models a chart of accounts node.
type Account struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Code      string
	Name      string
	Type      AccountType
	Category  string
	Currency  string
	Balance   decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput carries the fields accepted when opening an account.
type CreateInput struct {
	CompanyID uuid.UUID
	Code      string      `validate:"required,max=32"`
	Name      string      `validate:"required,max=160"`
	Type      AccountType `validate:"required,oneof=asset liability equity revenue cost_of_goods_sold expense"`
	Category  string      `validate:"omitempty,max=64"`
	Currency  string      `validate:"omitempty,iso4217"`
}

// Filter narrows account listings.
type Filter struct {
	Type       AccountType
	ActiveOnly bool
}

// Match reports whether a passes the filter.
func (f Filter) Match(a Account) bool {
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.ActiveOnly && !a.IsActive {
		return false
	}
	return true
}
