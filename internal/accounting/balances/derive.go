// Package balances recomputes account balances from the posted-entry log and
// keeps the materialized balances honest.
package balances

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// Line is a posted line item reduced to what derivation needs.
type Line struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Balance is the derived position of one account.
type Balance struct {
	AccountID uuid.UUID            `json:"account_id"`
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Type      accounts.AccountType `json:"type"`
	Debit     decimal.Decimal      `json:"debit"`
	Credit    decimal.Decimal      `json:"credit"`
	Balance   decimal.Decimal      `json:"balance"`
}

// Drift reports an account whose materialized balance disagrees with the log.
type Drift struct {
	AccountID    uuid.UUID       `json:"account_id"`
	Code         string          `json:"code"`
	Materialized decimal.Decimal `json:"materialized"`
	Derived      decimal.Decimal `json:"derived"`
}

// Difference is materialized minus derived.
func (d Drift) Difference() decimal.Decimal {
	return d.Materialized.Sub(d.Derived)
}

// Derive aggregates posted lines per account. Every account in accts gets a
// row, ordered by code; lines for unknown accounts are ignored.
func Derive(accts []accounts.Account, lines []Line) []Balance {
	rows := make(map[uuid.UUID]*Balance, len(accts))
	for _, a := range accts {
		rows[a.ID] = &Balance{AccountID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type}
	}
	for _, l := range lines {
		row, ok := rows[l.AccountID]
		if !ok {
			continue
		}
		row.Debit = row.Debit.Add(l.Debit)
		row.Credit = row.Credit.Add(l.Credit)
	}
	out := make([]Balance, 0, len(rows))
	for _, row := range rows {
		row.Balance = row.Type.SignedDelta(row.Debit, row.Credit)
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Compare lists accounts whose materialized balance differs from the derivation.
func Compare(accts []accounts.Account, derived []Balance) []Drift {
	byID := make(map[uuid.UUID]decimal.Decimal, len(derived))
	for _, b := range derived {
		byID[b.AccountID] = b.Balance
	}
	var drifts []Drift
	for _, a := range accts {
		want := byID[a.ID]
		if !a.Balance.Equal(want) {
			drifts = append(drifts, Drift{AccountID: a.ID, Code: a.Code, Materialized: a.Balance, Derived: want})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Code < drifts[j].Code })
	return drifts
}
