// Package fx keeps exchange rates quoted against the company base currency.
package fx

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var one = decimal.NewFromInt(1)

// Rate is a quote of Currency units per one unit of the base currency,
// effective from EffectiveDate.
type Rate struct {
	ID            uuid.UUID
	CompanyID     uuid.UUID
	Currency      string
	Rate          decimal.Decimal
	EffectiveDate time.Time
	CreatedAt     time.Time
	Seq           int64
}

// AddRateInput captures a new quote.
type AddRateInput struct {
	CompanyID     uuid.UUID
	Currency      string `validate:"required,iso4217"`
	Rate          decimal.Decimal
	EffectiveDate time.Time `validate:"required"`
}

// MissingRateError reports that no rate is effective for a currency on a date.
type MissingRateError struct {
	Currency string
	AsOf     time.Time
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("fx: no %s rate effective on %s", e.Currency, e.AsOf.Format(time.DateOnly))
}

func (e *MissingRateError) Unwrap() error { return shared.ErrIntegrity }

// Latest picks the rate for currency effective on asOf: the greatest
// effective date not after asOf, then the latest CreatedAt, then the highest Seq.
func Latest(rates []Rate, currency string, asOf time.Time) (Rate, bool) {
	cutoff := dateOnly(asOf)
	var (
		best  Rate
		found bool
	)
	for _, r := range rates {
		if r.Currency != currency || dateOnly(r.EffectiveDate).After(cutoff) {
			continue
		}
		if !found || newer(r, best) {
			best, found = r, true
		}
	}
	return best, found
}

func newer(a, b Rate) bool {
	ad, bd := dateOnly(a.EffectiveDate), dateOnly(b.EffectiveDate)
	switch {
	case !ad.Equal(bd):
		return ad.After(bd)
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.After(b.CreatedAt)
	default:
		return a.Seq > b.Seq
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BaseValue converts a foreign amount into the base currency, rounded to cents.
func BaseValue(amount, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return amount.DivRound(rate, 2)
}
