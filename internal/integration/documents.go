package integration

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// documentIssued records an invoice (Dr receivables / Cr revenue) or a bill
// (Dr the counter account / Cr payables) at its base-currency value.
func (p *Pipeline) documentIssued(ctx context.Context, e DocumentIssuedEvent) (plan, error) {
	base := p.Rates.BaseCurrency()
	e.Number = strings.TrimSpace(e.Number)
	e.Currency = shared.NormalizeCurrency(e.Currency)
	if e.Currency == "" {
		e.Currency = base
	}
	switch {
	case !e.DocKind.Valid():
		return plan{}, shared.NewValidationError("kind", "must be invoice or bill")
	case e.Number == "":
		return plan{}, shared.NewValidationError("number", "is required")
	case !e.Total.IsPositive():
		return plan{}, shared.NewValidationError("total", "must be positive")
	case !shared.ValidCurrency(e.Currency):
		return plan{}, shared.NewValidationError("currency", "must be an ISO 4217 code")
	case e.ExchangeRate.IsNegative():
		return plan{}, shared.NewValidationError("exchange_rate", "must not be negative")
	case e.DocKind == billing.KindBill && (e.CounterAccountID == nil || *e.CounterAccountID == uuid.Nil):
		return plan{}, shared.NewValidationError("counter_account_id", "is required for bills")
	}
	date := p.date(e.Date)

	rate := e.ExchangeRate
	switch {
	case e.Currency == base:
		rate = decimal.NewFromInt(1)
	case rate.IsZero():
		quote, err := p.Rates.RateOn(ctx, e.CompanyID, e.Currency, date)
		if err != nil {
			return plan{}, err
		}
		rate = quote.Rate
	}
	baseValue := fx.BaseValue(e.Total, rate)
	if !baseValue.IsPositive() {
		return plan{}, shared.NewValidationError("total", "base value rounds to zero")
	}

	var lines []journals.LineIntent
	if e.DocKind == billing.KindInvoice {
		ar, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyAccountsReceivable, nil)
		if err != nil {
			return plan{}, err
		}
		revenue, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeySales, e.CounterAccountID)
		if err != nil {
			return plan{}, err
		}
		lines = []journals.LineIntent{
			journals.Debit(ar, baseValue, e.Party),
			journals.Credit(revenue, baseValue, e.Party),
		}
	} else {
		ap, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyAccountsPayable, nil)
		if err != nil {
			return plan{}, err
		}
		lines = []journals.LineIntent{
			journals.Debit(*e.CounterAccountID, baseValue, e.Party),
			journals.Credit(ap, baseValue, e.Party),
		}
	}

	source, sourceID := e.Source()
	return plan{
		draft: &journals.Draft{
			CompanyID:     e.CompanyID,
			Date:          date,
			Reference:     e.Number,
			SourceType:    source,
			SourceID:      sourceID,
			NumberContext: e.Number,
			Description:   strings.TrimSpace(string(e.DocKind) + " " + e.Number + " " + e.Party),
			Lines:         lines,
		},
		after: func(ctx context.Context, res *Result) error {
			now := p.now().UTC()
			doc := billing.Document{
				ID:             uuid.New(),
				CompanyID:      e.CompanyID,
				Kind:           e.DocKind,
				Number:         e.Number,
				Party:          e.Party,
				Date:           date,
				Currency:       e.Currency,
				ExchangeRate:   rate,
				Total:          e.Total,
				AmountPaid:     decimal.Zero,
				BalanceDue:     e.Total,
				BaseBalanceDue: baseValue,
				Status:         billing.StatusOpen,
				SourceType:     string(source),
				SourceID:       sourceID,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := p.Documents.Insert(ctx, doc); err != nil {
				return err
			}
			res.Document = &doc
			return nil
		},
	}, nil
}
