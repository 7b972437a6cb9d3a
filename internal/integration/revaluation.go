package integration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// fxRevaluation restates every open foreign document issued on or before
// AsOf at the rate effective on that date. Receivable and payable movements are netted into one line each and
// the difference lands on the exchange gain/loss account.
func (p *Pipeline) fxRevaluation(ctx context.Context, e FxRevaluationEvent) (plan, error) {
	if e.AsOf.IsZero() {
		return plan{}, shared.NewValidationError("as_of", "is required")
	}
	docs, err := p.Documents.OpenForeign(ctx, e.CompanyID, p.Rates.BaseCurrency())
	if err != nil {
		return plan{}, err
	}
	var (
		arDelta, apDelta decimal.Decimal
		revaluations     []billing.Revaluation
	)
	at := p.now().UTC()
	asOf := e.AsOf.UTC().Truncate(24 * time.Hour)
	for _, doc := range docs {
		// Documents issued after the valuation date have no rate to restate at yet.
		if !doc.Open() || doc.Date.UTC().Truncate(24*time.Hour).After(asOf) {
			continue
		}
		rate, err := p.Rates.RateOn(ctx, e.CompanyID, doc.Currency, e.AsOf)
		if err != nil {
			return plan{}, err
		}
		restated := fx.BaseValue(doc.BalanceDue, rate.Rate)
		delta := restated.Sub(doc.BaseBalanceDue)
		if doc.Kind == billing.KindBill {
			apDelta = apDelta.Add(delta)
		} else {
			arDelta = arDelta.Add(delta)
		}
		revaluations = append(revaluations, billing.Revaluation{
			DocumentID:     doc.ID,
			Rate:           rate.Rate,
			BaseBalanceDue: restated,
			At:             at,
		})
	}

	lines, err := p.revaluationLines(ctx, e, arDelta, apDelta)
	if err != nil {
		return plan{}, err
	}
	pl := plan{
		result: Result{Revaluations: revaluations},
		after: func(ctx context.Context, res *Result) error {
			for _, rev := range revaluations {
				if err := p.Documents.UpdateRevaluation(ctx, e.CompanyID, rev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	if len(lines) == 0 {
		return pl, nil
	}
	source, sourceID := e.Source()
	pl.draft = &journals.Draft{
		CompanyID:     e.CompanyID,
		Date:          e.AsOf,
		Reference:     sourceID,
		SourceType:    source,
		SourceID:      sourceID,
		NumberContext: e.AsOf.Format("20060102"),
		Description:   "FX revaluation as of " + e.AsOf.Format(time.DateOnly),
		Lines:         lines,
	}
	return pl, nil
}

// revaluationLines turns the aggregate movements into lines. A receivable
// increase is a gain, a payable increase is a loss.
func (p *Pipeline) revaluationLines(ctx context.Context, e FxRevaluationEvent, arDelta, apDelta decimal.Decimal) ([]journals.LineIntent, error) {
	var lines []journals.LineIntent
	if !arDelta.IsZero() {
		ar, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyAccountsReceivable, nil)
		if err != nil {
			return nil, err
		}
		if arDelta.IsPositive() {
			lines = append(lines, journals.Debit(ar, arDelta, "receivables revalued"))
		} else {
			lines = append(lines, journals.Credit(ar, arDelta.Neg(), "receivables revalued"))
		}
	}
	if !apDelta.IsZero() {
		ap, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyAccountsPayable, nil)
		if err != nil {
			return nil, err
		}
		if apDelta.IsPositive() {
			lines = append(lines, journals.Credit(ap, apDelta, "payables revalued"))
		} else {
			lines = append(lines, journals.Debit(ap, apDelta.Neg(), "payables revalued"))
		}
	}
	net := arDelta.Sub(apDelta)
	if !net.IsZero() {
		gl, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyFXGainLoss, nil)
		if err != nil {
			return nil, err
		}
		if net.IsPositive() {
			lines = append(lines, journals.Credit(gl, net, "unrealised exchange gain"))
		} else {
			lines = append(lines, journals.Debit(gl, net.Neg(), "unrealised exchange loss"))
		}
	}
	return lines, nil
}
