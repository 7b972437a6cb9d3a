package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type documentRepo struct{ s *Store }

func (r documentRepo) Insert(ctx context.Context, d billing.Document) error {
	return r.s.write(ctx, func(st *state) error {
		for _, existing := range st.documents {
			if existing.CompanyID == d.CompanyID && existing.Kind == d.Kind && existing.Number == d.Number {
				return shared.NewConflict(string(d.Kind), "number "+d.Number+" already exists")
			}
		}
		st.documents[d.ID] = d
		return nil
	})
}

func (r documentRepo) Get(ctx context.Context, companyID, id uuid.UUID) (billing.Document, error) {
	var out billing.Document
	err := r.s.read(ctx, func(st *state) error {
		d, ok := st.documents[id]
		if !ok || d.CompanyID != companyID {
			return shared.NewNotFoundError("document", id.String())
		}
		out = d
		return nil
	})
	return out, err
}

func (r documentRepo) List(ctx context.Context, companyID uuid.UUID, filter billing.Filter) ([]billing.Document, error) {
	out, err := r.collect(ctx, func(d billing.Document) bool {
		return d.CompanyID == companyID && filter.Match(d)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Number < out[j].Number
	})
	return out, err
}

func (r documentRepo) OpenForeign(ctx context.Context, companyID uuid.UUID, base string) ([]billing.Document, error) {
	out, err := r.collect(ctx, func(d billing.Document) bool {
		return d.CompanyID == companyID && d.Currency != base && d.Open()
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Number < out[j].Number
	})
	return out, err
}

func (r documentRepo) collect(ctx context.Context, keep func(billing.Document) bool) ([]billing.Document, error) {
	var out []billing.Document
	err := r.s.read(ctx, func(st *state) error {
		for _, d := range st.documents {
			if keep(d) {
				out = append(out, d)
			}
		}
		return nil
	})
	return out, err
}

func (r documentRepo) UpdateRevaluation(ctx context.Context, companyID uuid.UUID, rev billing.Revaluation) error {
	return r.s.write(ctx, func(st *state) error {
		d, ok := st.documents[rev.DocumentID]
		if !ok || d.CompanyID != companyID {
			return shared.NewNotFoundError("document", rev.DocumentID.String())
		}
		at := rev.At
		d.ExchangeRate = rev.Rate
		d.BaseBalanceDue = rev.BaseBalanceDue
		d.RevaluedAt = &at
		d.UpdatedAt = at
		st.documents[d.ID] = d
		return nil
	})
}

type rateRepo struct{ s *Store }

func (r rateRepo) Insert(ctx context.Context, rate *fx.Rate) error {
	return r.s.write(ctx, func(st *state) error {
		st.rateSeq++
		rate.Seq = st.rateSeq
		st.rates = append(st.rates, *rate)
		return nil
	})
}

func (r rateRepo) List(ctx context.Context, companyID uuid.UUID, currency string) ([]fx.Rate, error) {
	var out []fx.Rate
	err := r.s.read(ctx, func(st *state) error {
		for _, rate := range st.rates {
			if rate.CompanyID == companyID && (currency == "" || rate.Currency == currency) {
				out = append(out, rate)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Currency != b.Currency:
			return a.Currency < b.Currency
		case !a.EffectiveDate.Equal(b.EffectiveDate):
			return a.EffectiveDate.After(b.EffectiveDate)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		default:
			return a.Seq > b.Seq
		}
	})
	return out, err
}

func (r rateRepo) Latest(ctx context.Context, companyID uuid.UUID, currency string, asOf time.Time) (fx.Rate, bool, error) {
	var (
		out   fx.Rate
		found bool
	)
	err := r.s.read(ctx, func(st *state) error {
		var company []fx.Rate
		for _, rate := range st.rates {
			if rate.CompanyID == companyID {
				company = append(company, rate)
			}
		}
		out, found = fx.Latest(company, currency, asOf)
		return nil
	})
	return out, found, err
}
