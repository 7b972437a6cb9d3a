package fx

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service manages the rate book for one base currency.
type Service struct {
	repo Repository
	base string
	now  func() time.Time
}

func NewService(repo Repository, baseCurrency string) *Service {
	return &Service{repo: repo, base: shared.NormalizeCurrency(baseCurrency), now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// BaseCurrency returns the currency rates are quoted against.
func (s *Service) BaseCurrency() string {
	return s.base
}

// AddRate records a quote. Quotes are append-only; a later quote for the same
// date supersedes an earlier one.
func (s *Service) AddRate(ctx context.Context, in AddRateInput) (Rate, error) {
	in.Currency = shared.NormalizeCurrency(in.Currency)
	if in.CompanyID == uuid.Nil {
		return Rate{}, shared.NewValidationError("company_id", "is required")
	}
	if err := shared.ValidateStruct(in); err != nil {
		return Rate{}, err
	}
	if in.Currency == s.base {
		return Rate{}, shared.NewValidationError("currency", "must differ from the base currency")
	}
	if !in.Rate.IsPositive() {
		return Rate{}, shared.NewValidationError("rate", "must be positive")
	}
	rate := Rate{
		ID:            uuid.New(),
		CompanyID:     in.CompanyID,
		Currency:      in.Currency,
		Rate:          in.Rate,
		EffectiveDate: dateOnly(in.EffectiveDate),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, &rate); err != nil {
		return Rate{}, err
	}
	return rate, nil
}

func (s *Service) ListRates(ctx context.Context, companyID uuid.UUID, currency string) ([]Rate, error) {
	return s.repo.List(ctx, companyID, shared.NormalizeCurrency(currency))
}

// RateOn returns the rate to apply to currency on asOf. The base currency
// always converts at one.
func (s *Service) RateOn(ctx context.Context, companyID uuid.UUID, currency string, asOf time.Time) (Rate, error) {
	currency = shared.NormalizeCurrency(currency)
	if currency == s.base {
		return Rate{CompanyID: companyID, Currency: currency, Rate: one, EffectiveDate: dateOnly(asOf)}, nil
	}
	rate, ok, err := s.repo.Latest(ctx, companyID, currency, asOf)
	if err != nil {
		return Rate{}, err
	}
	if !ok {
		return Rate{}, &MissingRateError{Currency: currency, AsOf: asOf}
	}
	return rate, nil
}
