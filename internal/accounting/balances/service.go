package balances

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
)

// AccountSource lists a company's chart of accounts.
type AccountSource interface {
	List(ctx context.Context, companyID uuid.UUID, filter accounts.Filter) ([]accounts.Account, error)
}

// Transactor runs fn atomically.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo     Repository
	accounts AccountSource
	tx       Transactor
	cache    *Cache
	group    singleflight.Group
	logger   *slog.Logger
}

func NewService(repo Repository, accts AccountSource, tx Transactor, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, accounts: accts, tx: tx, cache: cache, logger: logger}
}

// Balances returns the derived balances for a company. Concurrent misses for
// the same company share a single rebuild.
func (s *Service) Balances(ctx context.Context, companyID uuid.UUID) ([]Balance, error) {
	ch := s.group.DoChan(companyID.String(), func() (interface{}, error) {
		return s.cache.Fetch(context.WithoutCancel(ctx), companyID, func(ctx context.Context) ([]Balance, error) {
			_, derived, err := s.load(ctx, companyID)
			return derived, err
		})
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("balances: %w", res.Err)
		}
		return res.Val.([]Balance), nil
	}
}

// Invalidate drops cached balances for the company.
func (s *Service) Invalidate(ctx context.Context, companyID uuid.UUID) error {
	return s.cache.Invalidate(ctx, companyID)
}

// Verify compares materialized balances with the derivation from posted entries.
func (s *Service) Verify(ctx context.Context, companyID uuid.UUID) ([]Drift, error) {
	var drifts []Drift
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		accts, derived, err := s.load(ctx, companyID)
		if err != nil {
			return err
		}
		drifts = Compare(accts, derived)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("balances: verify: %w", err)
	}
	return drifts, nil
}

// Rebuild overwrites drifted materialized balances with derived values and
// returns what it corrected.
func (s *Service) Rebuild(ctx context.Context, companyID uuid.UUID) ([]Drift, error) {
	var drifts []Drift
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		accts, derived, err := s.load(ctx, companyID)
		if err != nil {
			return err
		}
		drifts = Compare(accts, derived)
		for _, d := range drifts {
			if err := s.repo.SetBalance(ctx, companyID, d.AccountID, d.Derived); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("balances: rebuild: %w", err)
	}
	if len(drifts) > 0 {
		s.logger.Warn("materialized balances rebuilt", slog.String("company_id", companyID.String()), slog.Int("accounts", len(drifts)))
		if err := s.cache.Invalidate(ctx, companyID); err != nil {
			s.logger.Warn("invalidate balance cache", slog.Any("error", err))
		}
	}
	return drifts, nil
}

// Companies lists every company with a chart of accounts.
func (s *Service) Companies(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.Companies(ctx)
}

// TrialBalance renders the derived balances as a grouped trial balance.
func (s *Service) TrialBalance(ctx context.Context, companyID uuid.UUID) (reports.TrialBalance, error) {
	rows, err := s.Balances(ctx, companyID)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	return reports.BuildTrialBalance(ReportRows(rows)), nil
}

// ReportRows adapts derived balances to report input.
func ReportRows(rows []Balance) []reports.AccountBalance {
	out := make([]reports.AccountBalance, 0, len(rows))
	for _, b := range rows {
		out = append(out, reports.AccountBalance{
			Code:   b.Code,
			Name:   b.Name,
			Type:   string(b.Type),
			Debit:  b.Debit,
			Credit: b.Credit,
		})
	}
	return out
}

func (s *Service) load(ctx context.Context, companyID uuid.UUID) ([]accounts.Account, []Balance, error) {
	accts, err := s.accounts.List(ctx, companyID, accounts.Filter{})
	if err != nil {
		return nil, nil, err
	}
	lines, err := s.repo.PostedLines(ctx, companyID)
	if err != nil {
		return nil, nil, err
	}
	return accts, Derive(accts, lines), nil
}
