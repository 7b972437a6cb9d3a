package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountDirectory is the account store as seen by the resolver.
type AccountDirectory interface {
	List(ctx context.Context, companyID uuid.UUID, filter accounts.Filter) ([]accounts.Account, error)
	GetByCode(ctx context.Context, companyID uuid.UUID, code string) (accounts.Account, error)
	Mapping(ctx context.Context, companyID uuid.UUID, key mappings.Key) (mappings.AccountMapping, error)
	Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error)
}

// UnresolvedAccountError reports an integration role with no usable account.
type UnresolvedAccountError struct {
	Role mappings.Key
}

func (e *UnresolvedAccountError) Error() string {
	return fmt.Sprintf("integration: no account resolves role %s", e.Role)
}

func (e *UnresolvedAccountError) Unwrap() error { return shared.ErrIntegrity }

type rule struct {
	types     []accounts.AccountType
	keywords  []string
	code      string
	anyOfType bool
	create    *accounts.CreateInput
}

var rules = map[mappings.Key]rule{
	mappings.KeyInventory: {
		types: []accounts.AccountType{accounts.TypeAsset}, keywords: []string{"inventory"}, code: "1300",
	},
	mappings.KeyOpeningEquity: {
		types: []accounts.AccountType{accounts.TypeEquity}, keywords: []string{"opening", "retained"}, code: "3900", anyOfType: true,
	},
	mappings.KeyCash: {
		types: []accounts.AccountType{accounts.TypeAsset}, keywords: []string{"cash"}, code: "1000",
	},
	mappings.KeySales: {
		types: []accounts.AccountType{accounts.TypeRevenue}, keywords: []string{"sales"}, code: "4000", anyOfType: true,
	},
	mappings.KeyCOGS: {
		types: []accounts.AccountType{accounts.TypeCOGS}, keywords: []string{"cost of goods"}, code: "5000", anyOfType: true,
	},
	mappings.KeyAccountsReceivable: {
		types: []accounts.AccountType{accounts.TypeAsset}, keywords: []string{"receivable"}, code: "1200",
	},
	mappings.KeyAccountsPayable: {
		types: []accounts.AccountType{accounts.TypeLiability}, keywords: []string{"payable"}, code: "2000",
	},
	mappings.KeyFXGainLoss: {
		types:    []accounts.AccountType{accounts.TypeExpense, accounts.TypeRevenue},
		keywords: []string{"foreign exchange"},
		code:     "7000",
		create: &accounts.CreateInput{
			Code:     "7000",
			Name:     "Foreign Exchange Gain/Loss",
			Type:     accounts.TypeExpense,
			Category: "other_expense",
		},
	},
}

// Resolver maps integration roles to accounts: an explicitly linked account
// first, then the company's mapping, then name and code conventions.
type Resolver struct {
	accounts AccountDirectory
}

func NewResolver(dir AccountDirectory) *Resolver {
	return &Resolver{accounts: dir}
}

// Resolve returns the account for role. A non-nil preferred id wins and is
// validated later by the journal builder.
func (r *Resolver) Resolve(ctx context.Context, companyID uuid.UUID, role mappings.Key, preferred *uuid.UUID) (uuid.UUID, error) {
	if preferred != nil && *preferred != uuid.Nil {
		return *preferred, nil
	}
	m, err := r.accounts.Mapping(ctx, companyID, role)
	switch {
	case err == nil:
		return m.AccountID, nil
	case !errors.Is(err, shared.ErrNotFound):
		return uuid.Nil, err
	}

	rl, ok := rules[role]
	if !ok {
		return uuid.Nil, &UnresolvedAccountError{Role: role}
	}
	candidates, err := r.candidates(ctx, companyID, rl.types)
	if err != nil {
		return uuid.Nil, err
	}
	for _, kw := range rl.keywords {
		for _, acc := range candidates {
			if strings.Contains(strings.ToLower(acc.Name), kw) || strings.Contains(strings.ToLower(acc.Category), kw) {
				return acc.ID, nil
			}
		}
	}
	if rl.code != "" {
		for _, acc := range candidates {
			if acc.Code == rl.code {
				return acc.ID, nil
			}
		}
	}
	if rl.anyOfType && len(candidates) > 0 {
		return candidates[0].ID, nil
	}
	if rl.create != nil {
		return r.create(ctx, companyID, *rl.create)
	}
	return uuid.Nil, &UnresolvedAccountError{Role: role}
}

// candidates lists active accounts of the given types in code order.
func (r *Resolver) candidates(ctx context.Context, companyID uuid.UUID, types []accounts.AccountType) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, t := range types {
		list, err := r.accounts.List(ctx, companyID, accounts.Filter{Type: t, ActiveOnly: true})
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

func (r *Resolver) create(ctx context.Context, companyID uuid.UUID, in accounts.CreateInput) (uuid.UUID, error) {
	in.CompanyID = companyID
	acc, err := r.accounts.Create(ctx, in)
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		// The code is taken by an account the rules could not use.
		existing, getErr := r.accounts.GetByCode(ctx, companyID, in.Code)
		if getErr == nil && existing.IsActive {
			return existing.ID, nil
		}
		return uuid.Nil, shared.NewIntegrityError("cannot create account "+in.Code, err)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return acc.ID, nil
}
