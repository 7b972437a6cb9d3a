package accounts_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func newService() (*accounts.Service, *shared.MemoryAuditLog) {
	store := memstore.New()
	audit := &shared.MemoryAuditLog{}
	return accounts.NewService(store.Accounts(), store.Mappings(), "usd").WithAudit(audit), audit
}

func TestCreateStartsAtZeroInBaseCurrency(t *testing.T) {
	svc, audit := newService()
	companyID := uuid.New()

	acc, err := svc.Create(context.Background(), accounts.CreateInput{
		CompanyID: companyID, Code: " 1000 ", Name: "Cash", Type: accounts.TypeAsset, Category: "current_asset",
	})
	require.NoError(t, err)
	require.Equal(t, "1000", acc.Code)
	require.Equal(t, "USD", acc.Currency)
	require.True(t, acc.Balance.IsZero())
	require.True(t, acc.IsActive)
	require.Len(t, audit.Records(), 1)

	got, err := svc.GetByCode(context.Background(), companyID, "1000")
	require.NoError(t, err)
	require.Equal(t, acc.ID, got.ID)
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	companyID := uuid.New()

	_, err := svc.Create(ctx, accounts.CreateInput{CompanyID: companyID, Code: "1", Name: "X", Type: "bogus"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, accounts.CreateInput{CompanyID: companyID, Code: "1", Name: "X", Type: accounts.TypeAsset, Currency: "ZZZ"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, accounts.CreateInput{CompanyID: companyID, Code: "1", Name: "X", Type: accounts.TypeAsset})
	require.NoError(t, err)
	_, err = svc.Create(ctx, accounts.CreateInput{CompanyID: companyID, Code: "1", Name: "Y", Type: accounts.TypeAsset})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	_, err = svc.Create(ctx, accounts.CreateInput{CompanyID: uuid.New(), Code: "1", Name: "Other company", Type: accounts.TypeAsset})
	require.NoError(t, err)
}

func TestListFiltersByTypeAndActivity(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	companyID := uuid.New()
	for _, in := range []accounts.CreateInput{
		{Code: "4000", Name: "Sales", Type: accounts.TypeRevenue},
		{Code: "1000", Name: "Cash", Type: accounts.TypeAsset},
		{Code: "1200", Name: "Receivables", Type: accounts.TypeAsset},
	} {
		in.CompanyID = companyID
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}
	ar, err := svc.GetByCode(ctx, companyID, "1200")
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, companyID, ar.ID)
	require.NoError(t, err)

	all, err := svc.List(ctx, companyID, accounts.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "1000", all[0].Code)

	assets, err := svc.List(ctx, companyID, accounts.Filter{Type: accounts.TypeAsset, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.Equal(t, "Cash", assets[0].Name)
}

func TestSetMappingRequiresActiveAccount(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	companyID := uuid.New()
	cash, err := svc.Create(ctx, accounts.CreateInput{CompanyID: companyID, Code: "1000", Name: "Cash", Type: accounts.TypeAsset})
	require.NoError(t, err)

	m, err := svc.SetMapping(ctx, companyID, mappings.KeyCash, cash.ID)
	require.NoError(t, err)
	require.Equal(t, cash.ID, m.AccountID)

	got, err := svc.Mapping(ctx, companyID, mappings.KeyCash)
	require.NoError(t, err)
	require.Equal(t, cash.ID, got.AccountID)

	_, err = svc.SetMapping(ctx, companyID, "nonsense", cash.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Deactivate(ctx, companyID, cash.ID)
	require.NoError(t, err)
	_, err = svc.SetMapping(ctx, companyID, mappings.KeyCash, cash.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Mapping(ctx, companyID, mappings.KeySales)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestNaturalSide(t *testing.T) {
	for _, tc := range []struct {
		typ  accounts.AccountType
		want string
	}{
		{accounts.TypeAsset, "7"},
		{accounts.TypeExpense, "7"},
		{accounts.TypeCOGS, "7"},
		{accounts.TypeLiability, "-7"},
		{accounts.TypeEquity, "-7"},
		{accounts.TypeRevenue, "-7"},
	} {
		got := tc.typ.SignedDelta(decimal.RequireFromString("10"), decimal.RequireFromString("3"))
		require.Equal(t, tc.want, got.String(), string(tc.typ))
	}
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, shared.AuditLog) error { return errors.New("audit store down") }

func TestAuditFailureIsLoggedNotReturned(t *testing.T) {
	store := memstore.New()
	var logs bytes.Buffer
	svc := accounts.NewService(store.Accounts(), store.Mappings(), "USD").
		WithAudit(failingAudit{}).
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	_, err := svc.Create(context.Background(), accounts.CreateInput{
		CompanyID: uuid.New(), Code: "1000", Name: "Cash", Type: accounts.TypeAsset,
	})
	require.NoError(t, err)
	require.Contains(t, logs.String(), "audit account")
	require.Contains(t, logs.String(), "audit store down")
}

func TestAuditWaitsForEnclosingCommit(t *testing.T) {
	svc, audit := newService()
	ctx, hooks := shared.DeferUntilCommit(context.Background())

	_, err := svc.Create(ctx, accounts.CreateInput{
		CompanyID: uuid.New(), Code: "7000", Name: "Foreign Exchange Gain/Loss", Type: accounts.TypeExpense,
	})
	require.NoError(t, err)
	require.Empty(t, audit.Records())

	hooks.Run(ctx)
	require.Len(t, audit.Records(), 1)
}
