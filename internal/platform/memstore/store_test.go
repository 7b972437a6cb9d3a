package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func account(companyID uuid.UUID, code string) accounts.Account {
	return accounts.Account{
		ID: uuid.New(), CompanyID: companyID, Code: code, Name: "Account " + code,
		Type: accounts.TypeAsset, Currency: "USD", IsActive: true,
	}
}

func TestInTxRollsBackEveryView(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	companyID := uuid.New()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Accounts().Insert(ctx, account(companyID, "1000")))
		require.NoError(t, store.Documents().Insert(ctx, billing.Document{
			ID: uuid.New(), CompanyID: companyID, Kind: billing.KindInvoice, Number: "INV-1", Status: billing.StatusOpen,
		}))
		rate := &fx.Rate{CompanyID: companyID, Currency: "EUR", Rate: decimal.NewFromInt(1)}
		require.NoError(t, store.Rates().Insert(ctx, rate))
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := store.Accounts().List(ctx, companyID, accounts.Filter{})
	require.NoError(t, err)
	require.Empty(t, list)
	docs, err := store.Documents().List(ctx, companyID, billing.Filter{})
	require.NoError(t, err)
	require.Empty(t, docs)
	rates, err := store.Rates().List(ctx, companyID, "EUR")
	require.NoError(t, err)
	require.Empty(t, rates)
}

func TestNestedInTxJoinsOuter(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	companyID := uuid.New()

	err := store.InTx(ctx, func(ctx context.Context) error {
		inner := store.InTx(ctx, func(ctx context.Context) error {
			return store.Accounts().Insert(ctx, account(companyID, "1000"))
		})
		require.NoError(t, inner)
		// The joined write is visible before the outer commit.
		_, err := store.Accounts().GetByCode(ctx, companyID, "1000")
		require.NoError(t, err)
		return errors.New("outer fails")
	})
	require.Error(t, err)

	_, err = store.Accounts().GetByCode(ctx, companyID, "1000")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInTxSerialisesWriters(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	companyID := uuid.New()
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.InTx(ctx, func(ctx context.Context) error {
			close(entered)
			<-release
			return store.Accounts().Insert(ctx, account(companyID, "1000"))
		})
	}()
	<-entered

	read := make(chan error, 1)
	go func() {
		_, err := store.Accounts().GetByCode(ctx, companyID, "1000")
		read <- err
	}()
	select {
	case <-read:
		t.Fatal("read did not wait for the open transaction")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-read)
}

func TestAccountCodeIsUniquePerCompany(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	companyID := uuid.New()

	require.NoError(t, store.Accounts().Insert(ctx, account(companyID, "1000")))
	err := store.Accounts().Insert(ctx, account(companyID, "1000"))
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.NoError(t, store.Accounts().Insert(ctx, account(uuid.New(), "1000")))
}

func TestLatestRatePrefersNewestOnSameDay(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	companyID := uuid.New()
	day := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	for _, r := range []string{"1.10", "1.20"} {
		require.NoError(t, store.Rates().Insert(ctx, &fx.Rate{
			ID: uuid.New(), CompanyID: companyID, Currency: "EUR", Rate: decimal.RequireFromString(r),
			EffectiveDate: day, CreatedAt: at,
		}))
	}
	require.NoError(t, store.Rates().Insert(ctx, &fx.Rate{
		ID: uuid.New(), CompanyID: companyID, Currency: "EUR", Rate: decimal.RequireFromString("9"),
		EffectiveDate: day.AddDate(0, 0, 1), CreatedAt: at,
	}))

	got, ok, err := store.Rates().Latest(ctx, companyID, "EUR", day)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1.2", got.Rate.String())

	_, ok, err = store.Rates().Latest(ctx, companyID, "EUR", day.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.False(t, ok)
}
