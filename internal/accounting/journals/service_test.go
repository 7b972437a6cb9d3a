package journals_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type fixture struct {
	store     *memstore.Store
	service   *journals.Service
	balances  *balances.Service
	audit     *shared.MemoryAuditLog
	companyID uuid.UUID
	cash      accounts.Account
	sales     accounts.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	audit := &shared.MemoryAuditLog{}
	companyID := uuid.New()
	svc := accounts.NewService(store.Accounts(), store.Mappings(), "USD")
	ctx := context.Background()
	cash, err := svc.Create(ctx, accounts.CreateInput{CompanyID: companyID, Code: "1000", Name: "Cash", Type: accounts.TypeAsset})
	require.NoError(t, err)
	sales, err := svc.Create(ctx, accounts.CreateInput{CompanyID: companyID, Code: "4000", Name: "Sales", Type: accounts.TypeRevenue})
	require.NoError(t, err)

	bal := balances.NewService(store.Balances(), store.Accounts(), store, nil, nil)
	posting := journals.NewService(store.Journals(), journals.NewBuilder(store.Accounts()), audit).WithInvalidator(bal)
	return &fixture{store: store, service: posting, balances: bal, audit: audit, companyID: companyID, cash: cash, sales: sales}
}

func (f *fixture) build(t *testing.T, sourceID, amt string) journals.JournalEntry {
	t.Helper()
	entry, err := f.service.Builder().Build(context.Background(), journals.Draft{
		CompanyID:  f.companyID,
		Date:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		SourceType: journals.SourcePosSale,
		SourceID:   sourceID,
		Lines: []journals.LineIntent{
			journals.Debit(f.cash.ID, amount(amt), ""),
			journals.Credit(f.sales.ID, amount(amt), ""),
		},
	})
	require.NoError(t, err)
	return entry
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	a, err := f.store.Accounts().Get(context.Background(), f.companyID, id)
	require.NoError(t, err)
	return a.Balance.StringFixed(2)
}

func (f *fixture) requireNoDrift(t *testing.T) {
	t.Helper()
	drifts, err := f.balances.Verify(context.Background(), f.companyID)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestPostWritesEntryLinkAndBalances(t *testing.T) {
	f := newFixture(t)
	ctx := shared.ContextWithActor(context.Background(), "clerk")

	posted, err := f.service.Post(ctx, f.build(t, "sale-1", "125.50"), "")
	require.NoError(t, err)
	require.Equal(t, journals.StatusPosted, posted.Status)
	require.Equal(t, "clerk", posted.PostedBy)
	require.NotNil(t, posted.PostedAt)

	require.Equal(t, "125.50", f.balance(t, f.cash.ID))
	require.Equal(t, "125.50", f.balance(t, f.sales.ID))
	f.requireNoDrift(t)

	found, ok, err := f.service.FindBySource(ctx, f.companyID, journals.SourcePosSale, "sale-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, posted.ID, found.ID)

	records := f.audit.Records()
	require.Len(t, records, 1)
	require.Equal(t, "journal.post", records[0].Action)
}

func TestPostSameSourceTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Post(ctx, f.build(t, "sale-1", "10"), "system")
	require.NoError(t, err)

	_, err = f.service.Post(ctx, f.build(t, "sale-1", "10"), "system")
	var dup *journals.AlreadyPostedError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, first.ID, dup.ExistingID)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.Equal(t, "10.00", f.balance(t, f.cash.ID))
}

func TestPostRequiresDraft(t *testing.T) {
	f := newFixture(t)
	entry := f.build(t, "sale-1", "10")
	entry.Status = journals.StatusPosted

	_, err := f.service.Post(context.Background(), entry, "system")
	require.ErrorIs(t, err, journals.ErrInvalidStatus)
}

func TestPostRollsBackWhenAccountDeactivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.build(t, "sale-1", "10")
	require.NoError(t, f.store.Accounts().SetActive(ctx, f.companyID, f.sales.ID, false))

	_, err := f.service.Post(ctx, entry, "system")
	var inactive *journals.InactiveAccountError
	require.ErrorAs(t, err, &inactive)

	_, ok, err := f.service.FindBySource(ctx, f.companyID, journals.SourcePosSale, "sale-1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "0.00", f.balance(t, f.cash.ID))
}

func TestConcurrentPostsOfOneSourceLandOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		entry := f.build(t, "sale-race", "5")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.Post(ctx, entry, "system"); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, success)
	require.Equal(t, "5.00", f.balance(t, f.cash.ID))
	f.requireNoDrift(t)
}

func TestVoidRemovesContribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted, err := f.service.Post(ctx, f.build(t, "sale-1", "40"), "system")
	require.NoError(t, err)
	_, err = f.service.Post(ctx, f.build(t, "sale-2", "60"), "system")
	require.NoError(t, err)

	voided, err := f.service.Void(ctx, journals.VoidInput{CompanyID: f.companyID, EntryID: posted.ID, Reason: "keyed twice"})
	require.NoError(t, err)
	require.Equal(t, journals.StatusVoid, voided.Status)
	require.Equal(t, "60.00", f.balance(t, f.cash.ID))
	f.requireNoDrift(t)

	derived, err := f.balances.Balances(ctx, f.companyID)
	require.NoError(t, err)
	for _, b := range derived {
		require.Equal(t, "60.00", b.Balance.StringFixed(2), b.Code)
	}

	_, err = f.service.Void(ctx, journals.VoidInput{CompanyID: f.companyID, EntryID: posted.ID})
	require.ErrorIs(t, err, journals.ErrInvalidStatus)

	_, err = f.service.Post(ctx, f.build(t, "sale-1", "40"), "system")
	var dup *journals.AlreadyPostedError
	require.ErrorAs(t, err, &dup)
}

func TestReverseMirrorsOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted, err := f.service.Post(ctx, f.build(t, "sale-1", "70"), "system")
	require.NoError(t, err)

	reversal, err := f.service.Reverse(ctx, journals.ReverseInput{CompanyID: f.companyID, EntryID: posted.ID})
	require.NoError(t, err)
	require.Equal(t, journals.SourceReversal, reversal.SourceType)
	require.Equal(t, posted.ID.String(), reversal.SourceID)
	require.NotNil(t, reversal.ReversalOf)
	require.Equal(t, posted.ID, *reversal.ReversalOf)
	require.True(t, reversal.Lines[0].Credit.Equal(amount("70")))
	require.Equal(t, "0.00", f.balance(t, f.cash.ID))
	f.requireNoDrift(t)

	_, err = f.service.Reverse(ctx, journals.ReverseInput{CompanyID: f.companyID, EntryID: posted.ID})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestListFiltersAndLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.service.Post(ctx, f.build(t, id, "1"), "system")
		require.NoError(t, err)
	}
	all, err := f.service.List(ctx, journals.ListFilter{CompanyID: f.companyID})
	require.NoError(t, err)
	require.Len(t, all, 3)

	limited, err := f.service.List(ctx, journals.ListFilter{CompanyID: f.companyID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)

	none, err := f.service.List(ctx, journals.ListFilter{CompanyID: f.companyID, SourceType: journals.SourceBill})
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = f.service.List(ctx, journals.ListFilter{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPostingLockContention(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := cache.NewLocker(client, time.Minute).WithWait(50 * time.Millisecond)
	f.service.WithLocker(locker)

	release, err := locker.Acquire(context.Background(), shared.PostingLockKey(f.companyID.String()))
	require.NoError(t, err)

	_, err = f.service.Post(context.Background(), f.build(t, "sale-1", "1"), "system")
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	require.NoError(t, release(context.Background()))
	_, err = f.service.Post(context.Background(), f.build(t, "sale-1", "1"), "system")
	require.NoError(t, err)
}
