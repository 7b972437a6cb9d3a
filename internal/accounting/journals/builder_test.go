package journals_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type stubLookup map[uuid.UUID]accounts.Account

func (s stubLookup) Get(_ context.Context, _, id uuid.UUID) (accounts.Account, error) {
	a, ok := s[id]
	if !ok {
		return accounts.Account{}, shared.NewNotFoundError("account", id.String())
	}
	return a, nil
}

func lookupWith(companyID uuid.UUID, accts ...accounts.Account) stubLookup {
	out := stubLookup{}
	for _, a := range accts {
		a.CompanyID = companyID
		out[a.ID] = a
	}
	return out
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	cashAcc  = accounts.Account{ID: uuid.New(), Code: "1000", Name: "Cash", Type: accounts.TypeAsset, IsActive: true}
	salesAcc = accounts.Account{ID: uuid.New(), Code: "4000", Name: "Sales", Type: accounts.TypeRevenue, IsActive: true}
	oldAcc   = accounts.Account{ID: uuid.New(), Code: "1999", Name: "Closed", Type: accounts.TypeAsset, IsActive: false}
)

func draft(companyID uuid.UUID, lines ...journals.LineIntent) journals.Draft {
	return journals.Draft{
		CompanyID:     companyID,
		Date:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		SourceType:    journals.SourcePosSale,
		SourceID:      "sale-1",
		NumberContext: "rcpt 0001/a",
		Lines:         lines,
	}
}

func TestBuildProducesBalancedDraft(t *testing.T) {
	companyID := uuid.New()
	b := journals.NewBuilder(lookupWith(companyID, cashAcc, salesAcc))

	entry, err := b.Build(context.Background(), draft(companyID,
		journals.Debit(cashAcc.ID, amount("100.00"), "cash"),
		journals.Credit(salesAcc.ID, amount("60.00"), "item"),
		journals.Credit(salesAcc.ID, amount("40.00"), "item"),
	))
	require.NoError(t, err)
	require.Equal(t, journals.StatusDraft, entry.Status)
	require.True(t, entry.TotalDebits.Equal(amount("100")))
	require.True(t, entry.TotalCredits.Equal(entry.TotalDebits))
	require.Equal(t, "1000", entry.Lines[0].AccountCode)
	require.Equal(t, "Sales", entry.Lines[1].AccountName)
	require.True(t, strings.HasPrefix(entry.Number, "JE-POS-RCPT0001A-"), entry.Number)
	require.NoError(t, journals.CheckInvariants(entry))
}

func TestBuildNumbersAreUniqueAndSortable(t *testing.T) {
	companyID := uuid.New()
	b := journals.NewBuilder(lookupWith(companyID, cashAcc, salesAcc))
	d := draft(companyID, journals.Debit(cashAcc.ID, amount("1"), ""), journals.Credit(salesAcc.ID, amount("1"), ""))
	d.NumberContext = ""

	prev := ""
	for i := 0; i < 50; i++ {
		entry, err := b.Build(context.Background(), d)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(entry.Number, "JE-POS-"))
		require.Greater(t, entry.Number, prev)
		prev = entry.Number
	}
}

func TestBuildRejectsInvalidDrafts(t *testing.T) {
	companyID := uuid.New()
	b := journals.NewBuilder(lookupWith(companyID, cashAcc, salesAcc, oldAcc))
	ctx := context.Background()

	_, err := b.Build(ctx, draft(companyID,
		journals.Debit(cashAcc.ID, amount("100.00"), ""),
		journals.Credit(salesAcc.ID, amount("99.99"), ""),
	))
	var unbalanced *journals.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = b.Build(ctx, draft(companyID, journals.Debit(cashAcc.ID, amount("1"), "")))
	require.ErrorIs(t, err, journals.ErrTooFewLines)

	both := journals.LineIntent{AccountID: cashAcc.ID, Debit: amount("1"), Credit: amount("1")}
	_, err = b.Build(ctx, draft(companyID, both, journals.Credit(salesAcc.ID, amount("0"), "")))
	var lineErr *journals.LineError
	require.ErrorAs(t, err, &lineErr)
	require.Equal(t, 0, lineErr.Index)

	_, err = b.Build(ctx, draft(companyID,
		journals.Debit(cashAcc.ID, amount("-5"), ""),
		journals.Credit(salesAcc.ID, amount("-5"), ""),
	))
	require.ErrorAs(t, err, &lineErr)

	missing := uuid.New()
	_, err = b.Build(ctx, draft(companyID, journals.Debit(missing, amount("1"), ""), journals.Credit(salesAcc.ID, amount("1"), "")))
	var notFound *journals.AccountNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, missing, notFound.AccountID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = b.Build(ctx, draft(companyID, journals.Debit(oldAcc.ID, amount("1"), ""), journals.Credit(salesAcc.ID, amount("1"), "")))
	var inactive *journals.InactiveAccountError
	require.ErrorAs(t, err, &inactive)
}

func TestBuildRejectsSubCentAmounts(t *testing.T) {
	companyID := uuid.New()
	b := journals.NewBuilder(lookupWith(companyID, cashAcc, salesAcc))

	_, err := b.Build(context.Background(), draft(companyID,
		journals.Debit(cashAcc.ID, amount("0.005"), ""),
		journals.Debit(cashAcc.ID, amount("0.005"), ""),
		journals.Credit(salesAcc.ID, amount("0.01"), ""),
	))
	var lineErr *journals.LineError
	require.ErrorAs(t, err, &lineErr)
	require.Equal(t, 0, lineErr.Index)
	require.ErrorIs(t, err, shared.ErrValidation)

	entry, err := b.Build(context.Background(), draft(companyID,
		journals.Debit(cashAcc.ID, amount("10.500"), ""),
		journals.Credit(salesAcc.ID, amount("10.5"), ""),
	))
	require.NoError(t, err)
	require.Equal(t, "10.50", entry.TotalDebits.StringFixed(2))
}

func TestBuildRejectsOtherCompanyAccounts(t *testing.T) {
	companyID := uuid.New()
	b := journals.NewBuilder(lookupWith(uuid.New(), cashAcc, salesAcc))

	_, err := b.Build(context.Background(), draft(companyID,
		journals.Debit(cashAcc.ID, amount("1"), ""),
		journals.Credit(salesAcc.ID, amount("1"), ""),
	))
	var notFound *journals.AccountNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCheckInvariantsCatchesTamperedTotals(t *testing.T) {
	companyID := uuid.New()
	b := journals.NewBuilder(lookupWith(companyID, cashAcc, salesAcc))
	entry, err := b.Build(context.Background(), draft(companyID,
		journals.Debit(cashAcc.ID, amount("10"), ""),
		journals.Credit(salesAcc.ID, amount("10"), ""),
	))
	require.NoError(t, err)

	entry.TotalDebits = amount("11")
	require.Error(t, journals.CheckInvariants(entry))
}
