package balances

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDeriveAppliesNaturalSign(t *testing.T) {
	cash := accounts.Account{ID: uuid.New(), Code: "1000", Name: "Cash", Type: accounts.TypeAsset}
	sales := accounts.Account{ID: uuid.New(), Code: "4000", Name: "Sales", Type: accounts.TypeRevenue}
	cogs := accounts.Account{ID: uuid.New(), Code: "5000", Name: "COGS", Type: accounts.TypeCOGS}
	idle := accounts.Account{ID: uuid.New(), Code: "2000", Name: "Payables", Type: accounts.TypeLiability}

	got := Derive([]accounts.Account{sales, cash, cogs, idle}, []Line{
		{AccountID: cash.ID, Debit: d("100"), Credit: d("30")},
		{AccountID: sales.ID, Credit: d("100")},
		{AccountID: cogs.ID, Debit: d("40")},
		{AccountID: uuid.New(), Debit: d("999")},
	})
	require.Len(t, got, 4)
	require.Equal(t, []string{"1000", "2000", "4000", "5000"}, []string{got[0].Code, got[1].Code, got[2].Code, got[3].Code})
	require.Equal(t, "70", got[0].Balance.String())
	require.True(t, got[1].Balance.IsZero())
	require.Equal(t, "100", got[2].Balance.String())
	require.Equal(t, "40", got[3].Balance.String())
}

func TestCompareReportsDriftOnly(t *testing.T) {
	ok := accounts.Account{ID: uuid.New(), Code: "1000", Type: accounts.TypeAsset, Balance: d("10")}
	bad := accounts.Account{ID: uuid.New(), Code: "4000", Type: accounts.TypeRevenue, Balance: d("12")}
	derived := []Balance{
		{AccountID: ok.ID, Balance: d("10.00")},
		{AccountID: bad.ID, Balance: d("10")},
	}

	drifts := Compare([]accounts.Account{bad, ok}, derived)
	require.Len(t, drifts, 1)
	require.Equal(t, "4000", drifts[0].Code)
	require.Equal(t, "2", drifts[0].Difference().String())
}
