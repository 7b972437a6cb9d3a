package fx_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestLatestPicksMostRecentEffectiveRate(t *testing.T) {
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rates := []fx.Rate{
		{Currency: "EUR", Rate: decimal.RequireFromString("1.05"), EffectiveDate: day("2026-01-01"), CreatedAt: created, Seq: 1},
		{Currency: "EUR", Rate: decimal.RequireFromString("1.10"), EffectiveDate: day("2026-02-01"), CreatedAt: created, Seq: 2},
		{Currency: "EUR", Rate: decimal.RequireFromString("1.20"), EffectiveDate: day("2026-03-01"), CreatedAt: created, Seq: 3},
		{Currency: "GBP", Rate: decimal.RequireFromString("0.80"), EffectiveDate: day("2026-02-01"), CreatedAt: created, Seq: 4},
	}

	got, ok := fx.Latest(rates, "EUR", day("2026-02-15"))
	require.True(t, ok)
	require.True(t, got.Rate.Equal(decimal.RequireFromString("1.10")))

	_, ok = fx.Latest(rates, "EUR", day("2025-12-31"))
	require.False(t, ok)
}

func TestLatestBreaksTiesByCreationThenSequence(t *testing.T) {
	early := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	rates := []fx.Rate{
		{Currency: "EUR", Rate: decimal.RequireFromString("1.10"), EffectiveDate: day("2026-02-01"), CreatedAt: late, Seq: 1},
		{Currency: "EUR", Rate: decimal.RequireFromString("1.30"), EffectiveDate: day("2026-02-01"), CreatedAt: late, Seq: 7},
		{Currency: "EUR", Rate: decimal.RequireFromString("1.50"), EffectiveDate: day("2026-02-01"), CreatedAt: early, Seq: 9},
	}

	got, ok := fx.Latest(rates, "EUR", day("2026-02-01"))
	require.True(t, ok)
	require.Equal(t, int64(7), got.Seq)
}

func TestBaseValueRoundsToCents(t *testing.T) {
	require.Equal(t, "909.09", fx.BaseValue(decimal.NewFromInt(1000), decimal.RequireFromString("1.1")).StringFixed(2))
	require.True(t, fx.BaseValue(decimal.NewFromInt(10), decimal.Zero).IsZero())
}

func TestMissingRateIsIntegrityError(t *testing.T) {
	err := error(&fx.MissingRateError{Currency: "EUR", AsOf: day("2026-02-01")})
	require.ErrorIs(t, err, shared.ErrIntegrity)
	require.Contains(t, err.Error(), "2026-02-01")
}
