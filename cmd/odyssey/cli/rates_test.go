package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/memstore"
)

type ratesFixture struct {
	cli       *RatesCLI
	rates     *fx.Service
	store     *memstore.Store
	companyID uuid.UUID
}

func newRatesFixture(t *testing.T) ratesFixture {
	t.Helper()
	store := memstore.New()
	rates := fx.NewService(store.Rates(), "USD")
	ratesCLI, err := NewRatesCLI(rates, billing.NewService(store.Documents()))
	require.NoError(t, err)
	return ratesFixture{cli: ratesCLI, rates: rates, store: store, companyID: uuid.New()}
}

func (f ratesFixture) addDocument(t *testing.T, number, currency string, status billing.Status) {
	t.Helper()
	require.NoError(t, f.store.Documents().Insert(context.Background(), billing.Document{
		ID:           uuid.New(),
		CompanyID:    f.companyID,
		Kind:         billing.KindInvoice,
		Number:       number,
		Date:         time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Currency:     currency,
		ExchangeRate: decimal.NewFromInt(1),
		Total:        decimal.NewFromInt(100),
		BalanceDue:   decimal.NewFromInt(100),
		Status:       status,
	}))
}

func TestImportCommandDryRunWritesNothing(t *testing.T) {
	f := newRatesFixture(t)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := f.cli.ImportCommand(context.Background(), ImportOptions{
		CompanyID:  f.companyID,
		Source:     strings.NewReader("date,currency,rate\n2024-01-01,eur,0.9\n2024-01-01,GBP,0.8\n"),
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, code, stderr.String())

	var summary ImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, ImportModeDry, summary.Mode)
	require.Len(t, summary.Parsed, 2)
	require.Equal(t, "EUR", summary.Parsed[0].Currency)
	require.Zero(t, summary.Applied)

	listed, err := f.rates.ListRates(context.Background(), f.companyID, "EUR")
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestImportCommandApplyRecordsRates(t *testing.T) {
	f := newRatesFixture(t)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := f.cli.ImportCommand(context.Background(), ImportOptions{
		CompanyID: f.companyID,
		Mode:      ImportModeApply,
		Source:    strings.NewReader("2024-01-01,EUR,0.9\n2024-02-01,EUR,0.95\n"),
		Stdout:    stdout,
		Stderr:    stderr,
	})
	require.Zero(t, code, stderr.String())
	require.Contains(t, stdout.String(), "2 rate(s) recorded")

	rate, err := f.rates.RateOn(context.Background(), f.companyID, "EUR", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.95").Equal(rate.Rate))
}

func TestImportCommandRejectsMalformedRows(t *testing.T) {
	cases := map[string]string{
		"bad date":      "01/02/2024,EUR,0.9\n",
		"base currency": "2024-01-01,USD,1\n",
		"zero rate":     "2024-01-01,EUR,0\n",
		"not a number":  "2024-01-01,EUR,abc\n",
	}
	for name, source := range cases {
		t.Run(name, func(t *testing.T) {
			f := newRatesFixture(t)
			stderr := new(bytes.Buffer)
			code := f.cli.ImportCommand(context.Background(), ImportOptions{
				CompanyID: f.companyID,
				Mode:      ImportModeApply,
				Source:    strings.NewReader("2024-01-01,EUR,0.9\n" + source),
				Stdout:    new(bytes.Buffer),
				Stderr:    stderr,
			})
			require.Equal(t, 1, code)
			require.Contains(t, stderr.String(), "line 2")

			listed, err := f.rates.ListRates(context.Background(), f.companyID, "EUR")
			require.NoError(t, err)
			require.Empty(t, listed)
		})
	}
}

func TestImportCommandInvalidMode(t *testing.T) {
	f := newRatesFixture(t)
	stderr := new(bytes.Buffer)
	code := f.cli.ImportCommand(context.Background(), ImportOptions{
		CompanyID: f.companyID,
		Mode:      "later",
		Source:    strings.NewReader(""),
		Stderr:    stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "invalid mode")
}

func TestCheckCommandReportsGaps(t *testing.T) {
	f := newRatesFixture(t)
	ctx := context.Background()
	f.addDocument(t, "INV-1", "EUR", billing.StatusOpen)
	f.addDocument(t, "INV-2", "GBP", billing.StatusPartiallyPaid)
	f.addDocument(t, "INV-3", "JPY", billing.StatusPaid)
	f.addDocument(t, "INV-4", "USD", billing.StatusOpen)
	_, err := f.rates.AddRate(ctx, fx.AddRateInput{
		CompanyID:     f.companyID,
		Currency:      "EUR",
		Rate:          decimal.RequireFromString("0.9"),
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := f.cli.CheckCommand(ctx, CheckOptions{
		CompanyID:  f.companyID,
		AsOf:       "2024-01-31",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, ExitGaps, code)
	require.Empty(t, stderr.String())

	var summary CheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, map[string]string{"EUR": "0.9"}, summary.Available)
	require.Equal(t, []RateGap{{Currency: "GBP", Documents: []string{"INV-2"}}}, summary.Gaps)
}

func TestCheckCommandHumanOutput(t *testing.T) {
	f := newRatesFixture(t)
	stdout := new(bytes.Buffer)
	code := f.cli.CheckCommand(context.Background(), CheckOptions{
		CompanyID: f.companyID,
		AsOf:      "2024-01-31",
		Stdout:    stdout,
		Stderr:    new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "No open foreign-currency documents.")
}

func TestCheckCommandInvalidDate(t *testing.T) {
	f := newRatesFixture(t)
	stderr := new(bytes.Buffer)
	code := f.cli.CheckCommand(context.Background(), CheckOptions{
		CompanyID: f.companyID,
		AsOf:      "31-01-2024",
		Stdout:    new(bytes.Buffer),
		Stderr:    stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "invalid --as-of")
}

func TestRootCommandRunsRatesImport(t *testing.T) {
	f := newRatesFixture(t)
	root := NewRootCommand(func(context.Context) (*RatesCLI, func(), error) {
		return f.cli, func() {}, nil
	}, nil)
	stdout := new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader("2024-01-01,EUR,0.9\n"))

	code := Execute(context.Background(), root, []string{"rates", "import", "--company", f.companyID.String(), "--mode", "apply"})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "1 rate(s) recorded")
}

func TestRootCommandPropagatesGapExitCode(t *testing.T) {
	f := newRatesFixture(t)
	f.addDocument(t, "INV-1", "EUR", billing.StatusOpen)
	root := NewRootCommand(func(context.Context) (*RatesCLI, func(), error) {
		return f.cli, func() {}, nil
	}, nil)
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))

	code := Execute(context.Background(), root, []string{"rates", "check", "--company", f.companyID.String(), "--as-of", "2024-01-31"})
	require.Equal(t, ExitGaps, code)
}

func TestRootCommandRejectsBadCompany(t *testing.T) {
	root := NewRootCommand(nil, nil)
	stderr := new(bytes.Buffer)
	root.SetErr(stderr)
	code := Execute(context.Background(), root, []string{"rates", "check", "--company", "nope"})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "invalid --company")
}
