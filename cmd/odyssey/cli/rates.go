package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ExitGaps is returned by the check command when open documents lack a rate.
const ExitGaps = 10

// RateBook is the slice of the fx service the rate commands need.
type RateBook interface {
	BaseCurrency() string
	AddRate(ctx context.Context, in fx.AddRateInput) (fx.Rate, error)
	RateOn(ctx context.Context, companyID uuid.UUID, currency string, asOf time.Time) (fx.Rate, error)
}

// DocumentLister lists billing documents of a company.
type DocumentLister interface {
	List(ctx context.Context, companyID uuid.UUID, filter billing.Filter) ([]billing.Document, error)
}

// RatesCLI offers operational helpers to load and audit exchange rates.
type RatesCLI struct {
	rates     RateBook
	documents DocumentLister
}

// NewRatesCLI constructs the helper.
func NewRatesCLI(rates RateBook, documents DocumentLister) (*RatesCLI, error) {
	if rates == nil {
		return nil, errors.New("rates cli: rate book required")
	}
	return &RatesCLI{rates: rates, documents: documents}, nil
}

// ImportMode enumerates supported execution strategies.
type ImportMode string

const (
	// ImportModeDry parses and validates without writing.
	ImportModeDry ImportMode = "dry"
	// ImportModeApply records every parsed quote.
	ImportModeApply ImportMode = "apply"
)

// ImportOptions configures the import command. The source is CSV with the
// columns date,currency,rate; a header row is skipped.
type ImportOptions struct {
	CompanyID  uuid.UUID
	Mode       ImportMode
	Source     io.Reader
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ImportedRate is one parsed quote.
type ImportedRate struct {
	Date     string `json:"date"`
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

// ImportSummary is the JSON report of an import.
type ImportSummary struct {
	Mode    ImportMode     `json:"mode"`
	Parsed  []ImportedRate `json:"parsed"`
	Applied int            `json:"applied"`
}

// ImportCommand parses the source and, in apply mode, records every quote.
// Any malformed row aborts before anything is written.
func (c *RatesCLI) ImportCommand(ctx context.Context, opts ImportOptions) int {
	setDefaults(&opts.Stdout, &opts.Stderr)
	mode := ImportMode(strings.ToLower(string(opts.Mode)))
	if mode == "" {
		mode = ImportModeDry
	}
	if mode != ImportModeDry && mode != ImportModeApply {
		fmt.Fprintf(opts.Stderr, "rates import: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}
	if opts.CompanyID == uuid.Nil {
		fmt.Fprintln(opts.Stderr, "rates import: --company is required")
		return 1
	}
	if opts.Source == nil {
		fmt.Fprintln(opts.Stderr, "rates import: no source")
		return 1
	}
	inputs, parsed, err := c.parseRates(opts.CompanyID, opts.Source)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "rates import: %v\n", err)
		return 1
	}

	summary := ImportSummary{Mode: mode, Parsed: parsed}
	if mode == ImportModeApply {
		for _, in := range inputs {
			if _, err := c.rates.AddRate(ctx, in); err != nil {
				fmt.Fprintf(opts.Stderr, "rates import: %s %s: %v\n", in.Currency, in.EffectiveDate.Format(time.DateOnly), err)
				return 1
			}
			summary.Applied++
		}
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "rates import: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	for _, r := range parsed {
		fmt.Fprintf(opts.Stdout, "%s  %s  %s\n", r.Date, r.Currency, r.Rate)
	}
	if mode == ImportModeDry {
		fmt.Fprintf(opts.Stdout, "%d rate(s) parsed, rerun with --mode apply to record them\n", len(parsed))
	} else {
		fmt.Fprintf(opts.Stdout, "%d rate(s) recorded\n", summary.Applied)
	}
	return 0
}

func (c *RatesCLI) parseRates(companyID uuid.UUID, source io.Reader) ([]fx.AddRateInput, []ImportedRate, error) {
	reader := csv.NewReader(source)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	base := c.rates.BaseCurrency()
	var (
		inputs []fx.AddRateInput
		parsed []ImportedRate
	)
	for i, rec := range records {
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}
		line := i + 1
		date, err := time.Parse(time.DateOnly, strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid date %q (expected YYYY-MM-DD)", line, rec[0])
		}
		currency := shared.NormalizeCurrency(rec[1])
		if !shared.ValidCurrency(currency) || currency == base {
			return nil, nil, fmt.Errorf("line %d: invalid currency %q", line, rec[1])
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
		if err != nil || !rate.IsPositive() {
			return nil, nil, fmt.Errorf("line %d: rate must be a positive number", line)
		}
		inputs = append(inputs, fx.AddRateInput{CompanyID: companyID, Currency: currency, Rate: rate, EffectiveDate: date})
		parsed = append(parsed, ImportedRate{Date: date.Format(time.DateOnly), Currency: currency, Rate: rate.String()})
	}
	if len(inputs) == 0 {
		return nil, nil, errors.New("no rates found")
	}
	return inputs, parsed, nil
}

// CheckOptions configures the check command.
type CheckOptions struct {
	CompanyID  uuid.UUID
	AsOf       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RateGap is a foreign currency held by open documents with no rate on the date.
type RateGap struct {
	Currency  string   `json:"currency"`
	Documents []string `json:"documents"`
}

// CheckSummary is the JSON report of a check.
type CheckSummary struct {
	OK        bool              `json:"ok"`
	AsOf      string            `json:"as_of"`
	Available map[string]string `json:"available"`
	Gaps      []RateGap         `json:"gaps"`
}

// CheckCommand reports the foreign currencies of open documents that the
// revaluation would fail on, exiting with ExitGaps when any are found.
func (c *RatesCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	setDefaults(&opts.Stdout, &opts.Stderr)
	if opts.CompanyID == uuid.Nil {
		fmt.Fprintln(opts.Stderr, "rates check: --company is required")
		return 1
	}
	if c.documents == nil {
		fmt.Fprintln(opts.Stderr, "rates check: documents not configured")
		return 1
	}
	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if opts.AsOf != "" {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(opts.AsOf))
		if err != nil {
			fmt.Fprintf(opts.Stderr, "rates check: invalid --as-of %q (expected YYYY-MM-DD)\n", opts.AsOf)
			return 1
		}
		asOf = parsed
	}

	docs, err := c.documents.List(ctx, opts.CompanyID, billing.Filter{})
	if err != nil {
		fmt.Fprintf(opts.Stderr, "rates check: %v\n", err)
		return 1
	}
	base := c.rates.BaseCurrency()
	byCurrency := make(map[string][]string)
	for _, doc := range docs {
		if !doc.Open() || doc.Currency == base {
			continue
		}
		byCurrency[doc.Currency] = append(byCurrency[doc.Currency], doc.Number)
	}
	currencies := make([]string, 0, len(byCurrency))
	for currency := range byCurrency {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	summary := CheckSummary{AsOf: asOf.Format(time.DateOnly), Available: map[string]string{}, Gaps: []RateGap{}}
	for _, currency := range currencies {
		rate, err := c.rates.RateOn(ctx, opts.CompanyID, currency, asOf)
		var missing *fx.MissingRateError
		switch {
		case errors.As(err, &missing):
			numbers := byCurrency[currency]
			sort.Strings(numbers)
			summary.Gaps = append(summary.Gaps, RateGap{Currency: currency, Documents: numbers})
		case err != nil:
			fmt.Fprintf(opts.Stderr, "rates check: %s: %v\n", currency, err)
			return 1
		default:
			summary.Available[currency] = rate.Rate.String()
		}
	}
	summary.OK = len(summary.Gaps) == 0

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "rates check: encode json: %v\n", err)
			return 1
		}
	} else {
		renderCheckHuman(opts.Stdout, summary, currencies)
	}
	if !summary.OK {
		return ExitGaps
	}
	return 0
}

func renderCheckHuman(w io.Writer, summary CheckSummary, currencies []string) {
	fmt.Fprintf(w, "Rates as of %s\n", summary.AsOf)
	if len(currencies) == 0 {
		fmt.Fprintln(w, "No open foreign-currency documents.")
		return
	}
	for _, currency := range currencies {
		if rate, ok := summary.Available[currency]; ok {
			fmt.Fprintf(w, "  %s  %s\n", currency, rate)
		}
	}
	for _, gap := range summary.Gaps {
		fmt.Fprintf(w, "  %s  MISSING (%s)\n", gap.Currency, strings.Join(gap.Documents, ", "))
	}
}

func setDefaults(stdout, stderr *io.Writer) {
	if *stdout == nil {
		*stdout = os.Stdout
	}
	if *stderr == nil {
		*stderr = os.Stderr
	}
}
