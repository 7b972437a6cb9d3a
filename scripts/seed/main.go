package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ledger, err := app.BuildLedger(ctx, cfg, logger, nil)
	if err != nil {
		log.Fatalf("build ledger: %v", err)
	}
	defer ledger.Close()

	companyID := uuid.New()
	if raw := os.Getenv("SEED_COMPANY_ID"); raw != "" {
		if companyID, err = uuid.Parse(raw); err != nil {
			log.Fatalf("SEED_COMPANY_ID: %v", err)
		}
	}
	ctx = shared.ContextWithActor(ctx, "seed")

	fmt.Println("→ Seeding chart of accounts...")
	chart, err := seedAccounts(ctx, ledger.Accounts, companyID)
	if err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	fmt.Println("→ Seeding exchange rates...")
	if err := seedRates(ctx, ledger.Rates, companyID); err != nil {
		log.Fatalf("seed rates: %v", err)
	}

	fmt.Println("→ Seeding products with opening stock...")
	if err := seedProducts(ctx, ledger.Inventory, companyID, chart); err != nil {
		log.Fatalf("seed products: %v", err)
	}

	tb, err := ledger.Balances.TrialBalance(ctx, companyID)
	if err != nil {
		log.Fatalf("trial balance: %v", err)
	}
	fmt.Printf("✓ Company %s seeded, trial balance debit %s credit %s\n", companyID, tb.TotalDebit, tb.TotalCredit)
}

var chartOfAccounts = []accounts.CreateInput{
	{Code: "1000", Name: "Cash on Hand", Type: accounts.TypeAsset, Category: "cash"},
	{Code: "1200", Name: "Accounts Receivable", Type: accounts.TypeAsset, Category: "receivable"},
	{Code: "1300", Name: "Merchandise Inventory", Type: accounts.TypeAsset, Category: "inventory"},
	{Code: "2000", Name: "Accounts Payable", Type: accounts.TypeLiability, Category: "payable"},
	{Code: "2100", Name: "Sales Tax Payable", Type: accounts.TypeLiability, Category: "tax"},
	{Code: "3000", Name: "Retained Earnings", Type: accounts.TypeEquity},
	{Code: "3900", Name: "Opening Balance Equity", Type: accounts.TypeEquity},
	{Code: "4000", Name: "Sales Revenue", Type: accounts.TypeRevenue},
	{Code: "5000", Name: "Cost of Goods Sold", Type: accounts.TypeCOGS},
	{Code: "6000", Name: "Office Supplies", Type: accounts.TypeExpense},
	{Code: "6100", Name: "Inventory Shrinkage", Type: accounts.TypeExpense},
	{Code: "7000", Name: "Foreign Exchange Gain/Loss", Type: accounts.TypeExpense, Category: "other_expense"},
}

func seedAccounts(ctx context.Context, svc *accounts.Service, companyID uuid.UUID) (map[string]uuid.UUID, error) {
	chart := make(map[string]uuid.UUID, len(chartOfAccounts))
	for _, in := range chartOfAccounts {
		in.CompanyID = companyID
		acct, err := svc.Create(ctx, in)
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			acct, err = svc.GetByCode(ctx, companyID, in.Code)
		}
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", in.Code, err)
		}
		chart[in.Code] = acct.ID
	}
	return chart, nil
}

func seedRates(ctx context.Context, svc *fx.Service, companyID uuid.UUID) error {
	start := time.Now().UTC().AddDate(0, -1, 0)
	quotes := []struct {
		currency string
		rate     string
	}{
		{"EUR", "0.92"},
		{"GBP", "0.79"},
		{"JPY", "151.20"},
	}
	for _, q := range quotes {
		if _, err := svc.AddRate(ctx, fx.AddRateInput{
			CompanyID:     companyID,
			Currency:      q.currency,
			Rate:          decimal.RequireFromString(q.rate),
			EffectiveDate: start,
		}); err != nil {
			return fmt.Errorf("rate %s: %w", q.currency, err)
		}
	}
	return nil
}

func seedProducts(ctx context.Context, svc *inventory.Service, companyID uuid.UUID, chart map[string]uuid.UUID) error {
	inventoryAccount := chart["1300"]
	products := []struct {
		sku, name        string
		cost, price, qty string
	}{
		{"SKU-001", "Espresso Beans 1kg", "12.50", "24.00", "40"},
		{"SKU-002", "Paper Cups (100)", "3.20", "6.50", "120"},
		{"SKU-003", "Milk Frother", "18.00", "39.90", "10"},
	}
	for _, p := range products {
		_, err := svc.CreateProduct(ctx, inventory.CreateProductInput{
			CompanyID:          companyID,
			SKU:                p.sku,
			Name:               p.name,
			CostPrice:          decimal.RequireFromString(p.cost),
			UnitPrice:          decimal.RequireFromString(p.price),
			QuantityOnHand:     decimal.RequireFromString(p.qty),
			InventoryAccountID: &inventoryAccount,
		})
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("product %s: %w", p.sku, err)
		}
	}
	return nil
}
