package integration

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const walkInCustomer = "Walk-in customer"

func validatePosSale(e PosSaleEvent) error {
	if len(e.Lines) == 0 {
		return shared.NewValidationError("lines", "sale requires at least one line")
	}
	if e.Tax.IsNegative() {
		return shared.NewValidationError("tax", "must not be negative")
	}
	if !e.Tax.Equal(e.Tax.Round(journals.AmountScale)) {
		return shared.NewValidationError("tax", "is limited to two decimal places")
	}
	for i, line := range e.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if !line.Quantity.IsPositive() {
			return shared.NewValidationError(field+".quantity", "must be positive")
		}
		if line.UnitPrice != nil && line.UnitPrice.IsNegative() {
			return shared.NewValidationError(field+".unit_price", "must not be negative")
		}
	}
	return nil
}

// posSale issues the sold stock, then debits cash for the takings against
// revenue and, for costed items, COGS against inventory. The paid invoice is
// written after the entry.
func (p *Pipeline) posSale(ctx context.Context, e PosSaleEvent) (plan, error) {
	if err := validatePosSale(e); err != nil {
		return plan{}, err
	}
	var (
		revenue, cogs, stock grouped
		subtotal             decimal.Decimal
		movements            []inventory.Movement
	)
	for _, line := range e.Lines {
		product, err := p.Products.Product(ctx, e.CompanyID, line.ProductID)
		if err != nil {
			return plan{}, err
		}
		price := product.UnitPrice
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		amount := line.Quantity.Mul(price).Round(2)
		subtotal = subtotal.Add(amount)

		mv, err := p.Stock.Issue(ctx, inventory.MovementInput{
			CompanyID: e.CompanyID,
			ProductID: product.ID,
			Location:  e.Location,
			Type:      inventory.MovementSale,
			Quantity:  line.Quantity,
			RefType:   string(journals.SourcePosSale),
			RefID:     e.SaleID,
		})
		if err != nil {
			return plan{}, err
		}
		movements = append(movements, mv)

		salesAcc, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeySales, product.SalesAccountID)
		if err != nil {
			return plan{}, err
		}
		revenue.add(salesAcc, amount)

		cost := line.Quantity.Mul(mv.UnitCost).Round(2)
		if !cost.IsPositive() {
			continue
		}
		cogsAcc, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyCOGS, product.COGSAccountID)
		if err != nil {
			return plan{}, err
		}
		inventoryAcc, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyInventory, product.InventoryAccountID)
		if err != nil {
			return plan{}, err
		}
		cogs.add(cogsAcc, cost)
		stock.add(inventoryAcc, cost)
	}
	if e.Tax.IsPositive() {
		salesAcc, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeySales, nil)
		if err != nil {
			return plan{}, err
		}
		revenue.add(salesAcc, e.Tax)
	}
	total := subtotal.Add(e.Tax)
	if !total.IsPositive() {
		return plan{}, shared.NewValidationError("lines", "sale total must be positive")
	}
	cashAcc, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyCash, e.CashAccountID)
	if err != nil {
		return plan{}, err
	}

	receipt := strings.TrimSpace(e.ReceiptNumber)
	if receipt == "" {
		receipt = "POS-" + e.SaleID
	}
	lines := []journals.LineIntent{journals.Debit(cashAcc, total, "cash received")}
	lines = append(lines, revenue.credits("sales revenue")...)
	lines = append(lines, cogs.debits("cost of goods sold")...)
	lines = append(lines, stock.credits("inventory issued")...)

	source, sourceID := e.Source()
	date := p.date(e.Date)
	return plan{
		draft: &journals.Draft{
			CompanyID:     e.CompanyID,
			Date:          date,
			Reference:     receipt,
			SourceType:    source,
			SourceID:      sourceID,
			NumberContext: receipt,
			Description:   "POS sale " + receipt,
			Lines:         lines,
		},
		result: Result{Movements: movements},
		after: func(ctx context.Context, res *Result) error {
			party := strings.TrimSpace(e.Customer)
			if party == "" {
				party = walkInCustomer
			}
			now := p.now().UTC()
			doc := billing.Document{
				ID:             uuid.New(),
				CompanyID:      e.CompanyID,
				Kind:           billing.KindInvoice,
				Number:         receipt,
				Party:          party,
				Date:           date,
				Currency:       p.Rates.BaseCurrency(),
				ExchangeRate:   decimal.NewFromInt(1),
				Total:          total,
				AmountPaid:     total,
				BalanceDue:     decimal.Zero,
				BaseBalanceDue: decimal.Zero,
				Status:         billing.StatusPaid,
				SourceType:     string(source),
				SourceID:       sourceID,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := p.Documents.Insert(ctx, doc); err != nil {
				return err
			}
			res.Document = &doc
			return nil
		},
	}, nil
}
