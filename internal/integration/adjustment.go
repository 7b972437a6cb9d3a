package integration

import (
	"context"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// stockAdjustment moves stock by the counted difference and books its value:
// Dr inventory / Cr counter for a surplus, the reverse for a shortage.
func (p *Pipeline) stockAdjustment(ctx context.Context, e StockAdjustmentEvent) (plan, error) {
	switch {
	case e.ProductID == uuid.Nil:
		return plan{}, shared.NewValidationError("product_id", "is required")
	case e.Quantity.IsZero():
		return plan{}, shared.NewValidationError("quantity", "must not be zero")
	case e.UnitCost.IsNegative():
		return plan{}, shared.NewValidationError("unit_cost", "must not be negative")
	case e.CounterAccountID == uuid.Nil:
		return plan{}, shared.NewValidationError("counter_account_id", "is required")
	}
	product, err := p.Products.Product(ctx, e.CompanyID, e.ProductID)
	if err != nil {
		return plan{}, err
	}
	in := inventory.MovementInput{
		CompanyID: e.CompanyID,
		ProductID: e.ProductID,
		Location:  e.Location,
		Type:      inventory.MovementAdjustment,
		Quantity:  e.Quantity.Abs(),
		UnitCost:  e.UnitCost,
		RefType:   string(journals.SourceInventoryAdjustment),
		RefID:     e.AdjustmentID,
		Note:      e.Note,
	}
	if in.UnitCost.IsZero() || e.Quantity.IsNegative() {
		in.UnitCost = product.CostPrice
	}
	value := in.Quantity.Mul(in.UnitCost).Round(2)
	if !value.IsPositive() {
		// Without a value the movement could not be tied to an entry and
		// would repeat on redelivery.
		return plan{}, shared.NewValidationError("unit_cost", "adjustment has no value to post")
	}
	var mv inventory.Movement
	if e.Quantity.IsPositive() {
		mv, err = p.Stock.Receive(ctx, in)
	} else {
		mv, err = p.Stock.Issue(ctx, in)
	}
	if err != nil {
		return plan{}, err
	}
	inventoryAcc, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyInventory, product.InventoryAccountID)
	if err != nil {
		return plan{}, err
	}
	lines := []journals.LineIntent{
		journals.Debit(inventoryAcc, value, product.SKU),
		journals.Credit(e.CounterAccountID, value, product.SKU),
	}
	if e.Quantity.IsNegative() {
		lines = []journals.LineIntent{
			journals.Debit(e.CounterAccountID, value, product.SKU),
			journals.Credit(inventoryAcc, value, product.SKU),
		}
	}
	source, sourceID := e.Source()
	return plan{
		draft: &journals.Draft{
			CompanyID:     e.CompanyID,
			Date:          p.date(e.Date),
			Reference:     e.AdjustmentID,
			SourceType:    source,
			SourceID:      sourceID,
			NumberContext: product.SKU,
			Description:   "Stock adjustment " + product.SKU,
			Lines:         lines,
		},
		result: Result{Movements: []inventory.Movement{mv}},
	}, nil
}
