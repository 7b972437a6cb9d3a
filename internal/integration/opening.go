package integration

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// openingBalance receives the opening quantity into stock and, when the
// product carries a cost, debits inventory against opening equity.
func (p *Pipeline) openingBalance(ctx context.Context, e OpeningBalanceEvent) (plan, error) {
	product := e.Product
	if !e.Quantity.IsPositive() {
		return plan{}, shared.NewValidationError("quantity_on_hand", "must be positive")
	}
	mv, err := p.Stock.Receive(ctx, inventory.MovementInput{
		CompanyID: e.CompanyID,
		ProductID: product.ID,
		Location:  e.Location,
		Type:      inventory.MovementOpeningBalance,
		Quantity:  e.Quantity,
		UnitCost:  product.CostPrice,
		RefType:   string(journals.SourceOpeningBalance),
		RefID:     product.ID.String(),
		Note:      "opening balance",
	})
	if err != nil {
		return plan{}, err
	}
	pl := plan{result: Result{Movements: []inventory.Movement{mv}}}

	value := e.Quantity.Mul(product.CostPrice).Round(2)
	if !value.IsPositive() {
		return pl, nil
	}
	inventoryAcc, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyInventory, product.InventoryAccountID)
	if err != nil {
		return plan{}, err
	}
	equityAcc, err := p.Resolver.Resolve(ctx, e.CompanyID, mappings.KeyOpeningEquity, nil)
	if err != nil {
		return plan{}, err
	}
	source, sourceID := e.Source()
	pl.draft = &journals.Draft{
		CompanyID:     e.CompanyID,
		Date:          p.date(e.Date),
		Reference:     product.SKU,
		SourceType:    source,
		SourceID:      sourceID,
		NumberContext: product.SKU,
		Description:   "Opening balance " + product.SKU,
		Lines: []journals.LineIntent{
			journals.Debit(inventoryAcc, value, product.Name),
			journals.Credit(equityAcc, value, product.Name),
		},
	}
	return pl, nil
}
