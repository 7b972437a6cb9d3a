package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// costScale is the precision kept for moving-average unit costs.
const costScale = 4

// Stock applies movements to product quantities, per-location levels and the
// stock card in one transaction.
type Stock struct {
	repo          Repository
	allowNegative bool
	now           func() time.Time
}

func NewStock(repo Repository, allowNegative bool) *Stock {
	return &Stock{repo: repo, allowNegative: allowNegative, now: time.Now}
}

func (s *Stock) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Receive adds quantity and folds the unit cost into the product's moving
// average cost.
func (s *Stock) Receive(ctx context.Context, in MovementInput) (Movement, error) {
	if in.Type == "" {
		in.Type = MovementReceipt
	}
	if in.UnitCost.IsNegative() {
		return Movement{}, ErrInvalidUnitCost
	}
	return s.apply(ctx, in, in.Quantity)
}

// Issue removes quantity. The movement is costed at the product's current cost.
func (s *Stock) Issue(ctx context.Context, in MovementInput) (Movement, error) {
	if in.Type == "" {
		in.Type = MovementSale
	}
	return s.apply(ctx, in, in.Quantity.Neg())
}

func (s *Stock) apply(ctx context.Context, in MovementInput, change decimal.Decimal) (Movement, error) {
	if in.CompanyID == uuid.Nil || in.ProductID == uuid.Nil {
		return Movement{}, shared.NewValidationError("product_id", "company and product are required")
	}
	if !in.Quantity.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	if in.Location == "" {
		in.Location = DefaultLocation
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.ProductForUpdate(ctx, in.CompanyID, in.ProductID)
		if err != nil {
			return err
		}
		level, _, err := tx.StockLevelForUpdate(ctx, in.CompanyID, in.ProductID, in.Location)
		if err != nil {
			return err
		}
		newLevel := level.Quantity.Add(change)
		newOnHand := product.QuantityOnHand.Add(change)
		if !s.allowNegative && (newLevel.IsNegative() || newOnHand.IsNegative()) {
			return ErrNegativeStock
		}
		now := s.now().UTC()
		unitCost := product.CostPrice
		if change.IsPositive() {
			unitCost = in.UnitCost
			product.CostPrice = movingAverage(product.QuantityOnHand, product.CostPrice, change, in.UnitCost)
		}
		product.QuantityOnHand = newOnHand
		product.UpdatedAt = now
		if err := tx.UpdateProductStock(ctx, product); err != nil {
			return err
		}
		level.Quantity = newLevel
		level.UpdatedAt = now
		if err := tx.UpsertStockLevel(ctx, level); err != nil {
			return err
		}
		movement = Movement{
			ID:         uuid.New(),
			CompanyID:  in.CompanyID,
			ProductID:  in.ProductID,
			Location:   in.Location,
			Type:       in.Type,
			UnitCost:   unitCost,
			BalanceQty: newOnHand,
			RefType:    in.RefType,
			RefID:      in.RefID,
			Note:       in.Note,
			OccurredAt: now,
		}
		if change.IsPositive() {
			movement.QuantityIn = change
		} else {
			movement.QuantityOut = change.Neg()
		}
		return tx.InsertMovement(ctx, movement)
	})
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: %s movement: %w", in.Type, err)
	}
	return movement, nil
}

// movingAverage blends the incoming cost into the on-hand cost. Stock that
// was at or below zero takes the incoming cost outright.
func movingAverage(onHand, avgCost, qtyIn, unitCost decimal.Decimal) decimal.Decimal {
	if !onHand.IsPositive() {
		return unitCost
	}
	total := onHand.Mul(avgCost).Add(qtyIn.Mul(unitCost))
	return total.DivRound(onHand.Add(qtyIn), costScale)
}
