package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.InTx(ctx, func(ctx context.Context) error {
		return fn(ctx, inventoryTx{r.s})
	})
}

func (r inventoryRepo) Product(ctx context.Context, companyID, id uuid.UUID) (inventory.Product, error) {
	var out inventory.Product
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok || p.CompanyID != companyID {
			return shared.NewNotFoundError("product", id.String())
		}
		out = p
		return nil
	})
	return out, err
}

func (r inventoryRepo) ListProducts(ctx context.Context, companyID uuid.UUID) ([]inventory.Product, error) {
	var out []inventory.Product
	err := r.s.read(ctx, func(st *state) error {
		for _, p := range st.products {
			if p.CompanyID == companyID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, err
}

func (r inventoryRepo) StockLevels(ctx context.Context, companyID, productID uuid.UUID) ([]inventory.StockLevel, error) {
	var out []inventory.StockLevel
	err := r.s.read(ctx, func(st *state) error {
		for k, l := range st.levels {
			if k.product == productID && l.CompanyID == companyID {
				out = append(out, l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, err
}

// Movements returns the stock card in insertion order.
func (r inventoryRepo) Movements(ctx context.Context, companyID, productID uuid.UUID, limit int) ([]inventory.Movement, error) {
	var out []inventory.Movement
	err := r.s.read(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.CompanyID == companyID && m.ProductID == productID {
				out = append(out, m)
				if limit > 0 && len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

type inventoryTx struct{ s *Store }

func (t inventoryTx) InsertProduct(ctx context.Context, p inventory.Product) error {
	return t.s.write(ctx, func(st *state) error {
		for _, existing := range st.products {
			if existing.CompanyID == p.CompanyID && existing.SKU == p.SKU {
				return shared.NewConflict("product", "sku "+p.SKU+" already exists")
			}
		}
		st.products[p.ID] = p
		return nil
	})
}

func (t inventoryTx) ProductForUpdate(ctx context.Context, companyID, id uuid.UUID) (inventory.Product, error) {
	return inventoryRepo(t).Product(ctx, companyID, id)
}

func (t inventoryTx) UpdateProductStock(ctx context.Context, p inventory.Product) error {
	return t.s.write(ctx, func(st *state) error {
		current, ok := st.products[p.ID]
		if !ok || current.CompanyID != p.CompanyID {
			return shared.NewNotFoundError("product", p.ID.String())
		}
		current.QuantityOnHand = p.QuantityOnHand
		current.CostPrice = p.CostPrice
		current.UpdatedAt = p.UpdatedAt
		st.products[p.ID] = current
		return nil
	})
}

func (t inventoryTx) StockLevelForUpdate(ctx context.Context, companyID, productID uuid.UUID, location string) (inventory.StockLevel, bool, error) {
	out := inventory.StockLevel{CompanyID: companyID, ProductID: productID, Location: location}
	var found bool
	err := t.s.read(ctx, func(st *state) error {
		if l, ok := st.levels[levelKey{productID, location}]; ok {
			out, found = l, true
		}
		return nil
	})
	return out, found, err
}

func (t inventoryTx) UpsertStockLevel(ctx context.Context, l inventory.StockLevel) error {
	return t.s.write(ctx, func(st *state) error {
		st.levels[levelKey{l.ProductID, l.Location}] = l
		return nil
	})
}

func (t inventoryTx) InsertMovement(ctx context.Context, m inventory.Movement) error {
	return t.s.write(ctx, func(st *state) error {
		st.movements = append(st.movements, m)
		return nil
	})
}
