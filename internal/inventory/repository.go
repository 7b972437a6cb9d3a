package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository provides persistence for products and stock.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Product(ctx context.Context, companyID, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context, companyID uuid.UUID) ([]Product, error)
	StockLevels(ctx context.Context, companyID, productID uuid.UUID) ([]StockLevel, error)
	Movements(ctx context.Context, companyID, productID uuid.UUID, limit int) ([]Movement, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertProduct(ctx context.Context, p Product) error
	ProductForUpdate(ctx context.Context, companyID, id uuid.UUID) (Product, error)
	UpdateProductStock(ctx context.Context, p Product) error
	StockLevelForUpdate(ctx context.Context, companyID, productID uuid.UUID, location string) (StockLevel, bool, error)
	UpsertStockLevel(ctx context.Context, level StockLevel) error
	InsertMovement(ctx context.Context, m Movement) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const productColumns = `id, company_id, sku, name, cost_price, unit_price, quantity_on_hand,
sales_account_id, inventory_account_id, cogs_account_id, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.CostPrice, &p.UnitPrice, &p.QuantityOnHand,
		&p.SalesAccountID, &p.InventoryAccountID, &p.COGSAccountID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getProduct(ctx context.Context, q db.Querier, companyID, id uuid.UUID, forUpdate bool) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE company_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRow(ctx, query, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NewNotFoundError("product", id.String())
	}
	return p, err
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		return fn(ctx, &pgTx{q: db.Conn(ctx, r.pool)})
	})
}

func (r *pgRepository) Product(ctx context.Context, companyID, id uuid.UUID) (Product, error) {
	return getProduct(ctx, db.Conn(ctx, r.pool), companyID, id, false)
}

func (r *pgRepository) ListProducts(ctx context.Context, companyID uuid.UUID) ([]Product, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+productColumns+` FROM products WHERE company_id=$1 ORDER BY sku`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgRepository) StockLevels(ctx context.Context, companyID, productID uuid.UUID) ([]StockLevel, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT company_id, product_id, location, quantity, updated_at
FROM stock_levels WHERE company_id=$1 AND product_id=$2 ORDER BY location`, companyID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockLevel
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.CompanyID, &l.ProductID, &l.Location, &l.Quantity, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *pgRepository) Movements(ctx context.Context, companyID, productID uuid.UUID, limit int) ([]Movement, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, company_id, product_id, location, type, quantity_in, quantity_out,
unit_cost, balance_qty, ref_type, ref_id, note, occurred_at
FROM stock_movements WHERE company_id=$1 AND product_id=$2 ORDER BY occurred_at, seq LIMIT $3`, companyID, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ProductID, &m.Location, &m.Type, &m.QuantityIn, &m.QuantityOut,
			&m.UnitCost, &m.BalanceQty, &m.RefType, &m.RefID, &m.Note, &m.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type pgTx struct {
	q db.Querier
}

func (t *pgTx) InsertProduct(ctx context.Context, p Product) error {
	_, err := t.q.Exec(ctx, `INSERT INTO products (`+productColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.CompanyID, p.SKU, p.Name, p.CostPrice, p.UnitPrice, p.QuantityOnHand,
		p.SalesAccountID, p.InventoryAccountID, p.COGSAccountID, p.CreatedAt, p.UpdatedAt)
	if db.IsUniqueViolation(err, "uq_products_company_sku") {
		return shared.NewConflict("product", "sku "+p.SKU+" already exists")
	}
	return err
}

func (t *pgTx) ProductForUpdate(ctx context.Context, companyID, id uuid.UUID) (Product, error) {
	return getProduct(ctx, t.q, companyID, id, true)
}

func (t *pgTx) UpdateProductStock(ctx context.Context, p Product) error {
	_, err := t.q.Exec(ctx, `UPDATE products SET quantity_on_hand=$3, cost_price=$4, updated_at=$5 WHERE company_id=$1 AND id=$2`,
		p.CompanyID, p.ID, p.QuantityOnHand, p.CostPrice, p.UpdatedAt)
	return err
}

func (t *pgTx) StockLevelForUpdate(ctx context.Context, companyID, productID uuid.UUID, location string) (StockLevel, bool, error) {
	var l StockLevel
	err := t.q.QueryRow(ctx, `SELECT company_id, product_id, location, quantity, updated_at
FROM stock_levels WHERE company_id=$1 AND product_id=$2 AND location=$3 FOR UPDATE`, companyID, productID, location).
		Scan(&l.CompanyID, &l.ProductID, &l.Location, &l.Quantity, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{CompanyID: companyID, ProductID: productID, Location: location}, false, nil
	}
	if err != nil {
		return StockLevel{}, false, err
	}
	return l, true, nil
}

func (t *pgTx) UpsertStockLevel(ctx context.Context, l StockLevel) error {
	_, err := t.q.Exec(ctx, `INSERT INTO stock_levels (company_id, product_id, location, quantity, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (company_id, product_id, location) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=EXCLUDED.updated_at`,
		l.CompanyID, l.ProductID, l.Location, l.Quantity, l.UpdatedAt)
	return err
}

func (t *pgTx) InsertMovement(ctx context.Context, m Movement) error {
	_, err := t.q.Exec(ctx, `INSERT INTO stock_movements (id, company_id, product_id, location, type, quantity_in, quantity_out,
unit_cost, balance_qty, ref_type, ref_id, note, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		m.ID, m.CompanyID, m.ProductID, m.Location, m.Type, m.QuantityIn, m.QuantityOut,
		m.UnitCost, m.BalanceQty, m.RefType, m.RefID, m.Note, m.OccurredAt)
	return err
}
