package mappings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Repository interface {
	Get(ctx context.Context, companyID uuid.UUID, key Key) (AccountMapping, error)
	List(ctx context.Context, companyID uuid.UUID) ([]AccountMapping, error)
	Upsert(ctx context.Context, mapping AccountMapping) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, companyID uuid.UUID, key Key) (AccountMapping, error) {
	var m AccountMapping
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT company_id, key, account_id, updated_at
FROM account_mappings WHERE company_id=$1 AND key=$2`, companyID, string(key)).
		Scan(&m.CompanyID, &m.Key, &m.AccountID, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.NewNotFoundError("account mapping", string(key))
		}
		return AccountMapping{}, err
	}
	return m, nil
}

func (r *repository) List(ctx context.Context, companyID uuid.UUID) ([]AccountMapping, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT company_id, key, account_id, updated_at
FROM account_mappings WHERE company_id=$1 ORDER BY key`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.CompanyID, &m.Key, &m.AccountID, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Upsert(ctx context.Context, m AccountMapping) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO account_mappings (company_id, key, account_id, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (company_id, key) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()`,
		m.CompanyID, string(m.Key), m.AccountID)
	return err
}
