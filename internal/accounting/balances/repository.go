package balances

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository reads the posted-entry log and writes materialized balances.
type Repository interface {
	PostedLines(ctx context.Context, companyID uuid.UUID) ([]Line, error)
	SetBalance(ctx context.Context, companyID, accountID uuid.UUID, balance decimal.Decimal) error
	Companies(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) PostedLines(ctx context.Context, companyID uuid.UUID) ([]Line, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT l.account_id, SUM(l.debit), SUM(l.credit)
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.company_id=$1 AND e.status='posted'
GROUP BY l.account_id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.AccountID, &l.Debit, &l.Credit); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) SetBalance(ctx context.Context, companyID, accountID uuid.UUID, balance decimal.Decimal) error {
	cmd, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE accounts SET balance=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, accountID, balance)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NewNotFoundError("account", accountID.String())
	}
	return nil
}

func (r *repository) Companies(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT DISTINCT company_id FROM accounts ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
