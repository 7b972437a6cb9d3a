package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Repository interface {
	Insert(ctx context.Context, account Account) error
	Get(ctx context.Context, companyID, id uuid.UUID) (Account, error)
	GetByCode(ctx context.Context, companyID uuid.UUID, code string) (Account, error)
	List(ctx context.Context, companyID uuid.UUID, filter Filter) ([]Account, error)
	SetActive(ctx context.Context, companyID, id uuid.UUID, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const accountColumns = `id, company_id, code, name, type, category, currency, balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Category, &a.Currency, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) Insert(ctx context.Context, a Account) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.CompanyID, a.Code, a.Name, a.Type, a.Category, a.Currency, a.Balance, a.IsActive, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_company_code") {
			return shared.NewConflict("account", "code "+a.Code+" already exists")
		}
		return err
	}
	return nil
}

func (r *repository) Get(ctx context.Context, companyID, id uuid.UUID) (Account, error) {
	a, err := scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NewNotFoundError("account", id.String())
	}
	return a, err
}

func (r *repository) GetByCode(ctx context.Context, companyID uuid.UUID, code string) (Account, error) {
	a, err := scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND code=$2`, companyID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NewNotFoundError("account", code)
	}
	return a, err
}

func (r *repository) List(ctx context.Context, companyID uuid.UUID, filter Filter) ([]Account, error) {
	var (
		where = []string{"company_id=$1"}
		args  = []any{companyID}
	)
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, "type=$2")
	}
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+strings.Join(where, " AND ")+` ORDER BY code`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) SetActive(ctx context.Context, companyID, id uuid.UUID, active bool) error {
	cmd, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NewNotFoundError("account", id.String())
	}
	return nil
}
