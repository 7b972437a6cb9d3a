package fx

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository stores exchange rates. Insert assigns Seq.
type Repository interface {
	Insert(ctx context.Context, rate *Rate) error
	List(ctx context.Context, companyID uuid.UUID, currency string) ([]Rate, error)
	// Latest returns the rate effective on asOf for currency, if one exists.
	Latest(ctx context.Context, companyID uuid.UUID, currency string, asOf time.Time) (Rate, bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const rateColumns = `id, company_id, currency, rate, effective_date, created_at, seq`

func scanRate(row pgx.Row) (Rate, error) {
	var r Rate
	err := row.Scan(&r.ID, &r.CompanyID, &r.Currency, &r.Rate, &r.EffectiveDate, &r.CreatedAt, &r.Seq)
	return r, err
}

func (r *repository) Insert(ctx context.Context, rate *Rate) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO exchange_rates (id, company_id, currency, rate, effective_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING seq`,
		rate.ID, rate.CompanyID, rate.Currency, rate.Rate, rate.EffectiveDate, rate.CreatedAt).Scan(&rate.Seq)
}

func (r *repository) List(ctx context.Context, companyID uuid.UUID, currency string) ([]Rate, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+rateColumns+` FROM exchange_rates
WHERE company_id=$1 AND ($2 = '' OR currency=$2)
ORDER BY currency, effective_date DESC, created_at DESC, seq DESC`, companyID, currency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}

func (r *repository) Latest(ctx context.Context, companyID uuid.UUID, currency string, asOf time.Time) (Rate, bool, error) {
	rate, err := scanRate(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+rateColumns+` FROM exchange_rates
WHERE company_id=$1 AND currency=$2 AND effective_date <= $3::date
ORDER BY effective_date DESC, created_at DESC, seq DESC
LIMIT 1`, companyID, currency, asOf))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	return rate, true, nil
}
