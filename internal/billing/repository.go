package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists billing documents.
type Repository interface {
	Insert(ctx context.Context, doc Document) error
	Get(ctx context.Context, companyID, id uuid.UUID) (Document, error)
	List(ctx context.Context, companyID uuid.UUID, filter Filter) ([]Document, error)
	// OpenForeign returns open documents not denominated in base, locked for update.
	OpenForeign(ctx context.Context, companyID uuid.UUID, base string) ([]Document, error)
	UpdateRevaluation(ctx context.Context, companyID uuid.UUID, rev Revaluation) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const documentColumns = `id, company_id, kind, number, party, date, currency, exchange_rate, total, amount_paid,
balance_due, base_balance_due, status, source_type, source_id, revalued_at, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.CompanyID, &d.Kind, &d.Number, &d.Party, &d.Date, &d.Currency, &d.ExchangeRate, &d.Total, &d.AmountPaid,
		&d.BalanceDue, &d.BaseBalanceDue, &d.Status, &d.SourceType, &d.SourceID, &d.RevaluedAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *repository) Insert(ctx context.Context, d Document) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO billing_documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		d.ID, d.CompanyID, d.Kind, d.Number, d.Party, d.Date, d.Currency, d.ExchangeRate, d.Total, d.AmountPaid,
		d.BalanceDue, d.BaseBalanceDue, d.Status, d.SourceType, d.SourceID, d.RevaluedAt, d.CreatedAt, d.UpdatedAt)
	if db.IsUniqueViolation(err, "uq_billing_documents_number") {
		return shared.NewConflict(string(d.Kind), "number "+d.Number+" already exists")
	}
	return err
}

func (r *repository) Get(ctx context.Context, companyID, id uuid.UUID) (Document, error) {
	d, err := scanDocument(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+documentColumns+` FROM billing_documents WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, shared.NewNotFoundError("document", id.String())
	}
	return d, err
}

func (r *repository) List(ctx context.Context, companyID uuid.UUID, filter Filter) ([]Document, error) {
	where := []string{"company_id=$1"}
	args := []any{companyID}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where = append(where, "kind=$2")
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	return r.query(ctx, `SELECT `+documentColumns+` FROM billing_documents WHERE `+strings.Join(where, " AND ")+` ORDER BY date, number`, args...)
}

func (r *repository) OpenForeign(ctx context.Context, companyID uuid.UUID, base string) ([]Document, error) {
	return r.query(ctx, `SELECT `+documentColumns+` FROM billing_documents
WHERE company_id=$1 AND currency<>$2 AND status IN ('open','partially_paid') AND balance_due > 0
ORDER BY kind, number FOR UPDATE`, companyID, base)
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]Document, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repository) UpdateRevaluation(ctx context.Context, companyID uuid.UUID, rev Revaluation) error {
	cmd, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE billing_documents SET exchange_rate=$3, base_balance_due=$4, revalued_at=$5, updated_at=$5
WHERE company_id=$1 AND id=$2`, companyID, rev.DocumentID, rev.Rate, rev.BaseBalanceDue, rev.At)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.NewNotFoundError("document", rev.DocumentID.String())
	}
	return nil
}
