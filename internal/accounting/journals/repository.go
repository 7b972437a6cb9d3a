package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, company_id, number, date, reference, source_type, source_id, description, status,
total_debits, total_credits, posted_by, posted_at, voided_by, voided_at, void_reason, reversal_of, created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e                  JournalEntry
		postedBy, voidedBy *string
		voidReason         *string
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.Number, &e.Date, &e.Reference, &e.SourceType, &e.SourceID, &e.Description, &e.Status,
		&e.TotalDebits, &e.TotalCredits, &postedBy, &e.PostedAt, &voidedBy, &e.VoidedAt, &voidReason, &e.ReversalOf, &e.CreatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	e.PostedBy = deref(postedBy)
	e.VoidedBy = deref(voidedBy)
	e.VoidReason = deref(voidReason)
	return e, nil
}

func loadLines(ctx context.Context, q db.Querier, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(entries))
	index := make(map[uuid.UUID]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		index[e.ID] = i
	}
	rows, err := q.Query(ctx, `SELECT entry_id, account_id, account_code, account_name, description, debit, credit
FROM journal_lines WHERE entry_id = ANY($1::uuid[]) ORDER BY entry_id, line_no`, db.UUIDArray(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entryID uuid.UUID
			line    LineItem
		)
		if err := rows.Scan(&entryID, &line.AccountID, &line.AccountCode, &line.AccountName, &line.Description, &line.Debit, &line.Credit); err != nil {
			return err
		}
		i := index[entryID]
		entries[i].Lines = append(entries[i].Lines, line)
	}
	return rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id uuid.UUID) (JournalEntry, error) {
	return getEntry(ctx, db.Conn(ctx, r.pool), companyID, id, false)
}

func getEntry(ctx context.Context, q db.Querier, companyID, id uuid.UUID, forUpdate bool) (JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE company_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	entry, err := scanEntry(q.QueryRow(ctx, query, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.NewNotFoundError("journal entry", id.String())
		}
		return JournalEntry{}, err
	}
	batch := []JournalEntry{entry}
	if err := loadLines(ctx, q, batch); err != nil {
		return JournalEntry{}, err
	}
	return batch[0], nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	where := []string{"company_id=$1"}
	args := []any{filter.CompanyID}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status=$%d", filter.Status)
	}
	if filter.SourceType != "" {
		add("source_type=$%d", filter.SourceType)
	}
	if filter.From != nil {
		add("date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("date <= $%d", *filter.To)
	}
	args = append(args, filter.Limit)
	q := db.Conn(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE `+strings.Join(where, " AND ")+
		fmt.Sprintf(` ORDER BY date DESC, number DESC LIMIT $%d`, len(args)), args...)
	if err != nil {
		return nil, err
	}
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadLines(ctx, q, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) FindBySource(ctx context.Context, companyID uuid.UUID, source SourceType, sourceID string) (JournalEntry, bool, error) {
	q := db.Conn(ctx, r.pool)
	entryID, ok, err := sourceLink(ctx, q, companyID, source, sourceID)
	if err != nil || !ok {
		return JournalEntry{}, false, err
	}
	entry, err := getEntry(ctx, q, companyID, entryID, false)
	if err != nil {
		return JournalEntry{}, false, err
	}
	return entry, true, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		return fn(ctx, &txRepository{q: db.Conn(ctx, r.pool)})
	})
}

type txRepository struct {
	q db.Querier
}

func sourceLink(ctx context.Context, q db.Querier, companyID uuid.UUID, source SourceType, sourceID string) (uuid.UUID, bool, error) {
	var entryID uuid.UUID
	err := q.QueryRow(ctx, `SELECT entry_id FROM source_links WHERE company_id=$1 AND source_type=$2 AND source_id=$3`,
		companyID, source, sourceID).Scan(&entryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return entryID, true, nil
}

func (r *txRepository) SourceLink(ctx context.Context, companyID uuid.UUID, source SourceType, sourceID string) (uuid.UUID, bool, error) {
	return sourceLink(ctx, r.q, companyID, source, sourceID)
}

func (r *txRepository) LockAccounts(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]accounts.Account, error) {
	rows, err := r.q.Query(ctx, `SELECT id, company_id, code, name, type, category, currency, balance, is_active, created_at, updated_at
FROM accounts WHERE company_id=$1 AND id = ANY($2::uuid[]) ORDER BY id FOR UPDATE`, companyID, db.UUIDArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]accounts.Account, len(ids))
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Category, &a.Currency, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, e JournalEntry) error {
	_, err := r.q.Exec(ctx, `INSERT INTO journal_entries (`+entryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULL,NULL,NULL,$14,$15)`,
		e.ID, e.CompanyID, e.Number, e.Date, e.Reference, e.SourceType, e.SourceID, e.Description, e.Status,
		e.TotalDebits, e.TotalCredits, nullString(e.PostedBy), e.PostedAt, e.ReversalOf, e.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_journal_entries_number") {
			return shared.NewConflict("journal entry", "number "+e.Number+" already used")
		}
		return err
	}
	for i, line := range e.Lines {
		if _, err := r.q.Exec(ctx, `INSERT INTO journal_lines (entry_id, line_no, account_id, account_code, account_name, description, debit, credit)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, e.ID, i+1, line.AccountID, line.AccountCode, line.AccountName, line.Description, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, link SourceLink) error {
	_, err := r.q.Exec(ctx, `INSERT INTO source_links (company_id, source_type, source_id, entry_id) VALUES ($1,$2,$3,$4)`,
		link.CompanyID, link.SourceType, link.SourceID, link.EntryID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_source_links") {
			return ErrSourceConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	cmd, err := r.q.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at=NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return &AccountNotFoundError{AccountID: accountID}
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, companyID, id uuid.UUID) (JournalEntry, error) {
	return getEntry(ctx, r.q, companyID, id, true)
}

func (r *txRepository) MarkVoid(ctx context.Context, e JournalEntry) error {
	cmd, err := r.q.Exec(ctx, `UPDATE journal_entries SET status=$3, voided_by=$4, voided_at=$5, void_reason=$6
WHERE company_id=$1 AND id=$2 AND status='posted'`, e.CompanyID, e.ID, e.Status, nullString(e.VoidedBy), e.VoidedAt, e.VoidReason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
