package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type accountRepo struct{ s *Store }

func (r accountRepo) Insert(ctx context.Context, a accounts.Account) error {
	return r.s.write(ctx, func(st *state) error {
		for _, existing := range st.accounts {
			if existing.CompanyID == a.CompanyID && existing.Code == a.Code {
				return shared.NewConflict("account", "code "+a.Code+" already exists")
			}
		}
		st.accounts[a.ID] = a
		return nil
	})
}

func (r accountRepo) Get(ctx context.Context, companyID, id uuid.UUID) (accounts.Account, error) {
	var out accounts.Account
	err := r.s.read(ctx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok || a.CompanyID != companyID {
			return shared.NewNotFoundError("account", id.String())
		}
		out = a
		return nil
	})
	return out, err
}

func (r accountRepo) GetByCode(ctx context.Context, companyID uuid.UUID, code string) (accounts.Account, error) {
	var out accounts.Account
	err := r.s.read(ctx, func(st *state) error {
		for _, a := range st.accounts {
			if a.CompanyID == companyID && a.Code == code {
				out = a
				return nil
			}
		}
		return shared.NewNotFoundError("account", code)
	})
	return out, err
}

func (r accountRepo) List(ctx context.Context, companyID uuid.UUID, filter accounts.Filter) ([]accounts.Account, error) {
	var out []accounts.Account
	err := r.s.read(ctx, func(st *state) error {
		for _, a := range st.accounts {
			if a.CompanyID == companyID && filter.Match(a) {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r accountRepo) SetActive(ctx context.Context, companyID, id uuid.UUID, active bool) error {
	return r.s.write(ctx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok || a.CompanyID != companyID {
			return shared.NewNotFoundError("account", id.String())
		}
		a.IsActive = active
		a.UpdatedAt = time.Now().UTC()
		st.accounts[id] = a
		return nil
	})
}

type mappingRepo struct{ s *Store }

func (r mappingRepo) Get(ctx context.Context, companyID uuid.UUID, key mappings.Key) (mappings.AccountMapping, error) {
	var out mappings.AccountMapping
	err := r.s.read(ctx, func(st *state) error {
		m, ok := st.mappings[mappingKey{companyID, key}]
		if !ok {
			return shared.NewNotFoundError("account mapping", string(key))
		}
		out = m
		return nil
	})
	return out, err
}

func (r mappingRepo) List(ctx context.Context, companyID uuid.UUID) ([]mappings.AccountMapping, error) {
	var out []mappings.AccountMapping
	err := r.s.read(ctx, func(st *state) error {
		for k, m := range st.mappings {
			if k.company == companyID {
				out = append(out, m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, err
}

func (r mappingRepo) Upsert(ctx context.Context, m mappings.AccountMapping) error {
	return r.s.write(ctx, func(st *state) error {
		st.mappings[mappingKey{m.CompanyID, m.Key}] = m
		return nil
	})
}

type journalRepo struct{ s *Store }

func (r journalRepo) Get(ctx context.Context, companyID, id uuid.UUID) (journals.JournalEntry, error) {
	var out journals.JournalEntry
	err := r.s.read(ctx, func(st *state) error {
		e, ok := st.entries[id]
		if !ok || e.CompanyID != companyID {
			return shared.NewNotFoundError("journal entry", id.String())
		}
		out = e
		return nil
	})
	return out, err
}

func (r journalRepo) List(ctx context.Context, filter journals.ListFilter) ([]journals.JournalEntry, error) {
	var out []journals.JournalEntry
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if filter.Match(e) {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Number > out[j].Number
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

func (r journalRepo) FindBySource(ctx context.Context, companyID uuid.UUID, source journals.SourceType, sourceID string) (journals.JournalEntry, bool, error) {
	var (
		out   journals.JournalEntry
		found bool
	)
	err := r.s.read(ctx, func(st *state) error {
		id, ok := st.links[linkKey{companyID, source, sourceID}]
		if ok {
			out, found = st.entries[id]
		}
		return nil
	})
	return out, found, err
}

func (r journalRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.s.InTx(ctx, func(ctx context.Context) error {
		return fn(ctx, journalTx{r.s})
	})
}

type journalTx struct{ s *Store }

func (t journalTx) SourceLink(ctx context.Context, companyID uuid.UUID, source journals.SourceType, sourceID string) (uuid.UUID, bool, error) {
	var (
		id uuid.UUID
		ok bool
	)
	err := t.s.read(ctx, func(st *state) error {
		id, ok = st.links[linkKey{companyID, source, sourceID}]
		return nil
	})
	return id, ok, err
}

func (t journalTx) LockAccounts(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]accounts.Account, error) {
	out := make(map[uuid.UUID]accounts.Account, len(ids))
	err := t.s.read(ctx, func(st *state) error {
		for _, id := range ids {
			if a, ok := st.accounts[id]; ok && a.CompanyID == companyID {
				out[id] = a
			}
		}
		return nil
	})
	return out, err
}

func (t journalTx) InsertEntry(ctx context.Context, e journals.JournalEntry) error {
	return t.s.write(ctx, func(st *state) error {
		for _, existing := range st.entries {
			if existing.CompanyID == e.CompanyID && existing.Number == e.Number {
				return shared.NewConflict("journal entry", "number "+e.Number+" already used")
			}
		}
		e.Lines = append([]journals.LineItem(nil), e.Lines...)
		st.entries[e.ID] = e
		return nil
	})
}

func (t journalTx) LinkSource(ctx context.Context, link journals.SourceLink) error {
	return t.s.write(ctx, func(st *state) error {
		key := linkKey{link.CompanyID, link.SourceType, link.SourceID}
		if _, ok := st.links[key]; ok {
			return journals.ErrSourceConflict
		}
		st.links[key] = link.EntryID
		return nil
	})
}

func (t journalTx) ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	return t.s.write(ctx, func(st *state) error {
		a, ok := st.accounts[accountID]
		if !ok {
			return &journals.AccountNotFoundError{AccountID: accountID}
		}
		a.Balance = a.Balance.Add(delta)
		a.UpdatedAt = time.Now().UTC()
		st.accounts[accountID] = a
		return nil
	})
}

func (t journalTx) GetForUpdate(ctx context.Context, companyID, id uuid.UUID) (journals.JournalEntry, error) {
	return journalRepo(t).Get(ctx, companyID, id)
}

func (t journalTx) MarkVoid(ctx context.Context, e journals.JournalEntry) error {
	return t.s.write(ctx, func(st *state) error {
		current, ok := st.entries[e.ID]
		if !ok || current.CompanyID != e.CompanyID || current.Status != journals.StatusPosted {
			return journals.ErrInvalidStatus
		}
		current.Status = e.Status
		current.VoidedBy = e.VoidedBy
		current.VoidedAt = e.VoidedAt
		current.VoidReason = e.VoidReason
		st.entries[e.ID] = current
		return nil
	})
}

type balanceRepo struct{ s *Store }

func (r balanceRepo) PostedLines(ctx context.Context, companyID uuid.UUID) ([]balances.Line, error) {
	totals := make(map[uuid.UUID]*balances.Line)
	var order []uuid.UUID
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.CompanyID != companyID || e.Status != journals.StatusPosted {
				continue
			}
			for _, l := range e.Lines {
				agg, ok := totals[l.AccountID]
				if !ok {
					agg = &balances.Line{AccountID: l.AccountID}
					totals[l.AccountID] = agg
					order = append(order, l.AccountID)
				}
				agg.Debit = agg.Debit.Add(l.Debit)
				agg.Credit = agg.Credit.Add(l.Credit)
			}
		}
		return nil
	})
	out := make([]balances.Line, 0, len(order))
	for _, id := range order {
		out = append(out, *totals[id])
	}
	return out, err
}

func (r balanceRepo) SetBalance(ctx context.Context, companyID, accountID uuid.UUID, balance decimal.Decimal) error {
	return r.s.write(ctx, func(st *state) error {
		a, ok := st.accounts[accountID]
		if !ok || a.CompanyID != companyID {
			return shared.NewNotFoundError("account", accountID.String())
		}
		a.Balance = balance
		a.UpdatedAt = time.Now().UTC()
		st.accounts[accountID] = a
		return nil
	})
}

func (r balanceRepo) Companies(ctx context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	err := r.s.read(ctx, func(st *state) error {
		for _, a := range st.accounts {
			if _, ok := seen[a.CompanyID]; !ok {
				seen[a.CompanyID] = struct{}{}
				out = append(out, a.CompanyID)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, err
}
