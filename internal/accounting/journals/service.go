package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, companyID, id uuid.UUID) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, error)
	FindBySource(ctx context.Context, companyID uuid.UUID, source SourceType, sourceID string) (JournalEntry, bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	SourceLink(ctx context.Context, companyID uuid.UUID, source SourceType, sourceID string) (uuid.UUID, bool, error)
	// LockAccounts re-reads the accounts and holds them until commit. Missing
	// ids are absent from the result.
	LockAccounts(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]accounts.Account, error)
	InsertEntry(ctx context.Context, entry JournalEntry) error
	LinkSource(ctx context.Context, link SourceLink) error
	ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error
	GetForUpdate(ctx context.Context, companyID, id uuid.UUID) (JournalEntry, error)
	MarkVoid(ctx context.Context, entry JournalEntry) error
}

type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker serialises posting per company.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// Invalidator drops derived views after the ledger changes.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID uuid.UUID) error
}

// Observer receives posting outcomes for metrics.
type Observer interface {
	ObservePosting(action, source, outcome string)
}

type Service struct {
	repo     Repository
	builder  *Builder
	audit    AuditPort
	locker   Locker
	cache    Invalidator
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, builder *Builder, audit AuditPort) *Service {
	return &Service{repo: repo, builder: builder, audit: audit, logger: slog.Default(), now: time.Now}
}

func (s *Service) WithLocker(locker Locker) *Service {
	s.locker = locker
	return s
}

func (s *Service) WithInvalidator(cache Invalidator) *Service {
	s.cache = cache
	return s
}

func (s *Service) WithObserver(observer Observer) *Service {
	s.observer = observer
	return s
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Builder returns the builder used for reversals and manual entries.
func (s *Service) Builder() *Builder {
	return s.builder
}

func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (JournalEntry, error) {
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	if filter.CompanyID == uuid.Nil {
		return nil, shared.NewValidationError("company_id", "is required")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	return s.repo.List(ctx, filter)
}

// FindBySource returns the entry posted for a business event, if any.
func (s *Service) FindBySource(ctx context.Context, companyID uuid.UUID, source SourceType, sourceID string) (JournalEntry, bool, error) {
	return s.repo.FindBySource(ctx, companyID, source, sourceID)
}

type heldLockKey struct{}

// LockCompany takes the per-company posting lock unless ctx already holds it.
// The returned context marks the lock as held for nested posting calls.
func (s *Service) LockCompany(ctx context.Context, companyID uuid.UUID) (context.Context, func(), error) {
	if s.locker == nil {
		return ctx, func() {}, nil
	}
	key := shared.PostingLockKey(companyID.String())
	if held, _ := ctx.Value(heldLockKey{}).(string); held == key {
		return ctx, func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return ctx, nil, err
		}
		return ctx, nil, fmt.Errorf("journals: posting lock: %w", err)
	}
	return context.WithValue(ctx, heldLockKey{}, key), func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release posting lock", slog.String("company_id", companyID.String()), slog.Any("error", err))
		}
	}, nil
}

// Post writes a draft entry, its source link and the balance deltas in one
// transaction. Audit, metrics and cache invalidation wait for the outermost
// commit when the caller deferred them with shared.DeferUntilCommit.
func (s *Service) Post(ctx context.Context, entry JournalEntry, actor string) (JournalEntry, error) {
	if entry.Status != StatusDraft {
		return JournalEntry{}, ErrInvalidStatus
	}
	if err := CheckInvariants(entry); err != nil {
		return JournalEntry{}, err
	}
	if actor == "" {
		actor = shared.ActorFromContext(ctx)
	}
	ctx, unlock, err := s.LockCompany(ctx, entry.CompanyID)
	if err != nil {
		s.observe("post", entry.SourceType, "conflict")
		return JournalEntry{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.post(ctx, tx, &entry, actor)
	})
	if err != nil {
		s.observe("post", entry.SourceType, outcome(err))
		return JournalEntry{}, err
	}
	posted := entry
	shared.AfterCommit(ctx, func(ctx context.Context) {
		s.observe("post", posted.SourceType, "posted")
		s.record(ctx, actor, "journal.post", posted, map[string]any{
			"number":      posted.Number,
			"source_type": string(posted.SourceType),
			"source_id":   posted.SourceID,
			"total":       posted.TotalDebits.String(),
		})
		s.invalidate(ctx, posted.CompanyID)
	})
	return entry, nil
}

func (s *Service) post(ctx context.Context, tx TxRepository, entry *JournalEntry, actor string) error {
	existing, linked, err := tx.SourceLink(ctx, entry.CompanyID, entry.SourceType, entry.SourceID)
	if err != nil {
		return err
	}
	if linked {
		return &AlreadyPostedError{SourceType: entry.SourceType, SourceID: entry.SourceID, ExistingID: existing}
	}
	locked, err := s.lockAccounts(ctx, tx, *entry)
	if err != nil {
		return err
	}
	for _, id := range entry.AccountIDs() {
		if !locked[id].IsActive {
			return &InactiveAccountError{AccountID: id, Code: locked[id].Code}
		}
	}

	now := s.now().UTC()
	entry.Status = StatusPosted
	entry.PostedBy = actor
	entry.PostedAt = &now
	if err := tx.InsertEntry(ctx, *entry); err != nil {
		return err
	}
	if err := tx.LinkSource(ctx, SourceLink{
		CompanyID:  entry.CompanyID,
		SourceType: entry.SourceType,
		SourceID:   entry.SourceID,
		EntryID:    entry.ID,
	}); err != nil {
		if errors.Is(err, ErrSourceConflict) {
			return &AlreadyPostedError{SourceType: entry.SourceType, SourceID: entry.SourceID}
		}
		return err
	}
	return applyDeltas(ctx, tx, entry.Lines, locked, false)
}

func (s *Service) lockAccounts(ctx context.Context, tx TxRepository, entry JournalEntry) (map[uuid.UUID]accounts.Account, error) {
	ids := entry.AccountIDs()
	locked, err := tx.LockAccounts(ctx, entry.CompanyID, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, &AccountNotFoundError{AccountID: id}
		}
	}
	return locked, nil
}

// applyDeltas adds (or with negate, subtracts) each account's net signed delta.
func applyDeltas(ctx context.Context, tx TxRepository, lines []LineItem, locked map[uuid.UUID]accounts.Account, negate bool) error {
	deltas := make(map[uuid.UUID]decimal.Decimal, len(locked))
	order := make([]uuid.UUID, 0, len(locked))
	for _, line := range lines {
		acc := locked[line.AccountID]
		if _, ok := deltas[line.AccountID]; !ok {
			order = append(order, line.AccountID)
		}
		deltas[line.AccountID] = deltas[line.AccountID].Add(acc.Type.SignedDelta(line.Debit, line.Credit))
	}
	for _, id := range order {
		delta := deltas[id]
		if negate {
			delta = delta.Neg()
		}
		if delta.IsZero() {
			continue
		}
		if err := tx.ApplyBalanceDelta(ctx, id, delta); err != nil {
			return err
		}
	}
	return nil
}

// Void moves a posted entry to void and removes its contribution from the
// materialized balances. Stock and documents written by the originating event
// are not touched.
func (s *Service) Void(ctx context.Context, in VoidInput) (JournalEntry, error) {
	if in.CompanyID == uuid.Nil || in.EntryID == uuid.Nil {
		return JournalEntry{}, shared.NewValidationError("entry_id", "company and entry are required")
	}
	if in.Actor == "" {
		in.Actor = shared.ActorFromContext(ctx)
	}
	ctx, unlock, err := s.LockCompany(ctx, in.CompanyID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer unlock()

	var entry JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, in.CompanyID, in.EntryID)
		if err != nil {
			return err
		}
		if current.Status != StatusPosted {
			return ErrInvalidStatus
		}
		locked, err := s.lockAccounts(ctx, tx, current)
		if err != nil {
			return err
		}
		if err := applyDeltas(ctx, tx, current.Lines, locked, true); err != nil {
			return err
		}
		now := s.now().UTC()
		current.Status = StatusVoid
		current.VoidedAt = &now
		current.VoidedBy = in.Actor
		current.VoidReason = in.Reason
		if err := tx.MarkVoid(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		s.observe("void", "", outcome(err))
		return JournalEntry{}, err
	}
	shared.AfterCommit(ctx, func(ctx context.Context) {
		s.observe("void", entry.SourceType, "voided")
		s.record(ctx, in.Actor, "journal.void", entry, map[string]any{"number": entry.Number, "reason": in.Reason})
		s.invalidate(ctx, entry.CompanyID)
	})
	return entry, nil
}

// Reverse posts a mirror entry that cancels a posted one. The original stays posted.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.CompanyID == uuid.Nil || in.EntryID == uuid.Nil {
		return JournalEntry{}, shared.NewValidationError("entry_id", "company and entry are required")
	}
	if in.Actor == "" {
		in.Actor = shared.ActorFromContext(ctx)
	}
	ctx, unlock, err := s.LockCompany(ctx, in.CompanyID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer unlock()

	var reversal JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetForUpdate(ctx, in.CompanyID, in.EntryID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return ErrInvalidStatus
		}
		date := original.Date
		if in.Date != nil {
			date = *in.Date
		}
		built, err := s.builder.Build(ctx, Draft{
			CompanyID:   original.CompanyID,
			Date:        date,
			Reference:   original.Number,
			SourceType:  SourceReversal,
			SourceID:    original.ID.String(),
			Description: defaultReversalDescription(in.Description, original.Number),
			Lines:       reverseLines(original.Lines),
		})
		if err != nil {
			return err
		}
		built.ReversalOf = &original.ID
		if err := s.post(ctx, tx, &built, in.Actor); err != nil {
			return err
		}
		reversal = built
		return nil
	})
	if err != nil {
		s.observe("reverse", SourceReversal, outcome(err))
		return JournalEntry{}, err
	}
	shared.AfterCommit(ctx, func(ctx context.Context) {
		s.observe("reverse", SourceReversal, "posted")
		s.record(ctx, in.Actor, "journal.reverse", reversal, map[string]any{
			"reversal_of": in.EntryID.String(),
			"number":      reversal.Number,
		})
		s.invalidate(ctx, reversal.CompanyID)
	})
	return reversal, nil
}

func reverseLines(lines []LineItem) []LineIntent {
	out := make([]LineIntent, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineIntent{
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}

func defaultReversalDescription(desc, number string) string {
	if desc != "" {
		return desc
	}
	return "Reversal of " + number
}

func outcome(err error) string {
	switch {
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound):
		return "rejected"
	default:
		return "error"
	}
}

func (s *Service) observe(action string, source SourceType, result string) {
	if s.observer != nil {
		s.observer.ObservePosting(action, string(source), result)
	}
}

func (s *Service) invalidate(ctx context.Context, companyID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, companyID); err != nil {
		s.logger.Warn("invalidate balance cache", slog.String("company_id", companyID.String()), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor, action string, entry JournalEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: entry.CompanyID.String(),
		Actor:     actor,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  entry.ID.String(),
		Meta:      meta,
		At:        s.now(),
	}); err != nil {
		s.logger.Warn("audit journal", slog.String("action", action), slog.Any("error", err))
	}
}
