package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo     Repository
	mappings mappings.Repository
	audit    AuditPort
	logger   *slog.Logger
	baseCcy  string
	now      func() time.Time
}

func NewService(repo Repository, maps mappings.Repository, baseCurrency string) *Service {
	return &Service{
		repo:     repo,
		mappings: maps,
		logger:   slog.Default(),
		baseCcy:  shared.NormalizeCurrency(baseCurrency),
		now:      time.Now,
	}
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithAudit attaches an audit sink.
func (s *Service) WithAudit(audit AuditPort) *Service {
	s.audit = audit
	return s
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a new account with a zero balance.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = shared.NormalizeCurrency(in.Currency)
	if in.CompanyID == uuid.Nil {
		return Account{}, shared.NewValidationError("company_id", "is required")
	}
	if err := shared.ValidateStruct(in); err != nil {
		return Account{}, err
	}
	if in.Currency == "" {
		in.Currency = s.baseCcy
	}
	now := s.now().UTC()
	account := Account{
		ID:        uuid.New(),
		CompanyID: in.CompanyID,
		Code:      in.Code,
		Name:      in.Name,
		Type:      in.Type,
		Category:  in.Category,
		Currency:  in.Currency,
		Balance:   decimal.Zero,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, account); err != nil {
		return Account{}, fmt.Errorf("accounts: create: %w", err)
	}
	s.record(ctx, "account.create", account, map[string]any{"code": account.Code, "type": string(account.Type)})
	return account, nil
}

func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (Account, error) {
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) GetByCode(ctx context.Context, companyID uuid.UUID, code string) (Account, error) {
	return s.repo.GetByCode(ctx, companyID, strings.TrimSpace(code))
}

func (s *Service) List(ctx context.Context, companyID uuid.UUID, filter Filter) ([]Account, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, shared.NewValidationError("type", "unknown account type")
	}
	return s.repo.List(ctx, companyID, filter)
}

// Deactivate stops further postings to the account. The balance is left as is.
func (s *Service) Deactivate(ctx context.Context, companyID, id uuid.UUID) (Account, error) {
	if err := s.repo.SetActive(ctx, companyID, id, false); err != nil {
		return Account{}, fmt.Errorf("accounts: deactivate: %w", err)
	}
	account, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.deactivate", account, nil)
	return account, nil
}

// SetMapping binds an integration role to an active account of the company.
func (s *Service) SetMapping(ctx context.Context, companyID uuid.UUID, key mappings.Key, accountID uuid.UUID) (mappings.AccountMapping, error) {
	if !key.Valid() {
		return mappings.AccountMapping{}, shared.NewValidationError("key", "unknown mapping key")
	}
	account, err := s.repo.Get(ctx, companyID, accountID)
	if err != nil {
		return mappings.AccountMapping{}, err
	}
	if !account.IsActive {
		return mappings.AccountMapping{}, shared.NewValidationError("account_id", "account is inactive")
	}
	m := mappings.AccountMapping{CompanyID: companyID, Key: key, AccountID: accountID, UpdatedAt: s.now().UTC()}
	if err := s.mappings.Upsert(ctx, m); err != nil {
		return mappings.AccountMapping{}, fmt.Errorf("accounts: set mapping: %w", err)
	}
	s.record(ctx, "account.mapping", account, map[string]any{"key": string(key)})
	return m, nil
}

func (s *Service) Mapping(ctx context.Context, companyID uuid.UUID, key mappings.Key) (mappings.AccountMapping, error) {
	return s.mappings.Get(ctx, companyID, key)
}

func (s *Service) Mappings(ctx context.Context, companyID uuid.UUID) ([]mappings.AccountMapping, error) {
	return s.mappings.List(ctx, companyID)
}

func (s *Service) record(ctx context.Context, action string, a Account, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		CompanyID: a.CompanyID.String(),
		Actor:     shared.ActorFromContext(ctx),
		Action:    action,
		Entity:    "account",
		EntityID:  a.ID.String(),
		Meta:      meta,
		At:        s.now(),
	}
	// Accounts auto-created during an event wait for the event's commit.
	shared.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("audit account", slog.String("action", action), slog.Any("error", err))
		}
	})
}
