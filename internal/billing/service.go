package billing

import (
	"context"

	"github.com/google/uuid"
)

// Service exposes read access to billing documents. Documents are written by
// the ledger integration so each one has its journal entry.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (Document, error) {
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) List(ctx context.Context, companyID uuid.UUID, filter Filter) ([]Document, error) {
	return s.repo.List(ctx, companyID, filter)
}
