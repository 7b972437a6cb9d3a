package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const maxStockCard = 500

// OpeningBalanceHandler books opening stock for a newly created product. It
// runs inside the product's transaction.
type OpeningBalanceHandler interface {
	ProductCreated(ctx context.Context, product Product, quantity decimal.Decimal, location string) error
}

// Invalidator drops derived balance views once opening stock has committed.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID uuid.UUID) error
}

// CompanyLocker serialises ledger writes per company. The returned context
// marks the lock as held so nested posting reuses it.
type CompanyLocker interface {
	LockCompany(ctx context.Context, companyID uuid.UUID) (context.Context, func(), error)
}

type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates product and stock operations.
type Service struct {
	repo    Repository
	stock   *Stock
	opening OpeningBalanceHandler
	cache   Invalidator
	locker  CompanyLocker
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the inventory service.
func NewService(repo Repository, stock *Stock, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stock, audit: audit, logger: slog.Default(), now: time.Now}
}

// SetLocker wires the posting lock taken before opening stock is booked.
func (s *Service) SetLocker(locker CompanyLocker) {
	s.locker = locker
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// SetOpeningHandler wires the ledger side of opening stock.
func (s *Service) SetOpeningHandler(h OpeningBalanceHandler) {
	s.opening = h
}

// SetInvalidator wires the balance cache.
func (s *Service) SetInvalidator(cache Invalidator) {
	s.cache = cache
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Stock exposes the movement engine.
func (s *Service) Stock() *Stock {
	return s.stock
}

// CreateProduct inserts the product with zero stock and, when an opening
// quantity is given, records it through the opening balance handler in the
// same transaction. Any failure leaves no product behind.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (Product, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if in.CompanyID == uuid.Nil {
		return Product{}, shared.NewValidationError("company_id", "is required")
	}
	if err := shared.ValidateStruct(in); err != nil {
		return Product{}, err
	}
	switch {
	case in.CostPrice.IsNegative():
		return Product{}, shared.NewValidationError("cost_price", "must not be negative")
	case in.UnitPrice.IsNegative():
		return Product{}, shared.NewValidationError("unit_price", "must not be negative")
	case in.QuantityOnHand.IsNegative():
		return Product{}, shared.NewValidationError("quantity_on_hand", "must not be negative")
	}
	if in.QuantityOnHand.IsPositive() && s.opening == nil {
		return Product{}, shared.NewIntegrityError("opening stock requires a ledger integration", nil)
	}
	location := in.Location
	if location == "" {
		location = DefaultLocation
	}
	now := s.now().UTC()
	product := Product{
		ID:                 uuid.New(),
		CompanyID:          in.CompanyID,
		SKU:                in.SKU,
		Name:               in.Name,
		CostPrice:          in.CostPrice,
		UnitPrice:          in.UnitPrice,
		QuantityOnHand:     decimal.Zero,
		SalesAccountID:     in.SalesAccountID,
		InventoryAccountID: in.InventoryAccountID,
		COGSAccountID:      in.COGSAccountID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.QuantityOnHand.IsPositive() && s.locker != nil {
		// The lock comes before the transaction so its snapshot sees every
		// posting that committed while we waited.
		locked, unlock, err := s.locker.LockCompany(ctx, in.CompanyID)
		if err != nil {
			return Product{}, fmt.Errorf("inventory: create product: %w", err)
		}
		defer unlock()
		ctx = locked
	}
	ctx, hooks := shared.DeferUntilCommit(ctx)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		if in.QuantityOnHand.IsPositive() {
			return s.opening.ProductCreated(ctx, product, in.QuantityOnHand, location)
		}
		return nil
	})
	if err != nil {
		return Product{}, fmt.Errorf("inventory: create product: %w", err)
	}
	hooks.Run(ctx)
	if in.QuantityOnHand.IsPositive() && s.cache != nil {
		if err := s.cache.Invalidate(ctx, product.CompanyID); err != nil {
			s.logger.Warn("invalidate balance cache", slog.String("company_id", product.CompanyID.String()), slog.Any("error", err))
		}
	}
	created, err := s.repo.Product(ctx, product.CompanyID, product.ID)
	if err != nil {
		return Product{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			CompanyID: created.CompanyID.String(),
			Actor:     shared.ActorFromContext(ctx),
			Action:    "inventory.product.create",
			Entity:    "product",
			EntityID:  created.ID.String(),
			Meta: map[string]any{
				"sku":              created.SKU,
				"quantity_on_hand": created.QuantityOnHand.String(),
			},
			At: now,
		}); err != nil {
			s.logger.Warn("audit product", slog.String("product_id", created.ID.String()), slog.Any("error", err))
		}
	}
	return created, nil
}

func (s *Service) Product(ctx context.Context, companyID, id uuid.UUID) (Product, error) {
	return s.repo.Product(ctx, companyID, id)
}

func (s *Service) ListProducts(ctx context.Context, companyID uuid.UUID) ([]Product, error) {
	return s.repo.ListProducts(ctx, companyID)
}

func (s *Service) StockLevels(ctx context.Context, companyID, productID uuid.UUID) ([]StockLevel, error) {
	return s.repo.StockLevels(ctx, companyID, productID)
}

// StockCard lists a product's movements in the order they happened.
func (s *Service) StockCard(ctx context.Context, companyID, productID uuid.UUID, limit int) ([]Movement, error) {
	if limit <= 0 || limit > maxStockCard {
		limit = maxStockCard
	}
	if _, err := s.repo.Product(ctx, companyID, productID); err != nil {
		return nil, err
	}
	return s.repo.Movements(ctx, companyID, productID, limit)
}
