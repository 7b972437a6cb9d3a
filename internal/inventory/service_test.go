package inventory

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type memoryRepo struct {
	products  map[uuid.UUID]Product
	levels    map[string]StockLevel
	movements []Movement
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[uuid.UUID]Product), levels: make(map[string]StockLevel)}
}

func levelKey(productID uuid.UUID, location string) string {
	return productID.String() + ":" + location
}

// WithTx restores the previous state when fn fails.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	products := make(map[uuid.UUID]Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	levels := make(map[string]StockLevel, len(r.levels))
	for k, v := range r.levels {
		levels[k] = v
	}
	movements := append([]Movement(nil), r.movements...)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products, r.levels, r.movements = products, levels, movements
		return err
	}
	return nil
}

func (r *memoryRepo) Product(_ context.Context, companyID, id uuid.UUID) (Product, error) {
	p, ok := r.products[id]
	if !ok || p.CompanyID != companyID {
		return Product{}, shared.NewNotFoundError("product", id.String())
	}
	return p, nil
}

func (r *memoryRepo) ListProducts(_ context.Context, companyID uuid.UUID) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) StockLevels(_ context.Context, _, productID uuid.UUID) ([]StockLevel, error) {
	var out []StockLevel
	for _, l := range r.levels {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) Movements(_ context.Context, _, productID uuid.UUID, limit int) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.ProductID == productID && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertProduct(_ context.Context, p Product) error {
	for _, existing := range tx.repo.products {
		if existing.CompanyID == p.CompanyID && existing.SKU == p.SKU {
			return shared.NewConflict("product", "sku exists")
		}
	}
	tx.repo.products[p.ID] = p
	return nil
}

func (tx *memoryTx) ProductForUpdate(ctx context.Context, companyID, id uuid.UUID) (Product, error) {
	return tx.repo.Product(ctx, companyID, id)
}

func (tx *memoryTx) UpdateProductStock(_ context.Context, p Product) error {
	tx.repo.products[p.ID] = p
	return nil
}

func (tx *memoryTx) StockLevelForUpdate(_ context.Context, companyID, productID uuid.UUID, location string) (StockLevel, bool, error) {
	if l, ok := tx.repo.levels[levelKey(productID, location)]; ok {
		return l, true, nil
	}
	return StockLevel{CompanyID: companyID, ProductID: productID, Location: location}, false, nil
}

func (tx *memoryTx) UpsertStockLevel(_ context.Context, l StockLevel) error {
	tx.repo.levels[levelKey(l.ProductID, l.Location)] = l
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m Movement) error {
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

type openingRecorder struct {
	stock *Stock
	err   error
	calls int
}

func (o *openingRecorder) ProductCreated(ctx context.Context, p Product, qty decimal.Decimal, location string) error {
	o.calls++
	if _, err := o.stock.Receive(ctx, MovementInput{
		CompanyID: p.CompanyID, ProductID: p.ID, Location: location,
		Type: MovementOpeningBalance, Quantity: qty, UnitCost: p.CostPrice,
	}); err != nil {
		return err
	}
	return o.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedProduct(t *testing.T, repo *memoryRepo, companyID uuid.UUID, cost string) Product {
	t.Helper()
	p := Product{ID: uuid.New(), CompanyID: companyID, SKU: "SKU-" + uuid.NewString()[:8], Name: "Widget", CostPrice: dec(cost)}
	repo.products[p.ID] = p
	return p
}

func TestAverageMovingCost(t *testing.T) {
	repo := newMemoryRepo()
	stock := NewStock(repo, false)
	ctx := context.Background()
	companyID := uuid.New()
	p := seedProduct(t, repo, companyID, "0")

	_, err := stock.Receive(ctx, MovementInput{CompanyID: companyID, ProductID: p.ID, Quantity: dec("10"), UnitCost: dec("100")})
	require.NoError(t, err)
	_, err = stock.Receive(ctx, MovementInput{CompanyID: companyID, ProductID: p.ID, Quantity: dec("5"), UnitCost: dec("120")})
	require.NoError(t, err)
	require.Equal(t, "106.6667", repo.products[p.ID].CostPrice.StringFixed(4))

	mv, err := stock.Issue(ctx, MovementInput{CompanyID: companyID, ProductID: p.ID, Quantity: dec("8")})
	require.NoError(t, err)
	require.True(t, mv.BalanceQty.Equal(dec("7")))
	require.True(t, mv.QuantityOut.Equal(dec("8")))
	require.Equal(t, "106.6667", mv.UnitCost.StringFixed(4))
	require.Equal(t, MovementSale, mv.Type)
}

func TestNegativeStockGuard(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()
	companyID := uuid.New()
	p := seedProduct(t, repo, companyID, "5")

	_, err := NewStock(repo, false).Issue(ctx, MovementInput{CompanyID: companyID, ProductID: p.ID, Quantity: dec("1")})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.ErrorIs(t, err, shared.ErrIntegrity)
	require.True(t, repo.products[p.ID].QuantityOnHand.IsZero())
	require.Empty(t, repo.movements)

	mv, err := NewStock(repo, true).Issue(ctx, MovementInput{CompanyID: companyID, ProductID: p.ID, Quantity: dec("1")})
	require.NoError(t, err)
	require.True(t, mv.BalanceQty.Equal(dec("-1")))
}

func TestMovementRejectsNonPositiveQuantity(t *testing.T) {
	repo := newMemoryRepo()
	companyID := uuid.New()
	p := seedProduct(t, repo, companyID, "5")

	_, err := NewStock(repo, false).Receive(context.Background(), MovementInput{CompanyID: companyID, ProductID: p.ID, Quantity: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCreateProductBooksOpeningStock(t *testing.T) {
	repo := newMemoryRepo()
	stock := NewStock(repo, false)
	svc := NewService(repo, stock, nil)
	opening := &openingRecorder{stock: stock}
	svc.SetOpeningHandler(opening)

	product, err := svc.CreateProduct(context.Background(), CreateProductInput{
		CompanyID:      uuid.New(),
		SKU:            " W-1 ",
		Name:           "Widget",
		CostPrice:      dec("100"),
		QuantityOnHand: dec("5"),
	})
	require.NoError(t, err)
	require.Equal(t, "W-1", product.SKU)
	require.Equal(t, 1, opening.calls)
	require.True(t, product.QuantityOnHand.Equal(dec("5")))

	levels, err := svc.StockLevels(context.Background(), product.CompanyID, product.ID)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	require.Equal(t, DefaultLocation, levels[0].Location)

	card, err := svc.StockCard(context.Background(), product.CompanyID, product.ID, 0)
	require.NoError(t, err)
	require.Len(t, card, 1)
	require.Equal(t, MovementOpeningBalance, card[0].Type)
	require.True(t, card[0].QuantityIn.Equal(dec("5")))
}

func TestCreateProductRollsBackWhenOpeningFails(t *testing.T) {
	repo := newMemoryRepo()
	stock := NewStock(repo, false)
	svc := NewService(repo, stock, nil)
	svc.SetOpeningHandler(&openingRecorder{stock: stock, err: errors.New("ledger down")})

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{
		CompanyID: uuid.New(), SKU: "W-2", Name: "Widget", CostPrice: dec("10"), QuantityOnHand: dec("3"),
	})
	require.Error(t, err)
	require.Empty(t, repo.products)
	require.Empty(t, repo.movements)
}

func TestCreateProductRequiresHandlerForOpeningStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, NewStock(repo, false), nil)

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{
		CompanyID: uuid.New(), SKU: "W-3", Name: "Widget", QuantityOnHand: dec("1"),
	})
	require.ErrorIs(t, err, shared.ErrIntegrity)

	p, err := svc.CreateProduct(context.Background(), CreateProductInput{CompanyID: uuid.New(), SKU: "W-3", Name: "Widget"})
	require.NoError(t, err)
	require.True(t, p.QuantityOnHand.IsZero())
}

func TestCreateProductValidatesInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, NewStock(repo, false), nil)

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{CompanyID: uuid.New(), Name: "No SKU"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "sku", verr.Field)

	_, err = svc.CreateProduct(context.Background(), CreateProductInput{CompanyID: uuid.New(), SKU: "X", Name: "X", CostPrice: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

type heldKey struct{}

type recordingLocker struct {
	events *[]string
	err    error
}

func (l recordingLocker) LockCompany(ctx context.Context, companyID uuid.UUID) (context.Context, func(), error) {
	if l.err != nil {
		return ctx, nil, l.err
	}
	*l.events = append(*l.events, "lock")
	return context.WithValue(ctx, heldKey{}, companyID), func() { *l.events = append(*l.events, "unlock") }, nil
}

type recordingRepo struct {
	*memoryRepo
	events *[]string
}

func (r recordingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	*r.events = append(*r.events, "begin")
	err := r.memoryRepo.WithTx(ctx, fn)
	*r.events = append(*r.events, "commit")
	return err
}

type lockCheckingOpening struct {
	events *[]string
}

func (o lockCheckingOpening) ProductCreated(ctx context.Context, p Product, _ decimal.Decimal, _ string) error {
	if ctx.Value(heldKey{}) != p.CompanyID {
		return errors.New("posting lock not held")
	}
	*o.events = append(*o.events, "opening")
	shared.AfterCommit(ctx, func(context.Context) { *o.events = append(*o.events, "audit") })
	return nil
}

func TestCreateProductLocksBeforeTransaction(t *testing.T) {
	var events []string
	repo := recordingRepo{memoryRepo: newMemoryRepo(), events: &events}
	svc := NewService(repo, NewStock(repo, false), nil)
	svc.SetOpeningHandler(lockCheckingOpening{events: &events})
	svc.SetLocker(recordingLocker{events: &events})

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{
		CompanyID: uuid.New(), SKU: "W-4", Name: "Widget", CostPrice: dec("10"), QuantityOnHand: dec("2"),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"lock", "begin", "opening", "commit", "audit", "unlock"}, events)

	events = events[:0]
	_, err = svc.CreateProduct(context.Background(), CreateProductInput{CompanyID: uuid.New(), SKU: "W-5", Name: "Widget"})
	require.NoError(t, err)
	require.Equal(t, []string{"begin", "commit"}, events)
}

func TestCreateProductLockConflictWritesNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, NewStock(repo, false), nil)
	svc.SetOpeningHandler(&openingRecorder{stock: svc.Stock()})
	svc.SetLocker(recordingLocker{err: shared.NewConflict("posting lock", "held by another writer")})

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{
		CompanyID: uuid.New(), SKU: "W-6", Name: "Widget", CostPrice: dec("10"), QuantityOnHand: dec("2"),
	})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.Empty(t, repo.products)
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, shared.AuditLog) error { return errors.New("audit store down") }

type failingInvalidator struct{}

func (failingInvalidator) Invalidate(context.Context, uuid.UUID) error { return errors.New("redis down") }

func TestCreateProductLogsSideEffectFailures(t *testing.T) {
	repo := newMemoryRepo()
	var logs bytes.Buffer
	svc := NewService(repo, NewStock(repo, false), failingAudit{}).WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	svc.SetOpeningHandler(&openingRecorder{stock: svc.Stock()})
	svc.SetInvalidator(failingInvalidator{})

	p, err := svc.CreateProduct(context.Background(), CreateProductInput{
		CompanyID: uuid.New(), SKU: "W-7", Name: "Widget", CostPrice: dec("10"), QuantityOnHand: dec("1"),
	})
	require.NoError(t, err)
	require.True(t, p.QuantityOnHand.Equal(dec("1")))
	require.Contains(t, logs.String(), "invalidate balance cache")
	require.Contains(t, logs.String(), "redis down")
	require.Contains(t, logs.String(), "audit product")
}
