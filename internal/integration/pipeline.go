package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger is the posting side of the journal service.
type Ledger interface {
	LockCompany(ctx context.Context, companyID uuid.UUID) (context.Context, func(), error)
	FindBySource(ctx context.Context, companyID uuid.UUID, source journals.SourceType, sourceID string) (journals.JournalEntry, bool, error)
	Post(ctx context.Context, entry journals.JournalEntry, actor string) (journals.JournalEntry, error)
	Builder() *journals.Builder
}

// Transactor runs fn in one database transaction, joining the caller's when present.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Invalidator drops derived balance views.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID uuid.UUID) error
}

// Products reads catalogue data.
type Products interface {
	Product(ctx context.Context, companyID, id uuid.UUID) (inventory.Product, error)
}

// StockMover applies inventory movements.
type StockMover interface {
	Receive(ctx context.Context, in inventory.MovementInput) (inventory.Movement, error)
	Issue(ctx context.Context, in inventory.MovementInput) (inventory.Movement, error)
}

// RateBook answers the rate effective for a currency on a date.
type RateBook interface {
	BaseCurrency() string
	RateOn(ctx context.Context, companyID uuid.UUID, currency string, asOf time.Time) (fx.Rate, error)
}

// Deps groups the collaborators of a Pipeline.
type Deps struct {
	Ledger    Ledger
	Tx        Transactor
	Resolver  *Resolver
	Products  Products
	Stock     StockMover
	Documents billing.Repository
	Rates     RateBook
	Cache     Invalidator
	Logger    *slog.Logger
}

// Pipeline handles events one at a time per company: it checks the source
// link, lets the adapter prepare the entry and its side effects, builds, posts
// and applies everything in a single transaction.
type Pipeline struct {
	Deps
	now func() time.Time
}

func NewPipeline(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{Deps: deps, now: time.Now}
}

func (p *Pipeline) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// plan is what an adapter wants done. A nil draft means nothing to post.
type plan struct {
	draft  *journals.Draft
	after  func(ctx context.Context, res *Result) error
	result Result
}

// Handle posts the event at most once. A repeat returns the earlier entry
// with Duplicate set and changes nothing. Audit, metrics and cache work run
// after the commit, or after the caller's commit when Handle joins an outer
// transaction.
func (p *Pipeline) Handle(ctx context.Context, ev Event) (Result, error) {
	companyID := ev.Company()
	source, sourceID := ev.Source()
	if companyID == uuid.Nil {
		return Result{}, shared.NewValidationError("company_id", "is required")
	}
	if sourceID == "" {
		return Result{}, shared.NewValidationError("source_id", "is required")
	}
	ctx, unlock, err := p.Ledger.LockCompany(ctx, companyID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()
	ctx, hooks := shared.DeferUntilCommit(ctx)

	var res Result
	err = p.Tx.InTx(ctx, func(ctx context.Context) error {
		existing, found, err := p.Ledger.FindBySource(ctx, companyID, source, sourceID)
		if err != nil {
			return err
		}
		if found {
			res = Result{Entry: &existing, Duplicate: true}
			return nil
		}
		pl, err := p.prepare(ctx, ev)
		if err != nil {
			return err
		}
		res = pl.result
		if pl.draft == nil {
			res.Skipped = true
		} else {
			built, err := p.Ledger.Builder().Build(ctx, *pl.draft)
			if err != nil {
				return err
			}
			posted, err := p.Ledger.Post(ctx, built, shared.ActorFromContext(ctx))
			if err != nil {
				return err
			}
			res.Entry = &posted
		}
		if pl.after != nil {
			return pl.after(ctx, &res)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("integration: %s %s: %w", ev.Kind(), sourceID, err)
	}

	attrs := []any{slog.String("kind", string(ev.Kind())), slog.String("source_id", sourceID), slog.String("company_id", companyID.String())}
	switch {
	case res.Duplicate:
		p.Logger.Info("event already posted", append(attrs, slog.String("entry", res.Entry.Number))...)
	case res.Entry != nil:
		p.Logger.Info("event posted", append(attrs, slog.String("entry", res.Entry.Number))...)
		shared.AfterCommit(ctx, func(ctx context.Context) { p.invalidate(ctx, companyID) })
	default:
		p.Logger.Info("event applied without entry", attrs...)
	}
	hooks.Run(ctx)
	return res, nil
}

func (p *Pipeline) prepare(ctx context.Context, ev Event) (plan, error) {
	switch e := ev.(type) {
	case OpeningBalanceEvent:
		return p.openingBalance(ctx, e)
	case PosSaleEvent:
		return p.posSale(ctx, e)
	case FxRevaluationEvent:
		return p.fxRevaluation(ctx, e)
	case DocumentIssuedEvent:
		return p.documentIssued(ctx, e)
	case StockAdjustmentEvent:
		return p.stockAdjustment(ctx, e)
	default:
		return plan{}, shared.NewValidationError("event", fmt.Sprintf("unsupported event %T", ev))
	}
}

// ProductCreated books opening stock inside the product's transaction.
func (p *Pipeline) ProductCreated(ctx context.Context, product inventory.Product, quantity decimal.Decimal, location string) error {
	_, err := p.Handle(ctx, OpeningBalanceEvent{
		CompanyID: product.CompanyID,
		Product:   product,
		Quantity:  quantity,
		Location:  location,
		Date:      product.CreatedAt,
	})
	return err
}

var _ inventory.OpeningBalanceHandler = (*Pipeline)(nil)

func (p *Pipeline) invalidate(ctx context.Context, companyID uuid.UUID) {
	if p.Cache == nil {
		return
	}
	if err := p.Cache.Invalidate(ctx, companyID); err != nil {
		p.Logger.Warn("invalidate balance cache", slog.String("company_id", companyID.String()), slog.Any("error", err))
	}
}

func (p *Pipeline) date(t time.Time) time.Time {
	if t.IsZero() {
		return p.now().UTC()
	}
	return t
}

// grouped accumulates amounts per account, keeping first-seen order.
type grouped struct {
	order  []uuid.UUID
	totals map[uuid.UUID]decimal.Decimal
}

func (g *grouped) add(id uuid.UUID, amount decimal.Decimal) {
	if g.totals == nil {
		g.totals = make(map[uuid.UUID]decimal.Decimal)
	}
	if _, ok := g.totals[id]; !ok {
		g.order = append(g.order, id)
	}
	g.totals[id] = g.totals[id].Add(amount)
}

func (g *grouped) debits(description string) []journals.LineIntent {
	out := make([]journals.LineIntent, 0, len(g.order))
	for _, id := range g.order {
		if g.totals[id].IsPositive() {
			out = append(out, journals.Debit(id, g.totals[id], description))
		}
	}
	return out
}

func (g *grouped) credits(description string) []journals.LineIntent {
	out := make([]journals.LineIntent, 0, len(g.order))
	for _, id := range g.order {
		if g.totals[id].IsPositive() {
			out = append(out, journals.Credit(id, g.totals[id], description))
		}
	}
	return out
}
