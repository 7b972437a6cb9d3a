package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger is the wired set of services shared by the API and the worker.
type Ledger struct {
	Accounts  *accounts.Service
	Journals  *journals.Service
	Balances  *balances.Service
	Inventory *inventory.Service
	Rates     *fx.Service
	Documents *billing.Service
	Pipeline  *integration.Pipeline

	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// Close releases the connections opened by BuildLedger.
func (l *Ledger) Close() {
	if l == nil {
		return
	}
	if l.Redis != nil {
		_ = l.Redis.Close()
	}
	if l.Pool != nil {
		l.Pool.Close()
	}
}

type auditLog interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type repositories struct {
	accounts  accounts.Repository
	mappings  mappings.Repository
	journals  journals.Repository
	balances  balances.Repository
	inventory inventory.Repository
	documents billing.Repository
	rates     fx.Repository
	tx        integration.Transactor
	audit     auditLog
}

// BuildLedger opens the configured store and Redis and wires the services.
// STORE=memory keeps everything in process and skips Redis.
func BuildLedger(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Ledger, error) {
	ledger := &Ledger{}
	var repos repositories
	if cfg.InMemory() {
		store := memstore.New()
		repos = repositories{
			accounts:  store.Accounts(),
			mappings:  store.Mappings(),
			journals:  store.Journals(),
			balances:  store.Balances(),
			inventory: store.Inventory(),
			documents: store.Documents(),
			rates:     store.Rates(),
			tx:        store,
			audit:     &shared.MemoryAuditLog{},
		}
		logger.Warn("running with in-memory store, data is lost on exit")
	} else {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		ledger.Pool = pool
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			ledger.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		ledger.Redis = client
		repos = repositories{
			accounts:  accounts.NewRepository(pool),
			mappings:  mappings.NewRepository(pool),
			journals:  journals.NewRepository(pool),
			balances:  balances.NewRepository(pool),
			inventory: inventory.NewRepository(pool),
			documents: billing.NewRepository(pool),
			rates:     fx.NewRepository(pool),
			tx:        db.NewTransactor(pool),
			audit:     shared.NewAuditLogger(pool),
		}
	}

	var balanceCache *balances.Cache
	if ledger.Redis != nil {
		balanceCache = balances.NewCache(ledger.Redis, cfg.BalanceCacheTTL)
	}

	ledger.Accounts = accounts.NewService(repos.accounts, repos.mappings, cfg.BaseCurrency).
		WithAudit(repos.audit).
		WithLogger(logger)
	ledger.Balances = balances.NewService(repos.balances, repos.accounts, repos.tx, balanceCache, logger)
	ledger.Journals = journals.NewService(repos.journals, journals.NewBuilder(repos.accounts), repos.audit).
		WithInvalidator(ledger.Balances).
		WithObserver(metrics).
		WithLogger(logger)
	if ledger.Redis != nil && cfg.PostingLockTTL > 0 {
		ledger.Journals.WithLocker(cache.NewLocker(ledger.Redis, cfg.PostingLockTTL).WithWait(cfg.PostingLockWait))
	}
	stock := inventory.NewStock(repos.inventory, cfg.AllowNegativeStock)
	ledger.Inventory = inventory.NewService(repos.inventory, stock, repos.audit).WithLogger(logger)
	ledger.Rates = fx.NewService(repos.rates, cfg.BaseCurrency)
	ledger.Documents = billing.NewService(repos.documents)
	ledger.Pipeline = integration.NewPipeline(integration.Deps{
		Ledger:    ledger.Journals,
		Tx:        repos.tx,
		Resolver:  integration.NewResolver(ledger.Accounts),
		Products:  repos.inventory,
		Stock:     stock,
		Documents: repos.documents,
		Rates:     ledger.Rates,
		Cache:     ledger.Balances,
		Logger:    logger,
	})
	ledger.Inventory.SetOpeningHandler(ledger.Pipeline)
	ledger.Inventory.SetInvalidator(ledger.Balances)
	ledger.Inventory.SetLocker(ledger.Journals)
	return ledger, nil
}
