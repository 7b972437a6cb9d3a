package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/fx"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AccountsHandler    *accounts.Handler
	JournalsHandler    *journals.Handler
	BalancesHandler    *balances.Handler
	InventoryHandler   *inventory.Handler
	FXHandler          *fx.Handler
	DocumentsHandler   *billing.Handler
	IntegrationHandler *integration.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	tokenHash := ""
	if params.Config != nil {
		tokenHash = params.Config.APITokenHash
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(APIAuth(tokenHash, params.Logger))
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		r.Route("/companies/{companyID}", func(r chi.Router) {
			if params.AccountsHandler != nil {
				params.AccountsHandler.MountRoutes(r)
			}
			if params.JournalsHandler != nil {
				params.JournalsHandler.MountRoutes(r)
			}
			if params.BalancesHandler != nil {
				params.BalancesHandler.MountRoutes(r)
			}
			if params.InventoryHandler != nil {
				params.InventoryHandler.MountRoutes(r)
			}
			if params.FXHandler != nil {
				params.FXHandler.MountRoutes(r)
			}
			if params.DocumentsHandler != nil {
				params.DocumentsHandler.MountRoutes(r)
			}
			if params.IntegrationHandler != nil {
				params.IntegrationHandler.MountRoutes(r)
			}
		})
	})

	return r
}

// NewHandlers builds every company-scoped handler on top of a wired ledger.
func NewHandlers(logger *slog.Logger, ledger *Ledger, enqueuer integration.Enqueuer) RouterParams {
	return RouterParams{
		AccountsHandler:    accounts.NewHandler(logger, ledger.Accounts),
		JournalsHandler:    journals.NewHandler(logger, ledger.Journals),
		BalancesHandler:    balances.NewHandler(logger, ledger.Balances),
		InventoryHandler:   inventory.NewHandler(logger, ledger.Inventory),
		FXHandler:          fx.NewHandler(logger, ledger.Rates),
		DocumentsHandler:   billing.NewHandler(logger, ledger.Documents),
		IntegrationHandler: integration.NewHandler(logger, ledger.Pipeline, enqueuer),
	}
}
