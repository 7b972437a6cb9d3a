package balances

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers balance and report endpoints below /api/companies/{companyID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.List)
	r.Get("/balances/verify", h.Verify)
	r.Post("/balances/rebuild", h.Rebuild)
	r.Get("/reports/trial-balance", h.TrialBalance)
	r.Get("/reports/profit-and-loss", h.ProfitAndLoss)
	r.Get("/reports/balance-sheet", h.BalanceSheet)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	rows, err := h.service.Balances(r.Context(), companyID)
	if err != nil {
		httpx.Fail(w, h.logger, "list balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	drifts, err := h.service.Verify(r.Context(), companyID)
	if err != nil {
		httpx.Fail(w, h.logger, "verify balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consistent": len(drifts) == 0, "drifts": nonNil(drifts)})
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	drifts, err := h.service.Rebuild(r.Context(), companyID)
	if err != nil {
		httpx.Fail(w, h.logger, "rebuild balances", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"corrected": nonNil(drifts)})
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), companyID)
	if err != nil {
		httpx.Fail(w, h.logger, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "profit and loss", func(rows []reports.AccountBalance) any { return reports.BuildProfitAndLoss(rows) })
}

func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "balance sheet", func(rows []reports.AccountBalance) any { return reports.BuildBalanceSheet(rows) })
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request, op string, build func([]reports.AccountBalance) any) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	rows, err := h.service.Balances(r.Context(), companyID)
	if err != nil {
		httpx.Fail(w, h.logger, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, build(ReportRows(rows)))
}

func nonNil(d []Drift) []Drift {
	if d == nil {
		return []Drift{}
	}
	return d
}
