package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers account endpoints below /api/companies/{companyID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.List)
	r.Post("/accounts", h.Create)
	r.Get("/accounts/{id}", h.Get)
	r.Post("/accounts/{id}/deactivate", h.Deactivate)
	r.Get("/account-mappings", h.ListMappings)
	r.Put("/account-mappings/{key}", h.SetMapping)
}

type createRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Currency string `json:"currency"`
}

type mappingRequest struct {
	AccountID uuid.UUID `json:"account_id"`
}

// AccountResponse is the wire form of an account.
type AccountResponse struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Category  string    `json:"category,omitempty"`
	Currency  string    `json:"currency"`
	Balance   string    `json:"balance"`
	IsActive  bool      `json:"is_active"`
}

func toResponse(a Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		CompanyID: a.CompanyID,
		Code:      a.Code,
		Name:      a.Name,
		Type:      string(a.Type),
		Category:  a.Category,
		Currency:  a.Currency,
		Balance:   a.Balance.StringFixed(2),
		IsActive:  a.IsActive,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	filter := Filter{Type: AccountType(r.URL.Query().Get("type")), ActiveOnly: r.URL.Query().Get("active") == "true"}
	accounts, err := h.service.List(r.Context(), companyID, filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list accounts", err)
		return
	}
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	var req createRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		CompanyID: companyID,
		Code:      req.Code,
		Name:      req.Name,
		Type:      AccountType(req.Type),
		Category:  req.Category,
		Currency:  req.Currency,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(account))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := httpx.UUIDParam(w, r, "id")
	if !ok {
		return
	}
	account, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		httpx.Fail(w, h.logger, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(account))
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := httpx.UUIDParam(w, r, "id")
	if !ok {
		return
	}
	account, err := h.service.Deactivate(r.Context(), companyID, id)
	if err != nil {
		httpx.Fail(w, h.logger, "deactivate account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(account))
}

func (h *Handler) ListMappings(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	list, err := h.service.Mappings(r.Context(), companyID)
	if err != nil {
		httpx.Fail(w, h.logger, "list mappings", err)
		return
	}
	out := make(map[string]uuid.UUID, len(list))
	for _, m := range list {
		out[string(m.Key)] = m.AccountID
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) SetMapping(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	var req mappingRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	m, err := h.service.SetMapping(r.Context(), companyID, mappings.Key(chi.URLParam(r, "key")), req.AccountID)
	if err != nil {
		httpx.Fail(w, h.logger, "set mapping", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"key": m.Key, "account_id": m.AccountID})
}
