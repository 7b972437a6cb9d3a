package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers read endpoints below /api/companies/{companyID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/documents", h.List)
	r.Get("/documents/{id}", h.Get)
}

// DocumentResponse is the wire form of a document.
type DocumentResponse struct {
	ID             uuid.UUID  `json:"id"`
	Kind           Kind       `json:"kind"`
	Number         string     `json:"number"`
	Party          string     `json:"party"`
	Date           string     `json:"date"`
	Currency       string     `json:"currency"`
	ExchangeRate   string     `json:"exchange_rate"`
	Total          string     `json:"total"`
	AmountPaid     string     `json:"amount_paid"`
	BalanceDue     string     `json:"balance_due"`
	BaseBalanceDue string     `json:"base_balance_due"`
	Status         Status     `json:"status"`
	SourceType     string     `json:"source_type,omitempty"`
	SourceID       string     `json:"source_id,omitempty"`
	RevaluedAt     *time.Time `json:"revalued_at,omitempty"`
}

// ToResponse converts a document to its wire form.
func ToResponse(d Document) DocumentResponse {
	return DocumentResponse{
		ID:             d.ID,
		Kind:           d.Kind,
		Number:         d.Number,
		Party:          d.Party,
		Date:           d.Date.Format(time.DateOnly),
		Currency:       d.Currency,
		ExchangeRate:   d.ExchangeRate.String(),
		Total:          d.Total.StringFixed(2),
		AmountPaid:     d.AmountPaid.StringFixed(2),
		BalanceDue:     d.BalanceDue.StringFixed(2),
		BaseBalanceDue: d.BaseBalanceDue.StringFixed(2),
		Status:         d.Status,
		SourceType:     d.SourceType,
		SourceID:       d.SourceID,
		RevaluedAt:     d.RevaluedAt,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	docs, err := h.service.List(r.Context(), companyID, Filter{
		Kind:   Kind(r.URL.Query().Get("kind")),
		Status: Status(r.URL.Query().Get("status")),
	})
	if err != nil {
		httpx.Fail(w, h.logger, "list documents", err)
		return
	}
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, ToResponse(d))
	}
	httpx.JSON(w, http.StatusOK, out)
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
	doc, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		httpx.Fail(w, h.logger, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(doc))
}
