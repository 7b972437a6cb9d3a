package fx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers rate endpoints below /api/companies/{companyID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/fx/rates", h.List)
	r.Post("/fx/rates", h.Add)
}

type rateRequest struct {
	Currency      string          `json:"currency"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate string          `json:"effective_date"`
}

// RateResponse is the wire form of a rate.
type RateResponse struct {
	ID            uuid.UUID `json:"id"`
	Currency      string    `json:"currency"`
	Rate          string    `json:"rate"`
	EffectiveDate string    `json:"effective_date"`
	CreatedAt     time.Time `json:"created_at"`
	Seq           int64     `json:"seq"`
}

func toResponse(r Rate) RateResponse {
	return RateResponse{
		ID:            r.ID,
		Currency:      r.Currency,
		Rate:          r.Rate.String(),
		EffectiveDate: r.EffectiveDate.Format(time.DateOnly),
		CreatedAt:     r.CreatedAt,
		Seq:           r.Seq,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	rates, err := h.service.ListRates(r.Context(), companyID, r.URL.Query().Get("currency"))
	if err != nil {
		httpx.Fail(w, h.logger, "list rates", err)
		return
	}
	out := make([]RateResponse, 0, len(rates))
	for _, rate := range rates {
		out = append(out, toResponse(rate))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	var req rateRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	effective, err := time.Parse(time.DateOnly, req.EffectiveDate)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("effective_date", "must be YYYY-MM-DD"))
		return
	}
	rate, err := h.service.AddRate(r.Context(), AddRateInput{
		CompanyID:     companyID,
		Currency:      req.Currency,
		Rate:          req.Rate,
		EffectiveDate: effective,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "add rate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(rate))
}
