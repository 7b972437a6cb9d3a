package integration

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/billing"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Enqueuer schedules revaluations on the worker.
type Enqueuer interface {
	EnqueueFXRevaluation(ctx context.Context, companyID uuid.UUID, asOf time.Time) (string, error)
}

type Handler struct {
	pipeline *Pipeline
	enqueuer Enqueuer
	logger   *slog.Logger
}

func NewHandler(logger *slog.Logger, pipeline *Pipeline, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, pipeline: pipeline, enqueuer: enqueuer}
}

// MountRoutes registers event endpoints below /api/companies/{companyID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/pos/sales", h.PosSale)
	r.Post("/documents", h.IssueDocument)
	r.Post("/stock-adjustments", h.AdjustStock)
	r.Post("/fx/revaluations", h.Revalue)
}

type posLineRequest struct {
	ProductID uuid.UUID        `json:"product_id"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type posSaleRequest struct {
	SaleID        string           `json:"sale_id"`
	ReceiptNumber string           `json:"receipt_number"`
	Date          string           `json:"date"`
	Location      string           `json:"location"`
	Customer      string           `json:"customer"`
	Tax           decimal.Decimal  `json:"tax"`
	CashAccountID *uuid.UUID       `json:"cash_account_id"`
	Lines         []posLineRequest `json:"lines"`
}

type documentRequest struct {
	Kind             string          `json:"kind"`
	Number           string          `json:"number"`
	Party            string          `json:"party"`
	Date             string          `json:"date"`
	Currency         string          `json:"currency"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	Total            decimal.Decimal `json:"total"`
	CounterAccountID *uuid.UUID      `json:"counter_account_id"`
}

type adjustmentRequest struct {
	AdjustmentID     string          `json:"adjustment_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	Location         string          `json:"location"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	CounterAccountID uuid.UUID       `json:"counter_account_id"`
	Date             string          `json:"date"`
	Note             string          `json:"note"`
}

type revaluationRequest struct {
	AsOf  string `json:"as_of"`
	Async bool   `json:"async"`
}

// ResultResponse is the wire form of a handled event.
type ResultResponse struct {
	Duplicate bool                      `json:"duplicate"`
	Skipped   bool                      `json:"skipped"`
	Entry     *journals.EntryResponse   `json:"entry,omitempty"`
	Document  *billing.DocumentResponse `json:"document,omitempty"`
	Revalued  int                       `json:"revalued,omitempty"`
}

func respondResult(w http.ResponseWriter, res Result) {
	out := ResultResponse{Duplicate: res.Duplicate, Skipped: res.Skipped, Revalued: len(res.Revaluations)}
	if res.Entry != nil {
		entry := journals.ToResponse(*res.Entry)
		out.Entry = &entry
	}
	if res.Document != nil {
		doc := billing.ToResponse(*res.Document)
		out.Document = &doc
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, out)
}

func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.NewValidationError(field, "must be YYYY-MM-DD")
	}
	return t, nil
}

func (h *Handler) PosSale(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	var req posSaleRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	if req.SaleID == "" {
		httpx.RespondError(w, shared.NewValidationError("sale_id", "is required"))
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ev := PosSaleEvent{
		CompanyID:     companyID,
		SaleID:        req.SaleID,
		ReceiptNumber: req.ReceiptNumber,
		Date:          date,
		Location:      req.Location,
		Customer:      req.Customer,
		Tax:           req.Tax,
		CashAccountID: req.CashAccountID,
	}
	for _, line := range req.Lines {
		ev.Lines = append(ev.Lines, PosLine{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.UnitPrice})
	}
	res, err := h.pipeline.Handle(r.Context(), ev)
	if err != nil {
		httpx.Fail(w, h.logger, "pos sale", err)
		return
	}
	respondResult(w, res)
}

func (h *Handler) IssueDocument(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	var req documentRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.pipeline.Handle(r.Context(), DocumentIssuedEvent{
		CompanyID:        companyID,
		DocKind:          billing.Kind(req.Kind),
		Number:           req.Number,
		Party:            req.Party,
		Date:             date,
		Currency:         req.Currency,
		ExchangeRate:     req.ExchangeRate,
		Total:            req.Total,
		CounterAccountID: req.CounterAccountID,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "issue document", err)
		return
	}
	respondResult(w, res)
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	var req adjustmentRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	if req.AdjustmentID == "" {
		httpx.RespondError(w, shared.NewValidationError("adjustment_id", "is required"))
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.pipeline.Handle(r.Context(), StockAdjustmentEvent{
		CompanyID:        companyID,
		AdjustmentID:     req.AdjustmentID,
		ProductID:        req.ProductID,
		Location:         req.Location,
		Quantity:         req.Quantity,
		UnitCost:         req.UnitCost,
		CounterAccountID: req.CounterAccountID,
		Date:             date,
		Note:             req.Note,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "stock adjustment", err)
		return
	}
	respondResult(w, res)
}

func (h *Handler) Revalue(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	var req revaluationRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	asOf, err := parseDate("as_of", req.AsOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if req.Async {
		if h.enqueuer == nil {
			httpx.RespondError(w, shared.NewValidationError("async", "background jobs are not configured"))
			return
		}
		id, err := h.enqueuer.EnqueueFXRevaluation(r.Context(), companyID, asOf)
		if err != nil {
			httpx.Fail(w, h.logger, "enqueue revaluation", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id, "as_of": asOf.Format(time.DateOnly)})
		return
	}
	res, err := h.pipeline.Handle(r.Context(), FxRevaluationEvent{CompanyID: companyID, AsOf: asOf})
	if err != nil {
		httpx.Fail(w, h.logger, "fx revaluation", err)
		return
	}
	respondResult(w, res)
}
