package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes product and stock endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers product endpoints below /api/companies/{companyID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/movements", h.Movements)
	})
}

type createProductRequest struct {
	SKU                string          `json:"sku"`
	Name               string          `json:"name"`
	CostPrice          decimal.Decimal `json:"cost_price"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	QuantityOnHand     decimal.Decimal `json:"quantity_on_hand"`
	SalesAccountID     *uuid.UUID      `json:"sales_account_id"`
	InventoryAccountID *uuid.UUID      `json:"inventory_account_id"`
	COGSAccountID      *uuid.UUID      `json:"cogs_account_id"`
	Location           string          `json:"location"`
}

// ProductResponse is the wire form of a product.
type ProductResponse struct {
	ID                 uuid.UUID         `json:"id"`
	SKU                string            `json:"sku"`
	Name               string            `json:"name"`
	CostPrice          string            `json:"cost_price"`
	UnitPrice          string            `json:"unit_price"`
	QuantityOnHand     string            `json:"quantity_on_hand"`
	SalesAccountID     *uuid.UUID        `json:"sales_account_id,omitempty"`
	InventoryAccountID *uuid.UUID        `json:"inventory_account_id,omitempty"`
	COGSAccountID      *uuid.UUID        `json:"cogs_account_id,omitempty"`
	Levels             map[string]string `json:"levels,omitempty"`
}

type movementResponse struct {
	Type        MovementType `json:"type"`
	Location    string       `json:"location"`
	QuantityIn  string       `json:"quantity_in"`
	QuantityOut string       `json:"quantity_out"`
	UnitCost    string       `json:"unit_cost"`
	BalanceQty  string       `json:"balance_qty"`
	RefType     string       `json:"ref_type,omitempty"`
	RefID       string       `json:"ref_id,omitempty"`
	Note        string       `json:"note,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

func toProductResponse(p Product) ProductResponse {
	return ProductResponse{
		ID:                 p.ID,
		SKU:                p.SKU,
		Name:               p.Name,
		CostPrice:          p.CostPrice.String(),
		UnitPrice:          p.UnitPrice.StringFixed(2),
		QuantityOnHand:     p.QuantityOnHand.String(),
		SalesAccountID:     p.SalesAccountID,
		InventoryAccountID: p.InventoryAccountID,
		COGSAccountID:      p.COGSAccountID,
	}
}

// List handles GET /products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	products, err := h.service.ListProducts(r.Context(), companyID)
	if err != nil {
		httpx.Fail(w, h.logger, "list products", err)
		return
	}
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Create handles POST /products.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	var req createProductRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), CreateProductInput{
		CompanyID:          companyID,
		SKU:                req.SKU,
		Name:               req.Name,
		CostPrice:          req.CostPrice,
		UnitPrice:          req.UnitPrice,
		QuantityOnHand:     req.QuantityOnHand,
		SalesAccountID:     req.SalesAccountID,
		InventoryAccountID: req.InventoryAccountID,
		COGSAccountID:      req.COGSAccountID,
		Location:           req.Location,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(product))
}

// Get handles GET /products/{id} including per-location stock.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := httpx.UUIDParam(w, r, "id")
	if !ok {
		return
	}
	product, err := h.service.Product(r.Context(), companyID, id)
	if err != nil {
		httpx.Fail(w, h.logger, "get product", err)
		return
	}
	levels, err := h.service.StockLevels(r.Context(), companyID, id)
	if err != nil {
		httpx.Fail(w, h.logger, "stock levels", err)
		return
	}
	resp := toProductResponse(product)
	resp.Levels = make(map[string]string, len(levels))
	for _, l := range levels {
		resp.Levels[l.Location] = l.Quantity.String()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// Movements handles GET /products/{id}/movements.
func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := httpx.UUIDParam(w, r, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	card, err := h.service.StockCard(r.Context(), companyID, id, limit)
	if err != nil {
		httpx.Fail(w, h.logger, "stock card", err)
		return
	}
	out := make([]movementResponse, 0, len(card))
	for _, m := range card {
		out = append(out, movementResponse{
			Type:        m.Type,
			Location:    m.Location,
			QuantityIn:  m.QuantityIn.String(),
			QuantityOut: m.QuantityOut.String(),
			UnitCost:    m.UnitCost.String(),
			BalanceQty:  m.BalanceQty.String(),
			RefType:     m.RefType,
			RefID:       m.RefID,
			Note:        m.Note,
			OccurredAt:  m.OccurredAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
