package journals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		CompanyID:  companyID,
		Status:     Status(q.Get("status")),
		SourceType: SourceType(q.Get("source_type")),
	}
	var err error
	if filter.From, err = optionalDate(q.Get("from")); err != nil {
		httpx.RespondError(w, shared.NewValidationError("from", "must be YYYY-MM-DD"))
		return
	}
	if filter.To, err = optionalDate(q.Get("to")); err != nil {
		httpx.RespondError(w, shared.NewValidationError("to", "must be YYYY-MM-DD"))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			httpx.RespondError(w, shared.NewValidationError("limit", "must be an integer"))
			return
		}
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list journals", err)
		return
	}
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToResponse(e))
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
	entry, err := h.service.Get(r.Context(), companyID, id)
	if err != nil {
		httpx.Fail(w, h.logger, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(entry))
}

// Create builds and posts a manual entry.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	var req createRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("date", "must be YYYY-MM-DD"))
		return
	}
	sourceID := req.SourceID
	if sourceID == "" {
		sourceID = uuid.NewString()
	}
	draft := Draft{
		CompanyID:     companyID,
		Date:          date,
		Reference:     req.Reference,
		SourceType:    SourceManual,
		SourceID:      sourceID,
		NumberContext: req.Reference,
		Description:   req.Description,
		Lines:         make([]LineIntent, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		draft.Lines = append(draft.Lines, LineIntent{AccountID: l.AccountID, Description: l.Description, Debit: l.Debit, Credit: l.Credit})
	}
	entry, err := h.service.Builder().Build(r.Context(), draft)
	if err != nil {
		httpx.Fail(w, h.logger, "build journal", err)
		return
	}
	posted, err := h.service.Post(r.Context(), entry, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.Fail(w, h.logger, "post journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToResponse(posted))
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := httpx.UUIDParam(w, r, "id")
	if !ok {
		return
	}
	var req voidRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	entry, err := h.service.Void(r.Context(), VoidInput{
		CompanyID: companyID,
		EntryID:   id,
		Actor:     shared.ActorFromContext(r.Context()),
		Reason:    req.Reason,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "void journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(entry))
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	companyID, ok := httpx.UUIDParam(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := httpx.UUIDParam(w, r, "id")
	if !ok {
		return
	}
	var req reverseRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	date, err := optionalDate(req.Date)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("date", "must be YYYY-MM-DD"))
		return
	}
	entry, err := h.service.Reverse(r.Context(), ReverseInput{
		CompanyID:   companyID,
		EntryID:     id,
		Actor:       shared.ActorFromContext(r.Context()),
		Description: req.Description,
		Date:        date,
	})
	if err != nil {
		httpx.Fail(w, h.logger, "reverse journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToResponse(entry))
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
