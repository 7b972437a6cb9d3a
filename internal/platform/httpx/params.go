package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// UUIDParam parses a chi URL parameter as a UUID, answering 400 when it is not one.
func UUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, shared.NewValidationError(name, "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// Decode reads a JSON body, answering 400 on malformed input. An empty body
// leaves target untouched.
func Decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := DecodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, shared.NewValidationError("body", "malformed JSON"))
		return false
	}
	return true
}

// Fail logs server-side failures and writes the problem response.
func Fail(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	if logger != nil && StatusFor(err) >= http.StatusInternalServerError {
		logger.Error(op, slog.Any("error", err))
	}
	RespondError(w, err)
}
