package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/logging"
	"github.com/ariefcatur/go-storefront-engine/internal/orders"
	"github.com/ariefcatur/go-storefront-engine/internal/storefront"
)

type problem struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, kind, msg string, details any) {
	writeJSON(w, code, problem{
		Error:     kind,
		Message:   msg,
		RequestID: middleware.GetReqID(r.Context()),
		Details:   details,
	})
}

// writeError maps engine errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *storefront.ValidationError
		short *orders.InsufficientStockError
	)
	switch {
	case errors.As(err, &verr):
		writeProblem(w, r, http.StatusBadRequest, "invalid_input", err.Error(), verr.Fields)
	case errors.Is(err, orders.ErrInvalidInput):
		writeProblem(w, r, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, orders.ErrUnauthorized):
		writeProblem(w, r, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrCartLineNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		writeProblem(w, r, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &short):
		writeProblem(w, r, http.StatusConflict, "insufficient_stock", err.Error(), short)
	case errors.Is(err, orders.ErrInsufficientStock):
		writeProblem(w, r, http.StatusConflict, "insufficient_stock", err.Error(), nil)
	case errors.Is(err, orders.ErrEmptyCart):
		writeProblem(w, r, http.StatusConflict, "empty_cart", err.Error(), nil)
	case errors.Is(err, orders.ErrRequestInFlight):
		writeProblem(w, r, http.StatusConflict, "request_in_flight", err.Error(), nil)
	default:
		logging.Error(r.Context(), nil, "Unhandled error", zap.Error(err), zap.String("path", r.URL.Path))
		writeProblem(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_input", "invalid json", nil)
		return false
	}
	return true
}
