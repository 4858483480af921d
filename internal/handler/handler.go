// Package handler provides the HTTP and MCP surfaces of the cart session service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront-cart/internal/cart"
	"storefront-cart/internal/model"
	"storefront-cart/internal/session"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Registry
	logger   *slog.Logger
}

// New creates a new Handler serving the sessions held by reg.
func New(reg *session.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: reg,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns. Cart routes expect the session
// middleware to have resolved a session.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// REST transport - cart operations
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("PUT /cart", h.handleReplaceCart)
	mux.HandleFunc("POST /cart/merge", h.handleMergeCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("POST /cart/items/{id}/increment", h.handleIncrementItem)
	mux.HandleFunc("POST /cart/items/{id}/decrement", h.handleDecrementItem)
	mux.HandleFunc("DELETE /cart/items/{id}", h.handleRemoveItem)
	mux.HandleFunc("GET /products/{id}/availability", h.handleAvailability)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: h.sessions.Len()})
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
// Notifications produced by the failed action travel with the error.
func (h *Handler) writeError(w http.ResponseWriter, err error, notes []cart.Notification) {
	apiErr := h.toAPIError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:      apiErr.Code,
			Message:   apiErr.Message,
			Retryable: model.IsTransient(apiErr),
		},
		Notifications: notes,
	})
}

// toAPIError finds the APIError in err's chain. Anything else is logged and
// reported as an internal error so details never leak.
func (h *Handler) toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, model.ErrQueueClosed):
		return &model.APIError{
			Code:       "SESSION_CLOSED",
			Message:    "cart session expired, please retry",
			StatusCode: http.StatusConflict,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.NewTimeoutError("request")
	default:
		h.logger.Error("internal error", slog.String("error", err.Error()))
		return &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error         errorBody           `json:"error"`
	Notifications []cart.Notification `json:"notifications,omitempty"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"` // network, timeout or rate limit
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
