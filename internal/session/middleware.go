package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Middleware resolves the Cart-Session header to a live session and stores
// it in the request context. Requests without the header get a new session;
// handlers echo the token back with FormatHeader.
//
// Clients older than minVersion are rejected with 426 Upgrade Required.
func Middleware(reg *Registry, minVersion string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health checks are infrastructure; MCP resolves per tool call.
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(HeaderName)
			h, err := ParseHeader(header)
			if err != nil {
				logger.Warn("invalid Cart-Session header",
					slog.String("header", header),
					slog.String("error", err.Error()))
				writeSessionError(w, http.StatusBadRequest, CodeInvalidSession,
					"Invalid Cart-Session header: "+err.Error())
				return
			}

			if err := CheckVersion(minVersion, h.Version); err != nil {
				var verErr *VersionError
				if errors.As(err, &verErr) {
					writeSessionError(w, http.StatusUpgradeRequired, verErr.Code, verErr.Message)
					return
				}
			}

			resolved, err := reg.Resolve(h)
			if err != nil {
				logger.Error("session resolution failed", slog.String("error", err.Error()))
				writeSessionError(w, http.StatusServiceUnavailable, CodeSessionsExceeded,
					"Cart sessions are unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithResolved(r.Context(), resolved)))
		})
	}
}

// isExemptPath returns true for paths that don't take a cart session.
func isExemptPath(path string) bool {
	switch {
	case path == "/health" || path == "/healthz":
		return true
	case path == "/mcp" || len(path) > 5 && path[:5] == "/mcp/":
		return true
	default:
		return false
	}
}

// writeSessionError writes the standard error envelope.
func writeSessionError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}
