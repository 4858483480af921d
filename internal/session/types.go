// Package session resolves the server-side cart session for a request.
// REST clients identify their session with the Cart-Session header; MCP tool
// calls pass the same token as an argument. Sessions are held in an LRU
// registry and closed when evicted or idle.
package session

import (
	"context"

	"storefront-cart/internal/cart"
)

// HeaderName is the request and response header carrying the session handle.
const HeaderName = "Cart-Session"

// Handle is a parsed Cart-Session header.
//
//	Cart-Session: token="3f0c...";cart="tok-1";v="1.4.0"
//
// Token names the server-side session. CartID is the store-issued cart the
// session was bound to, so an expired session can be rebuilt around the same
// cart. Version is the storefront client version.
type Handle struct {
	Token   string
	CartID  string
	Version string
}

// Resolved is a live session attached to a request.
// Drawer is the session's whole-cart surface; every request acts through it
// so concurrent requests share one pending guard. Notices collects the
// shopper notifications the session's actions produce.
type Resolved struct {
	Token   string
	Session *cart.Session
	Drawer  *cart.Surface
	Notices *cart.RecordingNotifier
}

// contextKey is the type for context values to avoid collisions
type contextKey string

// ContextKey is the context key for storing the resolved session
const ContextKey contextKey = "cart.session"

// Error codes returned by the middleware.
const (
	CodeInvalidSession   = "invalid_session"
	CodeUpgradeRequired  = "storefront_upgrade_required"
	CodeSessionsExceeded = "session_unavailable"
)

// FromContext retrieves the resolved session from request context.
// Returns nil if resolution was skipped (exempt path) or not set.
func FromContext(ctx context.Context) *Resolved {
	v, _ := ctx.Value(ContextKey).(*Resolved)
	return v
}

// WithResolved stores a resolved session in ctx.
func WithResolved(ctx context.Context, r *Resolved) context.Context {
	return context.WithValue(ctx, ContextKey, r)
}
