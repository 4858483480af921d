package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-cart/internal/cart"
)

// DefaultIdleTTL is how long an unused session survives.
const DefaultIdleTTL = 30 * time.Minute

// DefaultMaxSessions limits the number of live sessions (LRU eviction).
const DefaultMaxSessions = 10000

// ErrClosed is returned by Resolve after Close.
var ErrClosed = errors.New("session registry closed")

// Factory builds a cart session bound to cartID that reports to notifier.
// An empty cartID lets the store issue one on the first mutation.
type Factory func(cartID string, notifier cart.Notifier) *cart.Session

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	New         Factory
	IdleTTL     time.Duration
	MaxSessions int
	Logger      *slog.Logger
}

// Registry holds live cart sessions keyed by token.
// Sessions are evicted when idle for longer than the TTL, or least recently
// used first when the registry is full. Evicted sessions are closed: their
// queued work still drains but they accept nothing new.
type Registry struct {
	newSession Factory
	idleTTL    time.Duration
	max        int
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	entries    map[string]*entry
	accessList []string // LRU tracking: most recent at end
	closed     bool
}

type entry struct {
	resolved Resolved
	lastUsed time.Time
}

// NewRegistry creates a registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		newSession: cfg.New,
		idleTTL:    ttl,
		max:        maxSessions,
		logger:     logger,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
}

// Resolve returns the live session for h, creating one when the token is
// empty or unknown. An unknown token with a cart ID is rebuilt around that
// cart under the same token, so clients survive eviction and restarts.
func (r *Registry) Resolve(h Handle) (*Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	now := r.now()
	if h.Token != "" {
		if e, ok := r.entries[h.Token]; ok && now.Sub(e.lastUsed) <= r.idleTTL {
			e.lastUsed = now
			r.recordAccessLocked(h.Token)
			res := e.resolved
			return &res, nil
		} else if ok {
			r.removeLocked(h.Token, "idle")
		}
	}

	token := h.Token
	if token == "" {
		token = uuid.NewString()
	}
	for len(r.entries) >= r.max {
		r.evictOldestLocked()
	}

	notices := &cart.RecordingNotifier{}
	s := r.newSession(h.CartID, notices)
	e := &entry{
		resolved: Resolved{
			Token:   token,
			Session: s,
			Drawer:  s.NewSurface("drawer", cart.AllLines()),
			Notices: notices,
		},
		lastUsed: now,
	}
	r.entries[token] = e
	r.recordAccessLocked(token)
	r.logger.Debug("cart session created", "token", token, "cart_id", h.CartID, "sessions", len(r.entries))
	res := e.resolved
	return &res, nil
}

// Get returns the live session for token without creating one.
func (r *Registry) Get(token string) (*cart.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[token]
	if !ok || r.now().Sub(e.lastUsed) > r.idleTTL {
		return nil, false
	}
	return e.resolved.Session, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes and drops every session idle for longer than the TTL.
// Returns the number of sessions dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for token, e := range r.entries {
		if now.Sub(e.lastUsed) > r.idleTTL {
			r.removeLocked(token, "idle")
			n++
		}
	}
	return n
}

// Run sweeps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("swept idle cart sessions", "dropped", n, "live", r.Len())
			}
		}
	}
}

// Close closes every session and rejects further resolves.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token := range r.entries {
		r.removeLocked(token, "shutdown")
	}
	r.closed = true
}

func (r *Registry) removeLocked(token, reason string) {
	e, ok := r.entries[token]
	if !ok {
		return
	}
	delete(r.entries, token)
	for i, v := range r.accessList {
		if v == token {
			r.accessList = append(r.accessList[:i], r.accessList[i+1:]...)
			break
		}
	}
	e.resolved.Drawer.Close()
	e.resolved.Session.Close()
	r.logger.Debug("cart session closed", "token", token, "reason", reason)
}

func (r *Registry) recordAccessLocked(token string) {
	for i, v := range r.accessList {
		if v == token {
			r.accessList = append(r.accessList[:i], r.accessList[i+1:]...)
			break
		}
	}
	r.accessList = append(r.accessList, token)
}

func (r *Registry) evictOldestLocked() {
	if len(r.accessList) == 0 {
		return
	}
	r.removeLocked(r.accessList[0], "evicted")
}
