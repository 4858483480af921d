// Package cart is the session-side cart consistency core: a serialized
// mutation pipeline per browsing session, an observer hub for authoritative
// snapshots, and optimistic surfaces that predict, then reconcile, each action.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront-cart/internal/availability"
	"storefront-cart/internal/backend"
	"storefront-cart/internal/model"
	"storefront-cart/internal/queue"
	"storefront-cart/internal/reconcile"
)

// Config wires a Session to its collaborators.
type Config struct {
	CartID   string
	Backend  backend.Backend
	Catalog  backend.Catalog  // optional; without it availability is unlimited
	Identity backend.Identity // optional; defaults to no signed-in user
	Notifier Notifier         // optional; defaults to LogNotifier
	Timeout  time.Duration    // per store call; defaults to DefaultTimeout
	Logger   *slog.Logger
}

// Session owns one cart's mutation queue, store client and snapshot hub.
// Its lifetime is the browsing session; it holds no global state.
type Session struct {
	client   *Client
	queue    *queue.Queue
	hub      *Hub
	catalog  backend.Catalog
	identity backend.Identity
	notifier Notifier
	logger   *slog.Logger
	refetch  singleflight.Group
}

// NewSession creates a session. Call Load to fetch the initial snapshot.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	identity := cfg.Identity
	if identity == nil {
		identity = backend.Anonymous{}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Session{
		client:   NewClient(cfg.Backend, cfg.CartID, cfg.Timeout, logger),
		queue:    queue.New(queue.WithLogger(logger)),
		hub:      NewHub(),
		catalog:  cfg.Catalog,
		identity: identity,
		notifier: notifier,
		logger:   logger,
	}
}

// Hub returns the session's snapshot hub.
func (s *Session) Hub() *Hub { return s.hub }

// Queue returns the session's operation queue.
func (s *Session) Queue() *queue.Queue { return s.queue }

// CartID returns the store-issued cart identifier.
func (s *Session) CartID() string { return s.client.CartID() }

// Snapshot returns the latest authoritative snapshot, nil before Load.
func (s *Session) Snapshot() *model.CartSnapshot { return s.hub.Current() }

// Load fetches the authoritative cart. Equivalent to Refetch.
func (s *Session) Load(ctx context.Context) (*model.CartSnapshot, error) {
	return s.Refetch(ctx)
}

// Refetch fetches the authoritative cart through the queue, so it observes
// every mutation submitted before it. Concurrent calls share one fetch.
func (s *Session) Refetch(ctx context.Context) (*model.CartSnapshot, error) {
	ch := s.refetch.DoChan("fetch", func() (any, error) {
		// Each store call is bounded by the client timeout, so the shared
		// fetch cannot outlive its queue slot.
		snap, err := queue.Enqueue(s.queue, s.client.Fetch).Wait(context.Background())
		if err != nil {
			return nil, err
		}
		s.hub.Publish(snap)
		return s.hub.Current(), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.CartSnapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit enqueues one mutation without any optimistic prediction and
// publishes the resulting snapshot.
func (s *Session) Submit(m model.Mutation) *queue.Future[*model.CartSnapshot] {
	return s.enqueue(m, func(snap *model.CartSnapshot, err error) (*model.CartSnapshot, error) {
		return snap, err
	})
}

// enqueue runs m in the session queue. On success the snapshot is published
// before settle runs; on ErrNotFound the cart is refetched in the same queue
// slot so settle sees fresh state.
func (s *Session) enqueue(m model.Mutation, settle func(*model.CartSnapshot, error) (*model.CartSnapshot, error)) *queue.Future[*model.CartSnapshot] {
	return queue.Enqueue(s.queue, func(ctx context.Context) (*model.CartSnapshot, error) {
		snap, err := s.client.Mutate(ctx, m)
		switch {
		case err == nil:
			s.hub.Publish(snap)
		case errors.Is(err, model.ErrNotFound):
			s.logger.Info("cart line vanished, refetching", "kind", m.Kind, "line_id", m.LineID, "product_id", m.ProductID)
			if fresh, ferr := s.client.Fetch(ctx); ferr == nil {
				s.hub.Publish(fresh)
			} else {
				s.logger.Warn("refetch after missing line failed", "error", ferr)
			}
		}
		return settle(snap, err)
	})
}

// Replace moves the cart to the desired line set. The diff is computed
// against the authoritative cart inside the queue slot, then applied as one
// batch (remove, update, add).
func (s *Session) Replace(ctx context.Context, desired []reconcile.DesiredLine) (*model.CartSnapshot, error) {
	fut := queue.Enqueue(s.queue, func(ctx context.Context) (*model.CartSnapshot, error) {
		return s.applyDesired(ctx, func(*model.CartSnapshot) []reconcile.DesiredLine { return desired })
	})
	return fut.Wait(ctx)
}

// MergeFrom folds a guest cart into this session's cart, summing quantities
// per (product, variant). The store clamps sums to inventory.
func (s *Session) MergeFrom(ctx context.Context, guest *model.CartSnapshot) (*model.CartSnapshot, error) {
	if guest == nil || len(guest.Items) == 0 {
		return s.Refetch(ctx)
	}
	fut := queue.Enqueue(s.queue, func(ctx context.Context) (*model.CartSnapshot, error) {
		return s.applyDesired(ctx, func(current *model.CartSnapshot) []reconcile.DesiredLine {
			return reconcile.MergeLines(current.Items, guest.Items)
		})
	})
	return fut.Wait(ctx)
}

func (s *Session) applyDesired(ctx context.Context, desired func(*model.CartSnapshot) []reconcile.DesiredLine) (*model.CartSnapshot, error) {
	current, err := s.client.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(current)

	diff := reconcile.DiffLines(current.Items, desired(current))
	if diff.IsEmpty() {
		return s.hub.Current(), nil
	}

	s.logger.Debug("reconciling cart",
		"remove", len(diff.ToRemove), "update", len(diff.ToUpdate), "add", len(diff.ToAdd))

	snap, err := s.client.Apply(ctx, diff.Mutations())
	if err != nil {
		// A sequential store may have applied a prefix; resync before reporting.
		if fresh, ferr := s.client.Fetch(ctx); ferr == nil {
			s.hub.Publish(fresh)
		}
		return nil, err
	}
	s.hub.Publish(snap)
	return s.hub.Current(), nil
}

// CurrentUser returns the signed-in customer, nil for guests.
func (s *Session) CurrentUser(ctx context.Context) (*model.UserIdentity, error) {
	return s.identity.CurrentUser(ctx)
}

// RequiresGuestEmail reports whether checkout must capture an email because
// nobody is signed in.
func (s *Session) RequiresGuestEmail(ctx context.Context) (bool, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return false, err
	}
	return user == nil, nil
}

// Availability reports how many more units of a selection can be added,
// measured against the authoritative cart.
func (s *Session) Availability(ctx context.Context, productID, variantID string) (availability.Availability, error) {
	p, err := s.product(ctx, productID)
	if err != nil {
		return availability.Availability{}, err
	}
	if p == nil {
		return availability.Availability{Kind: availability.Unlimited}, nil
	}
	return availability.ForSelection(*p, variantID, s.hub.Current()), nil
}

// Stats returns queue counters for health reporting.
func (s *Session) Stats() queue.Stats { return s.queue.Stats() }

// Close stops accepting mutations. Queued work still drains.
func (s *Session) Close() { s.queue.Close() }

// product looks a product up in the catalog. A nil result with no error
// means no catalog is configured.
func (s *Session) product(ctx context.Context, productID string) (*model.Product, error) {
	if s.catalog == nil {
		return nil, nil
	}
	return s.catalog.Product(ctx, productID)
}

// lineInventory returns the stock ceiling for a line: catalog data when
// available, the snapshot's expanded documents otherwise, unlimited when
// neither knows.
func (s *Session) lineInventory(ctx context.Context, l model.CartLine) *int {
	key := l.Key()
	if p, err := s.product(ctx, key.ProductID); err == nil && p != nil {
		if key.VariantID == "" {
			return p.Inventory
		}
		if v, ok := p.FindVariant(key.VariantID); ok {
			return v.Inventory
		}
	}
	if inv, ok := l.Inventory(); ok {
		return inv
	}
	return nil
}
