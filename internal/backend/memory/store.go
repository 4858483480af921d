// Package memory is an in-process authoritative cart store and catalog.
// It backs development servers and the session tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-cart/internal/backend"
	"storefront-cart/internal/model"
)

type cart struct {
	id        string
	lines     []backend.Line
	version   uint64
	updatedAt time.Time
	customer  *model.UserIdentity
}

// Store holds carts and catalog products in memory. Safe for concurrent use;
// every mutation is applied under one lock, so the store is the serialization
// point across sessions.
type Store struct {
	mu       sync.Mutex
	carts    map[string]*cart
	products map[string]model.Product
	currency string
	now      func() time.Time
	rules    backend.Rules
}

// Option configures a Store.
type Option func(*Store)

// WithProducts seeds the catalog.
func WithProducts(products ...model.Product) Option {
	return func(s *Store) {
		for _, p := range products {
			s.products[p.ID] = p
		}
	}
}

// WithCurrency sets the currency reported on empty carts.
func WithCurrency(code string) Option {
	return func(s *Store) { s.currency = code }
}

// WithClock overrides time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		carts:    make(map[string]*cart),
		products: make(map[string]model.Product),
		currency: "USD",
		now:      time.Now,
	}
	// The rules run under s.mu, so lookups read the map directly.
	lookup := func(id string) (model.Product, bool) {
		p, ok := s.products[id]
		return p, ok
	}
	s.rules = backend.Rules{
		Ceiling: backend.ProductCeiling(lookup),
		HasVariants: func(id string) bool {
			p, ok := s.products[id]
			return !ok || p.EnableVariants
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutProduct adds or replaces a catalog product.
func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// SetCustomer attaches a signed-in customer to a cart.
func (s *Store) SetCustomer(cartID string, user *model.UserIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		c = &cart{id: cartID}
		s.carts[cartID] = c
	}
	c.customer = user
}

// Product implements backend.Catalog.
func (s *Store) Product(_ context.Context, productID string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, model.NewNotFoundError("product " + productID)
	}
	return &p, nil
}

// Fetch implements backend.Backend. An empty cartID or unknown cart yields an
// empty snapshot at version 0 without creating anything.
func (s *Store) Fetch(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[cartID]
	if !ok {
		c = &cart{id: cartID}
	}
	return s.snapshotLocked(c), nil
}

// Mutate implements backend.Backend.
func (s *Store) Mutate(ctx context.Context, cartID string, m model.Mutation) (*model.CartSnapshot, error) {
	return s.Apply(ctx, cartID, []model.Mutation{m})
}

// Apply implements backend.Applier. Either every mutation applies or none do.
func (s *Store) Apply(ctx context.Context, cartID string, ms []model.Mutation) (*model.CartSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cartID == "" {
		cartID = uuid.NewString()
	}
	c, ok := s.carts[cartID]
	if !ok {
		c = &cart{id: cartID}
	}

	lines, err := s.rules.ApplyAll(c.lines, ms)
	if err != nil {
		return nil, err
	}

	next := *c
	next.lines = lines
	next.version++
	next.updatedAt = s.now()
	s.carts[cartID] = &next
	return s.snapshotLocked(&next), nil
}

func (s *Store) snapshotLocked(c *cart) *model.CartSnapshot {
	snap := &model.CartSnapshot{
		ID:        c.id,
		Items:     make([]model.CartLine, 0, len(c.lines)),
		Subtotal:  model.Money{Currency: s.currency},
		Version:   c.version,
		UpdatedAt: c.updatedAt,
	}
	if c.customer != nil {
		u := *c.customer
		snap.Customer = &u
	}

	for _, l := range c.lines {
		var product *model.Product
		if p, ok := s.products[l.ProductID]; ok {
			product = &p
		}
		cl := backend.ExpandLine(l, product)
		snap.Items = append(snap.Items, cl)
		snap.Subtotal = snap.Subtotal.Add(cl.UnitPrice.Mul(cl.Quantity))
	}
	return snap
}

var (
	_ backend.Backend = (*Store)(nil)
	_ backend.Applier = (*Store)(nil)
	_ backend.Catalog = (*Store)(nil)
)
