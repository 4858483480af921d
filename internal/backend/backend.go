// Package backend defines the authoritative cart store the session core talks to.
// Implementations (in-memory, Postgres, WooCommerce) enforce cart rules server-side
// and return a fresh snapshot after every mutation.
package backend

import (
	"context"

	"storefront-cart/internal/model"
)

// Backend is the authoritative cart store.
//
// Fetch of an unknown cart returns an empty snapshot at version 0 rather than
// ErrNotFound. Mutate enforces:
//   - add: merges into the existing (product, variant) line, clamped to inventory;
//     a clamp to zero fails with ErrOutOfStock
//   - increment: ErrOutOfStock when quantity+1 exceeds the line's ceiling
//   - decrement: quantity-1, removing the line at zero
//   - remove: unconditional; unknown line fails with ErrNotFound
//
// Snapshot IDs may differ from the requested cartID when the store issues its
// own identifiers (e.g. a Store API cart token); callers adopt the returned ID.
//
// Implementations must return promptly once ctx is done. The session gives up
// on a call at its timeout, and a call still running afterwards would overlap
// the next queued one.
type Backend interface {
	Fetch(ctx context.Context, cartID string) (*model.CartSnapshot, error)
	Mutate(ctx context.Context, cartID string, m model.Mutation) (*model.CartSnapshot, error)
}

// Applier is implemented by stores that can apply an ordered mutation list
// as one unit. Used for desired-state replace and guest cart merge.
type Applier interface {
	Apply(ctx context.Context, cartID string, ms []model.Mutation) (*model.CartSnapshot, error)
}

// Catalog resolves product documents, expanded with their variants.
// Inventory fields left nil mean the item is not stock-tracked.
type Catalog interface {
	Product(ctx context.Context, productID string) (*model.Product, error)
}

// Identity exposes the signed-in customer, if any.
type Identity interface {
	CurrentUser(ctx context.Context) (*model.UserIdentity, error)
}

// Anonymous is an Identity with no signed-in customer.
type Anonymous struct{}

// CurrentUser always returns nil.
func (Anonymous) CurrentUser(context.Context) (*model.UserIdentity, error) {
	return nil, nil
}

// ApplyBatch applies ms through b, as one unit when b is an Applier and one
// mutation at a time otherwise. Sequential runs stop at the first failure.
func ApplyBatch(ctx context.Context, b Backend, cartID string, ms []model.Mutation) (*model.CartSnapshot, error) {
	if a, ok := b.(Applier); ok {
		return a.Apply(ctx, cartID, ms)
	}
	var snap *model.CartSnapshot
	for _, m := range ms {
		next, err := b.Mutate(ctx, cartID, m)
		if err != nil {
			return nil, err
		}
		snap = next
		if next.ID != "" {
			cartID = next.ID
		}
	}
	if snap == nil {
		return b.Fetch(ctx, cartID)
	}
	return snap, nil
}
