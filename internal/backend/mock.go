package backend

import (
	"context"

	"storefront-cart/internal/model"
)

// Mock implements Backend, Catalog and Identity for testing.
// Each method can be configured via function fields.
type Mock struct {
	FetchFunc       func(ctx context.Context, cartID string) (*model.CartSnapshot, error)
	MutateFunc      func(ctx context.Context, cartID string, m model.Mutation) (*model.CartSnapshot, error)
	ProductFunc     func(ctx context.Context, productID string) (*model.Product, error)
	CurrentUserFunc func(ctx context.Context) (*model.UserIdentity, error)
}

// Fetch calls the configured FetchFunc or returns an empty cart.
func (m *Mock) Fetch(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, cartID)
	}
	return &model.CartSnapshot{ID: cartID}, nil
}

// Mutate calls the configured MutateFunc or returns an error.
func (m *Mock) Mutate(ctx context.Context, cartID string, mut model.Mutation) (*model.CartSnapshot, error) {
	if m.MutateFunc != nil {
		return m.MutateFunc(ctx, cartID, mut)
	}
	return nil, model.NewInternalError(nil)
}

// Product calls the configured ProductFunc or returns not found.
func (m *Mock) Product(ctx context.Context, productID string) (*model.Product, error) {
	if m.ProductFunc != nil {
		return m.ProductFunc(ctx, productID)
	}
	return nil, model.NewNotFoundError("product")
}

// CurrentUser calls the configured CurrentUserFunc or reports no user.
func (m *Mock) CurrentUser(ctx context.Context) (*model.UserIdentity, error) {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx)
	}
	return nil, nil
}

// Verify Mock implements the collaborator interfaces at compile time.
var (
	_ Backend  = (*Mock)(nil)
	_ Catalog  = (*Mock)(nil)
	_ Identity = (*Mock)(nil)
)
