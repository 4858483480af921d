//go:build integration
// +build integration

// Integration tests for the Postgres cart store.
// Run with: go test -tags=integration ./internal/backend/postgres/... -v
//
// Required environment variables:
//
//	CART_TEST_DATABASE_URL - DSN of a disposable database (tables are created and truncated)
package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"storefront-cart/internal/model"
)

func setupStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	dsn := os.Getenv("CART_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test: CART_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewStore(db)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	products := []model.Product{
		{ID: "it-mug", Title: "Mug", Price: model.Money{Amount: 1000, Currency: "USD"}, Inventory: model.Stock(5)},
		{ID: "it-rare", Title: "Rare", Price: model.Money{Amount: 5000, Currency: "USD"}, Inventory: model.Stock(1)},
		{
			ID: "it-tee", Title: "Tee", EnableVariants: true,
			Variants: []model.Ref[model.Variant]{model.Expand(model.Variant{
				ID: "it-tee-s", ProductID: "it-tee", Title: "Small",
				Price: model.Money{Amount: 1500, Currency: "USD"}, Inventory: model.Stock(2),
			})},
		},
	}
	for _, p := range products {
		if err := s.PutProduct(ctx, p); err != nil {
			t.Fatalf("PutProduct(%s) error = %v", p.ID, err)
		}
	}
	return s, ctx
}

func TestIntegration_AddIncrementDecrement(t *testing.T) {
	s, ctx := setupStore(t)
	cartID := uuid.NewString()

	snap, err := s.Mutate(ctx, cartID, model.Mutation{Kind: model.MutationAdd, ProductID: "it-mug", Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	snap, err = s.Mutate(ctx, cartID, model.Mutation{Kind: model.MutationAdd, ProductID: "it-mug", Quantity: 1})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].Quantity != 3 {
		t.Fatalf("Items = %+v, want one line with quantity 3", snap.Items)
	}
	if snap.Subtotal.Amount != 3000 {
		t.Errorf("Subtotal = %d, want 3000", snap.Subtotal.Amount)
	}
	if snap.Version != 2 {
		t.Errorf("Version = %d, want 2", snap.Version)
	}

	lineID := snap.Items[0].ID
	for i := 0; i < 3; i++ {
		snap, err = s.Mutate(ctx, cartID, model.Mutation{Kind: model.MutationDecrement, LineID: lineID})
		if err != nil {
			t.Fatalf("decrement %d: %v", i, err)
		}
	}
	if len(snap.Items) != 0 {
		t.Errorf("Items = %+v, want empty after decrementing to zero", snap.Items)
	}
}

func TestIntegration_OutOfStockAndNotFound(t *testing.T) {
	s, ctx := setupStore(t)
	cartID := uuid.NewString()

	snap, err := s.Mutate(ctx, cartID, model.Mutation{Kind: model.MutationAdd, ProductID: "it-rare", Quantity: 1})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err = s.Mutate(ctx, cartID, model.Mutation{Kind: model.MutationIncrement, LineID: snap.Items[0].ID})
	if !errors.Is(err, model.ErrOutOfStock) {
		t.Errorf("increment = %v, want ErrOutOfStock", err)
	}

	_, err = s.Mutate(ctx, cartID, model.Mutation{Kind: model.MutationRemove, LineID: "missing"})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("remove = %v, want ErrNotFound", err)
	}

	_, err = s.Mutate(ctx, cartID, model.Mutation{Kind: model.MutationAdd, ProductID: "it-tee", Quantity: 1})
	if !errors.Is(err, model.ErrSelectionRequired) {
		t.Errorf("variant add without selection = %v, want ErrSelectionRequired", err)
	}
}

func TestIntegration_ConcurrentAddsSerialize(t *testing.T) {
	s, ctx := setupStore(t)
	cartID := uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Mutate(ctx, cartID, model.Mutation{Kind: model.MutationAdd, ProductID: "it-mug", Quantity: 1})
		}()
	}
	wg.Wait()

	snap, err := s.Fetch(ctx, cartID)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].Quantity != 4 {
		t.Errorf("Items = %+v, want one line with quantity 4", snap.Items)
	}
}
