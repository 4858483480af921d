package memory

import (
	"context"
	"errors"
	"testing"

	"storefront-cart/internal/model"
)

func testStore() *Store {
	small := model.Variant{ID: "tee-s", ProductID: "tee", Title: "Small", Price: model.Money{Amount: 1500, Currency: "USD"}, Inventory: model.Stock(2)}
	return New(WithProducts(
		model.Product{ID: "mug", Title: "Mug", Price: model.Money{Amount: 1000, Currency: "USD"}, Inventory: model.Stock(5)},
		model.Product{ID: "pen", Title: "Pen", Price: model.Money{Amount: 200, Currency: "USD"}},
		model.Product{ID: "rare", Title: "Rare", Price: model.Money{Amount: 9900, Currency: "USD"}, Inventory: model.Stock(1)},
		model.Product{
			ID:             "tee",
			Title:          "Tee",
			Price:          model.Money{Amount: 1200, Currency: "USD"},
			Inventory:      model.Stock(100),
			EnableVariants: true,
			Variants:       []model.Ref[model.Variant]{model.Expand(small)},
		},
	))
}

func add(productID string, qty int) model.Mutation {
	return model.Mutation{Kind: model.MutationAdd, ProductID: productID, Quantity: qty}
}

func TestStore_AddMergesSameProduct(t *testing.T) {
	s := testStore()
	ctx := context.Background()

	snap, err := s.Mutate(ctx, "c1", add("mug", 1))
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	snap, err = s.Mutate(ctx, "c1", add("mug", 1))
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(snap.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(snap.Items))
	}
	if snap.Items[0].Quantity != 2 {
		t.Errorf("Quantity = %d, want 2", snap.Items[0].Quantity)
	}
	if snap.Subtotal.Amount != 2000 {
		t.Errorf("Subtotal = %d, want 2000", snap.Subtotal.Amount)
	}
	if snap.Version != 2 {
		t.Errorf("Version = %d, want 2", snap.Version)
	}
}

func TestStore_AddClampsToInventory(t *testing.T) {
	s := testStore()
	ctx := context.Background()

	snap, err := s.Mutate(ctx, "c1", add("mug", 9))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if snap.Items[0].Quantity != 5 {
		t.Errorf("Quantity = %d, want clamped 5", snap.Items[0].Quantity)
	}

	_, err = s.Mutate(ctx, "c1", add("mug", 1))
	if !errors.Is(err, model.ErrOutOfStock) {
		t.Errorf("add at ceiling = %v, want ErrOutOfStock", err)
	}
}

func TestStore_Increment(t *testing.T) {
	s := testStore()
	ctx := context.Background()

	snap, _ := s.Mutate(ctx, "c1", add("rare", 1))
	lineID := snap.Items[0].ID

	_, err := s.Mutate(ctx, "c1", model.Mutation{Kind: model.MutationIncrement, LineID: lineID})
	if !errors.Is(err, model.ErrOutOfStock) {
		t.Fatalf("increment past inventory = %v, want ErrOutOfStock", err)
	}

	after, _ := s.Fetch(ctx, "c1")
	if after.Version != snap.Version {
		t.Errorf("failed mutation bumped version %d -> %d", snap.Version, after.Version)
	}

	snap, _ = s.Mutate(ctx, "c1", add("pen", 1))
	pen, _ := snap.LineFor(model.LineKey{ProductID: "pen"})
	for i := 0; i < 50; i++ {
		if _, err := s.Mutate(ctx, "c1", model.Mutation{Kind: model.MutationIncrement, LineID: pen.ID}); err != nil {
			t.Fatalf("untracked inventory increment %d: %v", i, err)
		}
	}
}

func TestStore_DecrementRemovesAtZero(t *testing.T) {
	s := testStore()
	ctx := context.Background()

	snap, _ := s.Mutate(ctx, "c1", add("mug", 3))
	lineID := snap.Items[0].ID

	for i := 0; i < 3; i++ {
		var err error
		snap, err = s.Mutate(ctx, "c1", model.Mutation{Kind: model.MutationDecrement, LineID: lineID})
		if err != nil {
			t.Fatalf("decrement %d: %v", i, err)
		}
	}
	if len(snap.Items) != 0 {
		t.Fatalf("Items = %+v, want empty", snap.Items)
	}

	_, err := s.Mutate(ctx, "c1", model.Mutation{Kind: model.MutationDecrement, LineID: lineID})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("decrement of removed line = %v, want ErrNotFound", err)
	}
}

func TestStore_Remove(t *testing.T) {
	s := testStore()
	ctx := context.Background()

	snap, _ := s.Mutate(ctx, "c1", add("mug", 2))
	snap, err := s.Mutate(ctx, "c1", model.Mutation{Kind: model.MutationRemove, LineID: snap.Items[0].ID})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(snap.Items) != 0 {
		t.Errorf("Items = %+v, want empty", snap.Items)
	}

	_, err = s.Mutate(ctx, "c1", model.Mutation{Kind: model.MutationRemove, LineID: "nope"})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("remove unknown line = %v, want ErrNotFound", err)
	}
}

func TestStore_Variants(t *testing.T) {
	s := testStore()
	ctx := context.Background()

	_, err := s.Mutate(ctx, "c1", add("tee", 1))
	if !errors.Is(err, model.ErrSelectionRequired) {
		t.Fatalf("add without variant = %v, want ErrSelectionRequired", err)
	}

	m := model.Mutation{Kind: model.MutationAdd, ProductID: "tee", VariantID: "tee-s", Quantity: 5}
	snap, err := s.Mutate(ctx, "c1", m)
	if err != nil {
		t.Fatalf("add variant: %v", err)
	}
	line := snap.Items[0]
	if line.Quantity != 2 {
		t.Errorf("Quantity = %d, want variant inventory 2 (not product 100)", line.Quantity)
	}
	if line.UnitPrice.Amount != 1500 {
		t.Errorf("UnitPrice = %d, want variant price 1500", line.UnitPrice.Amount)
	}
	if line.Key() != (model.LineKey{ProductID: "tee", VariantID: "tee-s"}) {
		t.Errorf("Key() = %v", line.Key())
	}
}

func TestStore_ApplyIsAtomic(t *testing.T) {
	s := testStore()
	ctx := context.Background()

	before, _ := s.Mutate(ctx, "c1", add("mug", 1))
	_, err := s.Apply(ctx, "c1", []model.Mutation{
		add("pen", 1),
		{Kind: model.MutationRemove, LineID: "missing"},
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Apply() = %v, want ErrNotFound", err)
	}

	after, _ := s.Fetch(ctx, "c1")
	if after.Version != before.Version || len(after.Items) != 1 {
		t.Errorf("partial apply leaked: version %d items %d", after.Version, len(after.Items))
	}
}

func TestStore_FetchUnknownCart(t *testing.T) {
	s := testStore()

	snap, err := s.Fetch(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if snap.Version != 0 || len(snap.Items) != 0 {
		t.Errorf("Fetch(unknown) = %+v, want empty version 0", snap)
	}
}

func TestStore_MutateWithoutCartIDIssuesOne(t *testing.T) {
	s := testStore()

	snap, err := s.Mutate(context.Background(), "", add("mug", 1))
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if snap.ID == "" {
		t.Error("snapshot ID should be issued by the store")
	}
}
