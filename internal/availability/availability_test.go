package availability

import (
	"errors"
	"testing"

	"storefront-cart/internal/model"
)

func TestAvailableToAdd(t *testing.T) {
	tests := []struct {
		name      string
		inventory *int
		inCart    int
		want      Availability
	}{
		{"nil inventory is unlimited", nil, 3, Availability{Kind: Unlimited}},
		{"room left", model.Stock(5), 2, Availability{Kind: Limited, Remaining: 3}},
		{"exactly exhausted", model.Stock(1), 1, Availability{Kind: Limited, Remaining: 0}},
		{"stale read over inventory", model.Stock(2), 7, Availability{Kind: Limited, Remaining: 0}},
		{"zero inventory", model.Stock(0), 0, Availability{Kind: Limited, Remaining: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AvailableToAdd(tt.inventory, tt.inCart)
			if got != tt.want {
				t.Errorf("AvailableToAdd() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAvailableToAdd_NeverNegative(t *testing.T) {
	for inv := 0; inv <= 20; inv++ {
		for inCart := 0; inCart <= 40; inCart++ {
			got := AvailableToAdd(model.Stock(inv), inCart)
			if got.Remaining < 0 {
				t.Fatalf("AvailableToAdd(%d, %d) = %d, want >= 0", inv, inCart, got.Remaining)
			}
		}
	}
}

func TestForSelection(t *testing.T) {
	small := model.Variant{ID: "v-s", ProductID: "tee", Inventory: model.Stock(4)}
	large := model.Variant{ID: "v-l", ProductID: "tee", Inventory: nil}
	tee := model.Product{
		ID:             "tee",
		Title:          "Tee",
		Inventory:      model.Stock(100),
		EnableVariants: true,
		Variants:       []model.Ref[model.Variant]{model.Expand(small), model.Expand(large)},
	}
	mug := model.Product{ID: "mug", Title: "Mug", Inventory: model.Stock(3)}

	smallRef := model.Expand(small)
	snap := &model.CartSnapshot{Items: []model.CartLine{
		{ID: "l1", Product: model.RefTo[model.Product]("tee"), Variant: &smallRef, Quantity: 3},
		{ID: "l2", Product: model.RefTo[model.Product]("mug"), Quantity: 1},
	}}

	tests := []struct {
		name      string
		product   model.Product
		variantID string
		want      Availability
	}{
		{"variant inventory not parent", tee, "v-s", Availability{Kind: Limited, Remaining: 1}},
		{"variant without inventory", tee, "v-l", Availability{Kind: Unlimited}},
		{"no variant selected", tee, "", Availability{Kind: SelectionRequired}},
		{"unknown variant", tee, "v-xl", Availability{Kind: SelectionRequired}},
		{"simple product", mug, "", Availability{Kind: Limited, Remaining: 2}},
		{"variant id ignored without variants", mug, "v-s", Availability{Kind: Limited, Remaining: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForSelection(tt.product, tt.variantID, snap)
			if got != tt.want {
				t.Errorf("ForSelection() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if got := ForSelection(mug, "", nil); got.Remaining != 3 {
		t.Errorf("ForSelection with no cart = %+v, want 3 remaining", got)
	}
}

func TestAvailability_Check(t *testing.T) {
	if err := (Availability{Kind: Unlimited}).Check("Mug", 50); err != nil {
		t.Errorf("unlimited Check() = %v, want nil", err)
	}
	if err := (Availability{Kind: Limited, Remaining: 1}).Check("Mug", 1); err != nil {
		t.Errorf("Check() with room = %v, want nil", err)
	}

	err := (Availability{Kind: Limited, Remaining: 0}).Check("Mug", 1)
	if !errors.Is(err, model.ErrOutOfStock) {
		t.Errorf("Check() = %v, want ErrOutOfStock", err)
	}

	err = (Availability{Kind: SelectionRequired}).Check("Tee", 1)
	if !errors.Is(err, model.ErrSelectionRequired) {
		t.Errorf("Check() = %v, want ErrSelectionRequired", err)
	}
	if errors.Is(err, model.ErrOutOfStock) {
		t.Error("selection required must be distinct from out of stock")
	}
}

func TestStockMessage(t *testing.T) {
	tests := []struct {
		in   Availability
		want string
	}{
		{Availability{Kind: Limited, Remaining: 0}, "Out of stock"},
		{Availability{Kind: Limited, Remaining: 1}, "Only 1 left in stock. Order soon!"},
		{Availability{Kind: Limited, Remaining: 9}, "Only 9 left in stock. Order soon!"},
		{Availability{Kind: Limited, Remaining: 10}, ""},
		{Availability{Kind: Unlimited}, ""},
		{Availability{Kind: SelectionRequired}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := StockMessage(tt.in); got != tt.want {
				t.Errorf("StockMessage(%+v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
