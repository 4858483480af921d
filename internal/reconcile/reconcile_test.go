package reconcile

import (
	"testing"

	"storefront-cart/internal/model"
)

func cartLine(id, productID, variantID string, qty int) model.CartLine {
	l := model.CartLine{ID: id, Product: model.RefTo[model.Product](productID), Quantity: qty}
	if variantID != "" {
		ref := model.RefTo[model.Variant](variantID)
		l.Variant = &ref
	}
	return l
}

func TestDiffLines_EmptyToItems(t *testing.T) {
	// Empty current, items in desired → all adds
	desired := []DesiredLine{
		{ProductID: "prod-1", Quantity: 2},
		{ProductID: "prod-2", Quantity: 1},
	}

	diff := DiffLines(nil, desired)

	if len(diff.ToAdd) != 2 {
		t.Errorf("ToAdd = %d, want 2", len(diff.ToAdd))
	}
	if len(diff.ToRemove) != 0 {
		t.Errorf("ToRemove = %d, want 0", len(diff.ToRemove))
	}
	if len(diff.ToUpdate) != 0 {
		t.Errorf("ToUpdate = %d, want 0", len(diff.ToUpdate))
	}
}

func TestDiffLines_ItemsToEmpty(t *testing.T) {
	// Items in current, empty desired → all removes
	current := []model.CartLine{
		cartLine("key-1", "prod-1", "", 2),
		cartLine("key-2", "prod-2", "", 1),
	}

	diff := DiffLines(current, nil)

	if len(diff.ToRemove) != 2 {
		t.Fatalf("ToRemove = %d, want 2", len(diff.ToRemove))
	}
	for _, item := range diff.ToRemove {
		if item.LineID == "" {
			t.Error("ToRemove item missing LineID")
		}
	}
}

func TestDiffLines_QuantityUpdate(t *testing.T) {
	current := []model.CartLine{cartLine("key-1", "prod-1", "", 2)}
	desired := []DesiredLine{{ProductID: "prod-1", Quantity: 5}}

	diff := DiffLines(current, desired)

	if len(diff.ToUpdate) != 1 {
		t.Fatalf("ToUpdate = %d, want 1", len(diff.ToUpdate))
	}
	u := diff.ToUpdate[0]
	if u.OldQuantity != 2 || u.NewQuantity != 5 {
		t.Errorf("update = %d -> %d, want 2 -> 5", u.OldQuantity, u.NewQuantity)
	}
	if u.LineID != "key-1" {
		t.Errorf("LineID = %s, want key-1", u.LineID)
	}
}

func TestDiffLines_NoChange(t *testing.T) {
	current := []model.CartLine{cartLine("key-1", "prod-1", "", 2)}
	desired := []DesiredLine{{ProductID: "prod-1", Quantity: 2}}

	if diff := DiffLines(current, desired); !diff.IsEmpty() {
		t.Error("Expected empty diff for identical lines")
	}
}

func TestDiffLines_ZeroQuantityRemoves(t *testing.T) {
	current := []model.CartLine{cartLine("key-1", "prod-1", "", 2)}
	desired := []DesiredLine{{ProductID: "prod-1", Quantity: 0}}

	diff := DiffLines(current, desired)

	if len(diff.ToRemove) != 1 || len(diff.ToUpdate) != 0 {
		t.Errorf("diff = %+v, want one removal", diff)
	}
}

func TestDiffLines_DuplicateDesiredSummed(t *testing.T) {
	desired := []DesiredLine{
		{ProductID: "prod-1", Quantity: 1},
		{ProductID: "prod-1", Quantity: 2},
	}

	diff := DiffLines(nil, desired)

	if len(diff.ToAdd) != 1 || diff.ToAdd[0].Quantity != 3 {
		t.Errorf("ToAdd = %+v, want one add of 3", diff.ToAdd)
	}
}

func TestDiffLines_WithVariants(t *testing.T) {
	// Same product, different variants = different lines
	current := []model.CartLine{cartLine("key-1", "prod-1", "var-a", 1)}
	desired := []DesiredLine{
		{ProductID: "prod-1", VariantID: "var-a", Quantity: 1},
		{ProductID: "prod-1", VariantID: "var-b", Quantity: 2},
	}

	diff := DiffLines(current, desired)

	if len(diff.ToAdd) != 1 || diff.ToAdd[0].VariantID != "var-b" {
		t.Errorf("ToAdd = %+v, want var-b", diff.ToAdd)
	}
	if len(diff.ToRemove) != 0 || len(diff.ToUpdate) != 0 {
		t.Errorf("unexpected changes: %+v", diff)
	}
}

func TestLineDiff_MutationsOrder(t *testing.T) {
	current := []model.CartLine{
		cartLine("key-1", "prod-1", "", 2), // removed
		cartLine("key-2", "prod-2", "", 1), // updated
	}
	desired := []DesiredLine{
		{ProductID: "prod-2", Quantity: 4},
		{ProductID: "prod-3", Quantity: 1},
	}

	ms := DiffLines(current, desired).Mutations()

	want := []model.MutationKind{model.MutationRemove, model.MutationSet, model.MutationAdd}
	if len(ms) != len(want) {
		t.Fatalf("Mutations() = %+v, want %d entries", ms, len(want))
	}
	for i, kind := range want {
		if ms[i].Kind != kind {
			t.Errorf("Mutations()[%d].Kind = %s, want %s", i, ms[i].Kind, kind)
		}
	}
	if ms[1].LineID != "key-2" || ms[1].Quantity != 4 {
		t.Errorf("set mutation = %+v", ms[1])
	}
	for _, m := range ms {
		if err := m.Validate(); err != nil {
			t.Errorf("mutation %+v invalid: %v", m, err)
		}
	}
}

func TestMergeLines(t *testing.T) {
	current := []model.CartLine{
		cartLine("a", "prod-1", "", 1),
		cartLine("b", "prod-2", "var-x", 2),
	}
	guest := []model.CartLine{
		cartLine("g1", "prod-1", "", 3),
		cartLine("g2", "prod-3", "", 1),
	}

	merged := MergeLines(current, guest)

	want := map[string]int{"prod-1": 4, "prod-2:var-x": 2, "prod-3": 1}
	if len(merged) != len(want) {
		t.Fatalf("MergeLines() = %+v, want %d lines", merged, len(want))
	}
	for _, l := range merged {
		if want[l.Key().String()] != l.Quantity {
			t.Errorf("%s quantity = %d, want %d", l.Key(), l.Quantity, want[l.Key().String()])
		}
	}
}

func TestLineDiff_IsEmpty(t *testing.T) {
	empty := &LineDiff{}
	if !empty.IsEmpty() {
		t.Error("Expected empty diff to report IsEmpty=true")
	}

	withAdd := &LineDiff{ToAdd: []LineToAdd{{ProductID: "p1"}}}
	if withAdd.IsEmpty() {
		t.Error("Expected diff with adds to report IsEmpty=false")
	}

	withRemove := &LineDiff{ToRemove: []LineToRemove{{ProductID: "p1"}}}
	if withRemove.IsEmpty() {
		t.Error("Expected diff with removes to report IsEmpty=false")
	}

	withUpdate := &LineDiff{ToUpdate: []LineToUpdate{{ProductID: "p1"}}}
	if withUpdate.IsEmpty() {
		t.Error("Expected diff with updates to report IsEmpty=false")
	}
}
