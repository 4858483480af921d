// Package reconcile computes the mutations that move an authoritative cart to
// a desired line set. Used for desired-state replace and guest cart merge: the
// session fetches current state, diffs, and applies only what changed.
package reconcile

import (
	"sort"

	"storefront-cart/internal/model"
)

// LineDiff describes the mutations needed to reconcile cart lines.
// Operations should be applied in order: Remove → Update → Add
// so an update never targets a line that is about to go away.
type LineDiff struct {
	ToAdd    []LineToAdd    // Pairs in desired but not current
	ToRemove []LineToRemove // Lines in current but not desired
	ToUpdate []LineToUpdate // Lines in both with different quantities
}

// LineToAdd specifies a new line.
type LineToAdd struct {
	ProductID string
	VariantID string
	Quantity  int
}

// LineToRemove specifies a line to delete.
type LineToRemove struct {
	ProductID string // for reference
	LineID    string
}

// LineToUpdate specifies a quantity change for an existing line.
type LineToUpdate struct {
	ProductID   string // for reference
	LineID      string
	OldQuantity int // informational
	NewQuantity int
}

// IsEmpty returns true if no line changes are needed.
func (d *LineDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// Mutations flattens the diff into store mutations in Remove → Update → Add order.
func (d *LineDiff) Mutations() []model.Mutation {
	ms := make([]model.Mutation, 0, len(d.ToRemove)+len(d.ToUpdate)+len(d.ToAdd))
	for _, r := range d.ToRemove {
		ms = append(ms, model.Mutation{Kind: model.MutationRemove, LineID: r.LineID})
	}
	for _, u := range d.ToUpdate {
		ms = append(ms, model.Mutation{Kind: model.MutationSet, LineID: u.LineID, Quantity: u.NewQuantity})
	}
	for _, a := range d.ToAdd {
		ms = append(ms, model.Mutation{Kind: model.MutationAdd, ProductID: a.ProductID, VariantID: a.VariantID, Quantity: a.Quantity})
	}
	return ms
}

// DesiredLine is one entry of a desired cart.
type DesiredLine struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Key returns the (product, variant) pair.
func (l DesiredLine) Key() model.LineKey {
	return model.LineKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

// DiffLines computes the delta between the current cart lines and a desired set.
// Matching is by (product, variant), never by line ID. Desired entries for the
// same pair are summed; a total of zero or less means the line should not exist.
// Output order is deterministic (sorted by key).
func DiffLines(current []model.CartLine, desired []DesiredLine) *LineDiff {
	diff := &LineDiff{}

	currentByKey := make(map[model.LineKey]model.CartLine, len(current))
	for _, l := range current {
		currentByKey[l.Key()] = l
	}

	desiredByKey := make(map[model.LineKey]int, len(desired))
	for _, d := range desired {
		desiredByKey[d.Key()] += d.Quantity
	}

	for _, key := range sortedKeys(desiredByKey) {
		qty := desiredByKey[key]
		cur, exists := currentByKey[key]
		switch {
		case qty <= 0:
			// handled by the removal pass
		case exists && cur.Quantity != qty:
			diff.ToUpdate = append(diff.ToUpdate, LineToUpdate{
				ProductID:   key.ProductID,
				LineID:      cur.ID,
				OldQuantity: cur.Quantity,
				NewQuantity: qty,
			})
		case !exists:
			diff.ToAdd = append(diff.ToAdd, LineToAdd{
				ProductID: key.ProductID,
				VariantID: key.VariantID,
				Quantity:  qty,
			})
		}
	}

	for _, key := range sortedKeys(currentByKey) {
		if desiredByKey[key] <= 0 {
			cur := currentByKey[key]
			diff.ToRemove = append(diff.ToRemove, LineToRemove{
				ProductID: key.ProductID,
				LineID:    cur.ID,
			})
		}
	}

	return diff
}

// MergeLines returns the desired set for merging a guest cart into a cart:
// every pair from both, quantities summed. Stores clamp the sums to inventory.
func MergeLines(current, guest []model.CartLine) []DesiredLine {
	totals := make(map[model.LineKey]int, len(current)+len(guest))
	for _, l := range current {
		totals[l.Key()] += l.Quantity
	}
	for _, l := range guest {
		totals[l.Key()] += l.Quantity
	}

	out := make([]DesiredLine, 0, len(totals))
	for _, key := range sortedKeys(totals) {
		out = append(out, DesiredLine{ProductID: key.ProductID, VariantID: key.VariantID, Quantity: totals[key]})
	}
	return out
}

// FromSnapshot converts a snapshot's lines to a desired set (used to restore a cart).
func FromSnapshot(snap *model.CartSnapshot) []DesiredLine {
	if snap == nil {
		return nil
	}
	out := make([]DesiredLine, 0, len(snap.Items))
	for _, l := range snap.Items {
		k := l.Key()
		out = append(out, DesiredLine{ProductID: k.ProductID, VariantID: k.VariantID, Quantity: l.Quantity})
	}
	return out
}

func sortedKeys[V any](m map[model.LineKey]V) []model.LineKey {
	keys := make([]model.LineKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
