// Package availability derives how many more units of a product or variant
// a shopper can add, given catalog inventory and what is already in the cart.
//
// Everything here is a pure function of its inputs and is recomputed on every
// read. The result drives control state and stock text only; the store
// re-validates every mutation.
package availability

import (
	"fmt"

	"storefront-cart/internal/model"
)

// Kind distinguishes the three availability outcomes.
type Kind int

const (
	// Unlimited means the catalog does not track inventory for the item.
	Unlimited Kind = iota
	// Limited means Remaining more units can be added.
	Limited
	// SelectionRequired means the product has variants and none is selected.
	// It is distinct from zero stock.
	SelectionRequired
)

func (k Kind) String() string {
	switch k {
	case Unlimited:
		return "unlimited"
	case Limited:
		return "limited"
	case SelectionRequired:
		return "selection_required"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Availability is the remaining purchasable quantity for one (product, variant) pair.
type Availability struct {
	Kind      Kind `json:"kind"`
	Remaining int  `json:"remaining"`
}

// AvailableToAdd returns max(0, inventory - inCart). A nil inventory is unlimited.
func AvailableToAdd(inventory *int, inCart int) Availability {
	if inventory == nil {
		return Availability{Kind: Unlimited}
	}
	remaining := *inventory - inCart
	if remaining < 0 {
		remaining = 0
	}
	return Availability{Kind: Limited, Remaining: remaining}
}

// ForSelection computes availability for a product as currently selected.
// When variants are enabled the selected variant's inventory is used, never
// the parent product's; an empty or unknown variant yields SelectionRequired.
func ForSelection(p model.Product, variantID string, snap *model.CartSnapshot) Availability {
	if !p.EnableVariants {
		inCart := snap.QuantityFor(model.LineKey{ProductID: p.ID})
		return AvailableToAdd(p.Inventory, inCart)
	}

	if variantID == "" {
		return Availability{Kind: SelectionRequired}
	}
	v, ok := p.FindVariant(variantID)
	if !ok {
		return Availability{Kind: SelectionRequired}
	}
	inCart := snap.QuantityFor(model.LineKey{ProductID: p.ID, VariantID: v.ID})
	return AvailableToAdd(v.Inventory, inCart)
}

// CanAdd reports whether n more units may be added.
func (a Availability) CanAdd(n int) bool {
	switch a.Kind {
	case Unlimited:
		return true
	case Limited:
		return a.Remaining >= n
	default:
		return false
	}
}

// Check returns nil when n more units may be added, otherwise the typed
// error a control should surface for the named product.
func (a Availability) Check(product string, n int) error {
	if a.CanAdd(n) {
		return nil
	}
	if a.Kind == SelectionRequired {
		return model.NewSelectionRequiredError(product)
	}
	return model.NewOutOfStockError(product, a.Remaining)
}

// lowStockThreshold is the remaining count below which the scarcity message shows.
const lowStockThreshold = 10

// StockMessage renders the stock indicator text for a selection.
// Empty when stock is plentiful, unlimited, or a variant must be chosen first.
func StockMessage(a Availability) string {
	if a.Kind != Limited {
		return ""
	}
	switch {
	case a.Remaining == 0:
		return "Out of stock"
	case a.Remaining < lowStockThreshold:
		return fmt.Sprintf("Only %d left in stock. Order soon!", a.Remaining)
	default:
		return ""
	}
}
