// Package model holds the cart domain types shared by every layer: catalog
// documents, authoritative cart snapshots, mutations and the error taxonomy.
package model

import (
	"time"
)

// Product is a purchasable catalog document.
// Inventory nil means the store does not track stock (treated as unlimited).
type Product struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Slug           string         `json:"slug,omitempty"`
	Price          Money          `json:"price"`
	Inventory      *int           `json:"inventory,omitempty"`
	EnableVariants bool           `json:"enable_variants,omitempty"`
	Variants       []Ref[Variant] `json:"variants,omitempty"`
}

// RefID implements Identifiable.
func (p Product) RefID() string { return p.ID }

// Variant is a specific purchasable configuration of a product (size, color...).
// When a cart line carries a variant, price and inventory come from here.
type Variant struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Title     string `json:"title,omitempty"`
	Price     Money  `json:"price"`
	Inventory *int   `json:"inventory,omitempty"`
}

// RefID implements Identifiable.
func (v Variant) RefID() string { return v.ID }

// FindVariant returns the expanded variant with the given ID, if the product carries it.
func (p Product) FindVariant(variantID string) (Variant, bool) {
	for _, ref := range p.Variants {
		if ref.ID() != variantID {
			continue
		}
		if v, ok := ref.Resolve(); ok {
			return v, true
		}
	}
	return Variant{}, false
}

// Stock returns a pointer to a copy of n, for building inventory fields.
func Stock(n int) *int {
	return &n
}

// LineKey identifies the (product, variant) pair a cart line is for.
// A cart holds at most one line per key.
type LineKey struct {
	ProductID string
	VariantID string
}

// String renders the key as product or product:variant.
func (k LineKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + ":" + k.VariantID
}

// CartLine is one entry in a cart.
type CartLine struct {
	ID        string        `json:"id"`
	Product   Ref[Product]  `json:"product"`
	Variant   *Ref[Variant] `json:"variant,omitempty"`
	Quantity  int           `json:"quantity"`
	UnitPrice Money         `json:"unit_price"`
}

// Key returns the line's (product, variant) identity.
func (l CartLine) Key() LineKey {
	k := LineKey{ProductID: l.Product.ID()}
	if l.Variant != nil {
		k.VariantID = l.Variant.ID()
	}
	return k
}

// Title returns a display name for notifications: the product title when
// expanded, the product ID otherwise.
func (l CartLine) Title() string {
	if p, ok := l.Product.Resolve(); ok && p.Title != "" {
		if l.Variant != nil {
			if v, ok := l.Variant.Resolve(); ok && v.Title != "" {
				return p.Title + " (" + v.Title + ")"
			}
		}
		return p.Title
	}
	return l.Product.ID()
}

// Inventory returns the stock ceiling that applies to this line: variant
// inventory when a variant is selected, product inventory otherwise.
// The second value is false when the document is not expanded.
func (l CartLine) Inventory() (*int, bool) {
	if l.Variant != nil {
		v, ok := l.Variant.Resolve()
		if !ok {
			return nil, false
		}
		return v.Inventory, true
	}
	p, ok := l.Product.Resolve()
	if !ok {
		return nil, false
	}
	return p.Inventory, true
}

// UserIdentity is the signed-in customer, when there is one.
type UserIdentity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// CartSnapshot is the cart as last confirmed by the authoritative store.
type CartSnapshot struct {
	ID        string        `json:"id"`
	Items     []CartLine    `json:"items"`
	Subtotal  Money         `json:"subtotal"`
	Version   uint64        `json:"version"`
	UpdatedAt time.Time     `json:"updated_at"`
	Customer  *UserIdentity `json:"customer,omitempty"`
}

// IsNewerThan reports whether s supersedes other. Any snapshot supersedes nil.
func (s *CartSnapshot) IsNewerThan(other *CartSnapshot) bool {
	if s == nil {
		return false
	}
	if other == nil {
		return true
	}
	return s.Version > other.Version
}

// Line returns the line with the given ID.
func (s *CartSnapshot) Line(lineID string) (CartLine, bool) {
	if s == nil {
		return CartLine{}, false
	}
	for _, l := range s.Items {
		if l.ID == lineID {
			return l, true
		}
	}
	return CartLine{}, false
}

// LineFor returns the line holding the given (product, variant) pair.
func (s *CartSnapshot) LineFor(key LineKey) (CartLine, bool) {
	if s == nil {
		return CartLine{}, false
	}
	for _, l := range s.Items {
		if l.Key() == key {
			return l, true
		}
	}
	return CartLine{}, false
}

// QuantityFor returns the in-cart quantity for a (product, variant) pair, 0 if absent.
func (s *CartSnapshot) QuantityFor(key LineKey) int {
	l, ok := s.LineFor(key)
	if !ok {
		return 0
	}
	return l.Quantity
}

// TotalQuantity sums line quantities.
func (s *CartSnapshot) TotalQuantity() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, l := range s.Items {
		total += l.Quantity
	}
	return total
}

// Clone returns a deep copy of the line slice so callers can predict without
// mutating the authoritative snapshot.
func (s *CartSnapshot) Clone() *CartSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Items = make([]CartLine, len(s.Items))
	copy(c.Items, s.Items)
	return &c
}

// MutationKind is the kind of cart mutation.
type MutationKind string

const (
	MutationAdd       MutationKind = "add"
	MutationIncrement MutationKind = "increment"
	MutationDecrement MutationKind = "decrement"
	MutationRemove    MutationKind = "remove"
	// MutationSet sets a line to an absolute quantity. Used by desired-state
	// replace and cart merge, never by a single control.
	MutationSet MutationKind = "set"
)

// Mutation is one request against the authoritative cart.
// Add targets a (product, variant) pair; the other kinds target LineID.
type Mutation struct {
	Kind      MutationKind `json:"kind"`
	LineID    string       `json:"line_id,omitempty"`
	ProductID string       `json:"product_id,omitempty"`
	VariantID string       `json:"variant_id,omitempty"`
	Quantity  int          `json:"quantity,omitempty"`
}

// Key returns the (product, variant) pair an add targets.
func (m Mutation) Key() LineKey {
	return LineKey{ProductID: m.ProductID, VariantID: m.VariantID}
}

// Validate checks the fields required by the mutation kind.
func (m Mutation) Validate() error {
	switch m.Kind {
	case MutationAdd:
		if m.ProductID == "" {
			return NewValidationError("product_id", "required for add")
		}
		if m.Quantity < 1 {
			return NewValidationError("quantity", "must be at least 1")
		}
	case MutationIncrement, MutationDecrement, MutationRemove:
		if m.LineID == "" {
			return NewValidationError("line_id", "required for "+string(m.Kind))
		}
	case MutationSet:
		if m.LineID == "" {
			return NewValidationError("line_id", "required for set")
		}
		if m.Quantity < 1 {
			return NewValidationError("quantity", "must be at least 1, use remove instead")
		}
	default:
		return NewValidationError("kind", "unknown mutation kind "+string(m.Kind))
	}
	return nil
}
