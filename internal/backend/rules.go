package backend

import (
	"github.com/google/uuid"

	"storefront-cart/internal/model"
)

// Line is a store-side cart line before catalog expansion.
type Line struct {
	ID        string
	ProductID string
	VariantID string
	Quantity  int
}

// CeilingFunc returns the inventory ceiling for a (product, variant) pair and
// a display name for errors. A nil ceiling means unlimited. It fails with
// ErrNotFound for unknown items and ErrSelectionRequired when a variant product
// is referenced without a variant.
type CeilingFunc func(productID, variantID string) (ceiling *int, title string, err error)

// Rules applies cart mutation semantics to a line list. Stores load their
// lines, run Apply, and persist the result; the rules themselves hold no state.
type Rules struct {
	Ceiling CeilingFunc
	// NewID issues line identifiers. Defaults to random UUIDs.
	NewID func() string
	// HasVariants reports whether a product distinguishes variants. Adds for
	// products without variants ignore any variant ID.
	HasVariants func(productID string) bool
}

func (r Rules) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func clamp(want int, ceiling *int) int {
	if ceiling != nil && want > *ceiling {
		return *ceiling
	}
	return want
}

func indexOf(lines []Line, lineID string) int {
	for i, l := range lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

// Apply returns the line list after m. The input slice is not modified.
func (r Rules) Apply(lines []Line, m model.Mutation) ([]Line, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := make([]Line, len(lines), len(lines)+1)
	copy(out, lines)

	switch m.Kind {
	case model.MutationAdd:
		variantID := m.VariantID
		if r.HasVariants != nil && !r.HasVariants(m.ProductID) {
			variantID = ""
		}
		ceiling, title, err := r.Ceiling(m.ProductID, variantID)
		if err != nil {
			return nil, err
		}
		for i := range out {
			l := &out[i]
			if l.ProductID != m.ProductID || l.VariantID != variantID {
				continue
			}
			next := clamp(l.Quantity+m.Quantity, ceiling)
			if next <= l.Quantity {
				return nil, model.NewOutOfStockError(title, 0)
			}
			l.Quantity = next
			return out, nil
		}
		qty := clamp(m.Quantity, ceiling)
		if qty < 1 {
			return nil, model.NewOutOfStockError(title, 0)
		}
		return append(out, Line{ID: r.newID(), ProductID: m.ProductID, VariantID: variantID, Quantity: qty}), nil

	case model.MutationIncrement:
		i := indexOf(out, m.LineID)
		if i < 0 {
			return nil, model.NewNotFoundError("cart line")
		}
		ceiling, title, err := r.Ceiling(out[i].ProductID, out[i].VariantID)
		if err != nil {
			return nil, err
		}
		if ceiling != nil && out[i].Quantity+1 > *ceiling {
			return nil, model.NewOutOfStockError(title, max(0, *ceiling-out[i].Quantity))
		}
		out[i].Quantity++
		return out, nil

	case model.MutationDecrement:
		i := indexOf(out, m.LineID)
		if i < 0 {
			return nil, model.NewNotFoundError("cart line")
		}
		out[i].Quantity--
		if out[i].Quantity <= 0 {
			out = append(out[:i], out[i+1:]...)
		}
		return out, nil

	case model.MutationRemove:
		i := indexOf(out, m.LineID)
		if i < 0 {
			return nil, model.NewNotFoundError("cart line")
		}
		return append(out[:i], out[i+1:]...), nil

	case model.MutationSet:
		i := indexOf(out, m.LineID)
		if i < 0 {
			return nil, model.NewNotFoundError("cart line")
		}
		ceiling, title, err := r.Ceiling(out[i].ProductID, out[i].VariantID)
		if err != nil {
			return nil, err
		}
		qty := clamp(m.Quantity, ceiling)
		if qty < 1 {
			return nil, model.NewOutOfStockError(title, 0)
		}
		out[i].Quantity = qty
		return out, nil
	}
	return nil, model.NewValidationError("kind", "unknown mutation kind "+string(m.Kind))
}

// ApplyAll runs ms in order, stopping at the first failure.
func (r Rules) ApplyAll(lines []Line, ms []model.Mutation) ([]Line, error) {
	var err error
	for _, m := range ms {
		lines, err = r.Apply(lines, m)
		if err != nil {
			return nil, err
		}
	}
	return lines, nil
}

// ProductCeiling builds a CeilingFunc from a product lookup.
func ProductCeiling(lookup func(productID string) (model.Product, bool)) CeilingFunc {
	return func(productID, variantID string) (*int, string, error) {
		p, ok := lookup(productID)
		if !ok {
			return nil, "", model.NewNotFoundError("product " + productID)
		}
		if !p.EnableVariants {
			return p.Inventory, p.Title, nil
		}
		if variantID == "" {
			return nil, p.Title, model.NewSelectionRequiredError(p.Title)
		}
		v, ok := p.FindVariant(variantID)
		if !ok {
			return nil, p.Title, model.NewNotFoundError("variant " + variantID)
		}
		return v.Inventory, p.Title, nil
	}
}

// ExpandLine resolves a store line against its product document.
func ExpandLine(l Line, p *model.Product) model.CartLine {
	cl := model.CartLine{ID: l.ID, Quantity: l.Quantity}
	if p == nil {
		cl.Product = model.RefTo[model.Product](l.ProductID)
	} else {
		cl.Product = model.Expand(*p)
		cl.UnitPrice = p.Price
	}
	if l.VariantID != "" {
		ref := model.RefTo[model.Variant](l.VariantID)
		if p != nil {
			if v, ok := p.FindVariant(l.VariantID); ok {
				ref = model.Expand(v)
				cl.UnitPrice = v.Price
			}
		}
		cl.Variant = &ref
	}
	return cl
}
