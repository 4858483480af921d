package woocommerce

import (
	"errors"
	"testing"
	"time"

	"storefront-cart/internal/model"
)

func intPtr(n int) *int { return &n }

func TestProductFromWoo(t *testing.T) {
	doc := &WooProduct{
		ID:            60,
		Name:          "Hoodie",
		Slug:          "hoodie",
		Type:          "variable",
		Price:         "45.00",
		ManageStock:   true,
		StockQuantity: intPtr(12),
		StockStatus:   "instock",
	}
	variations := []WooVariation{
		{ID: 61, Price: "45.00", StockQuantity: intPtr(3), StockStatus: "instock", Attributes: []WooAttribute{{Name: "Size", Option: "L"}, {Name: "Color", Option: "Blue"}}},
		{ID: 62, Price: "47.50", StockStatus: "outofstock"},
		{ID: 63, Price: "45.00", StockStatus: "instock"},
	}

	p := ProductFromWoo(doc, variations, "EUR")

	if p.ID != "60" || p.Title != "Hoodie" || !p.EnableVariants {
		t.Errorf("product = %+v", p)
	}
	if p.Price.Amount != 4500 || p.Price.Currency != "EUR" {
		t.Errorf("Price = %v, want EUR 45.00", p.Price)
	}
	if p.Inventory == nil || *p.Inventory != 12 {
		t.Errorf("Inventory = %v, want 12", p.Inventory)
	}

	tests := []struct {
		id        string
		title     string
		price     int64
		inventory *int
	}{
		{"61", "L / Blue", 4500, intPtr(3)},
		{"62", "", 4750, intPtr(0)},
		{"63", "", 4500, nil},
	}
	for _, tt := range tests {
		v, ok := p.FindVariant(tt.id)
		if !ok {
			t.Fatalf("variant %s missing", tt.id)
		}
		if v.Title != tt.title || v.Price.Amount != tt.price || v.ProductID != "60" {
			t.Errorf("variant %s = %+v", tt.id, v)
		}
		switch {
		case tt.inventory == nil && v.Inventory != nil:
			t.Errorf("variant %s Inventory = %d, want unlimited", tt.id, *v.Inventory)
		case tt.inventory != nil && (v.Inventory == nil || *v.Inventory != *tt.inventory):
			t.Errorf("variant %s Inventory = %v, want %d", tt.id, v.Inventory, *tt.inventory)
		}
	}
}

func TestProductFromWoo_StockTracking(t *testing.T) {
	tests := []struct {
		name string
		doc  WooProduct
		want *int
	}{
		{"untracked", WooProduct{ID: 1, StockStatus: "instock"}, nil},
		{"tracked", WooProduct{ID: 1, ManageStock: true, StockQuantity: intPtr(4), StockStatus: "instock"}, intPtr(4)},
		{"negative stock clamps", WooProduct{ID: 1, ManageStock: true, StockQuantity: intPtr(-2), StockStatus: "onbackorder"}, intPtr(0)},
		{"out of stock untracked", WooProduct{ID: 1, StockStatus: "outofstock"}, intPtr(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProductFromWoo(&tt.doc, nil, "USD").Inventory
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("Inventory = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCartToSnapshot(t *testing.T) {
	cart := &WooCartResponse{
		Items: []WooCartItem{
			{
				Key: "k1", ID: 10, Name: "Mug", Quantity: 2,
				QuantityLimits: WooQuantityLimits{Maximum: 5},
				Prices:         WooPrices{Price: "1200", CurrencyCode: "USD"},
			},
			{
				Key: "k2", ID: 61, Type: "variation", Name: "Hoodie", Quantity: 1,
				QuantityLimits: WooQuantityLimits{Maximum: 9999},
				Prices:         WooPrices{Price: "4500"},
				Variation:      []WooVariant{{Attribute: "Size", Value: "L"}},
			},
		},
		Totals: WooTotals{CurrencyCode: "USD", TotalItems: "6900"},
	}
	keys := []model.LineKey{{ProductID: "10"}, {ProductID: "60", VariantID: "61"}}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	snap := CartToSnapshot(cart, "tok", keys, 7, now)

	if snap.ID != "tok" || snap.Version != 7 || !snap.UpdatedAt.Equal(now) {
		t.Errorf("snapshot header = %q v%d %v", snap.ID, snap.Version, snap.UpdatedAt)
	}
	if snap.Subtotal.Amount != 6900 || snap.Subtotal.Currency != "USD" {
		t.Errorf("Subtotal = %v", snap.Subtotal)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(snap.Items))
	}

	mug := snap.Items[0]
	if mug.ID != "k1" || mug.Quantity != 2 || mug.UnitPrice.Amount != 1200 {
		t.Errorf("mug line = %+v", mug)
	}
	if inv, ok := mug.Inventory(); !ok || inv == nil || *inv != 5 {
		t.Errorf("mug Inventory() = %v, %v; want 5", inv, ok)
	}

	hoodie := snap.Items[1]
	if hoodie.Key() != (model.LineKey{ProductID: "60", VariantID: "61"}) {
		t.Errorf("hoodie key = %v", hoodie.Key())
	}
	if hoodie.Title() != "Hoodie (L)" {
		t.Errorf("hoodie Title() = %q", hoodie.Title())
	}
	if hoodie.UnitPrice.Currency != "USD" {
		t.Errorf("currency should fall back to cart totals, got %q", hoodie.UnitPrice.Currency)
	}
	if inv, ok := hoodie.Inventory(); !ok || inv != nil {
		t.Errorf("default maximum should read as unlimited, got %v", inv)
	}
}

func TestCartToSnapshot_MinorUnits(t *testing.T) {
	cart := &WooCartResponse{
		Items: []WooCartItem{
			{Key: "k1", ID: 10, Name: "Teapot", Quantity: 1, Prices: WooPrices{Price: "3200"}},
		},
		Totals: WooTotals{CurrencyCode: "JPY", CurrencyMinorUnit: intPtr(0), TotalItems: "3200"},
	}

	snap := CartToSnapshot(cart, "tok", nil, 1, time.Now())

	if snap.Subtotal.Amount != 320000 {
		t.Errorf("Subtotal = %d, want 320000", snap.Subtotal.Amount)
	}
	if got := snap.Items[0].UnitPrice; got.Amount != 320000 || got.String() != "JPY 3200.00" {
		t.Errorf("UnitPrice = %v, want JPY 3200.00", got)
	}
}

func TestParseErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid cart key", 409, `{"code":"woocommerce_rest_cart_invalid_key","message":"Cart item does not exist."}`, model.ErrNotFound},
		{"invalid product", 400, `{"code":"woocommerce_rest_cart_invalid_product","message":"This product cannot be added."}`, model.ErrNotFound},
		{"no stock", 400, `{"code":"woocommerce_rest_product_out_of_stock","message":"Hoodie is out of stock."}`, model.ErrOutOfStock},
		{"partial stock", 400, `{"code":"woocommerce_rest_product_partially_out_of_stock","message":"Not enough units."}`, model.ErrOutOfStock},
		{"bad nonce", 401, `{"code":"woocommerce_rest_invalid_nonce","message":"Nonce is invalid."}`, model.ErrUnauthorized},
		{"plain 404", 404, ``, model.ErrNotFound},
		{"forbidden", 403, `{"code":"rest_forbidden"}`, model.ErrUnauthorized},
		{"bad request", 400, `{"code":"rest_invalid_param","message":"quantity"}`, model.ErrInvalidRequest},
		{"rate limited", 429, ``, model.ErrRateLimited},
		{"server error", 500, `{"code":"internal"}`, model.ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseErrorResponse(tt.status, []byte(tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("parseErrorResponse() = %v, want %v", err, tt.want)
			}
		})
	}
}
