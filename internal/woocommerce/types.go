// Package woocommerce implements the authoritative cart store on top of a
// WooCommerce shop: carts live in the Store API (Cart-Token sessions), catalog
// inventory comes from the REST API v3.
package woocommerce

import "encoding/json"

// === Store API cart types ===

// WooCartResponse is the Store API cart document returned by GET /cart and
// by every cart mutation.
type WooCartResponse struct {
	Items      []WooCartItem  `json:"items"`
	ItemsCount int            `json:"items_count"`
	Totals     WooTotals      `json:"totals"`
	Errors     []WooCartError `json:"errors,omitempty"`
}

// WooCartError is a cart-level problem reported alongside the cart (e.g. an
// item that went out of stock after it was added).
type WooCartError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WooCartItem is one line of a Store API cart.
// For variable products ID is the variation ID and Type is "variation".
type WooCartItem struct {
	Key            string            `json:"key"` // Cart item key (hash, not numeric)
	ID             int               `json:"id"`
	Type           string            `json:"type,omitempty"`
	Name           string            `json:"name"`
	Quantity       int               `json:"quantity"`
	QuantityLimits WooQuantityLimits `json:"quantity_limits"`
	Prices         WooPrices         `json:"prices"`
	Variation      []WooVariant      `json:"variation,omitempty"`
}

// WooQuantityLimits bounds a cart item's quantity. Maximum reflects remaining
// stock for managed items and a large default otherwise.
type WooQuantityLimits struct {
	Minimum    int  `json:"minimum"`
	Maximum    int  `json:"maximum"`
	MultipleOf int  `json:"multiple_of"`
	Editable   bool `json:"editable"`
}

// WooPrices contains price info in minor units.
type WooPrices struct {
	Price             string `json:"price"`
	RegularPrice      string `json:"regular_price"`
	SalePrice         string `json:"sale_price"`
	CurrencyCode      string `json:"currency_code"`
	CurrencyMinorUnit *int   `json:"currency_minor_unit"`
}

// WooTotals contains cart totals in minor units.
type WooTotals struct {
	CurrencyCode      string `json:"currency_code"`
	CurrencyMinorUnit *int   `json:"currency_minor_unit"`
	TotalItems        string `json:"total_items"`
	TotalItemsTax     string `json:"total_items_tax"`
	TotalPrice        string `json:"total_price"`
}

// WooVariant is a variation attribute on a cart item.
type WooVariant struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// WooErrorResponse is a Store API or REST API error body.
type WooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// === REST API v3 catalog types ===

// WooProduct is a product (or variation) from /wp-json/wc/v3/products/{id}.
// Prices are decimal strings in major units.
type WooProduct struct {
	ID            int    `json:"id"`
	ParentID      int    `json:"parent_id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Type          string `json:"type"` // simple, variable, variation...
	Price         string `json:"price"`
	ManageStock   bool   `json:"manage_stock"`
	StockQuantity *int   `json:"stock_quantity"`
	StockStatus   string `json:"stock_status"` // instock, outofstock, onbackorder
	Variations    []int  `json:"variations,omitempty"`
}

// WooVariation is an entry from /wp-json/wc/v3/products/{id}/variations.
type WooVariation struct {
	ID            int            `json:"id"`
	Price         string         `json:"price"`
	StockQuantity *int           `json:"stock_quantity"`
	StockStatus   string         `json:"stock_status"`
	Attributes    []WooAttribute `json:"attributes"`
}

// WooAttribute is a variation attribute from the REST API.
type WooAttribute struct {
	Name   string `json:"name"`
	Option string `json:"option"`
}

// === Batch API types ===

// WooBatchRequest is the payload for POST /batch.
type WooBatchRequest struct {
	Requests []WooBatchOperation `json:"requests"`
}

// WooBatchOperation is a single operation within a batch.
// Headers carries per-operation authentication (Cart-Token, Nonce).
type WooBatchOperation struct {
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// WooBatchResponse is the response from POST /batch.
type WooBatchResponse struct {
	Responses []WooBatchResult `json:"responses"`
}

// WooBatchResult is a single result within a batch response.
type WooBatchResult struct {
	Status  int             `json:"status"`
	Body    json.RawMessage `json:"body"`
	Headers WooBatchHeaders `json:"headers"`
}

// WooBatchHeaders contains headers from a batch sub-response.
type WooBatchHeaders struct {
	Nonce     string `json:"Nonce"`
	CartToken string `json:"Cart-Token"`
}
