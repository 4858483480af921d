package woocommerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-cart/internal/model"
)

// unlimitedMaximum is the Store API's default quantity_limits.maximum for
// items that do not manage stock.
const unlimitedMaximum = 9999

// ProductFromWoo converts a REST API product and its variations to a catalog
// document. Prices arrive in major units.
func ProductFromWoo(doc *WooProduct, variations []WooVariation, currency string) *model.Product {
	p := &model.Product{
		ID:             strconv.Itoa(doc.ID),
		Title:          doc.Name,
		Slug:           doc.Slug,
		Price:          model.Money{Amount: model.ParseCents(doc.Price), Currency: currency},
		EnableVariants: doc.Type == "variable",
	}
	if doc.ManageStock || doc.StockStatus == "outofstock" {
		p.Inventory = inventoryOf(doc.StockQuantity, doc.StockStatus)
	}

	for _, v := range variations {
		p.Variants = append(p.Variants, model.Expand(model.Variant{
			ID:        strconv.Itoa(v.ID),
			ProductID: p.ID,
			Title:     variationTitle(v.Attributes),
			Price:     model.Money{Amount: model.ParseCents(v.Price), Currency: currency},
			Inventory: inventoryOf(v.StockQuantity, v.StockStatus),
		}))
	}
	return p
}

// inventoryOf maps REST API stock fields to an inventory ceiling. Out of stock
// wins over a stale quantity; untracked stock is unlimited.
func inventoryOf(quantity *int, status string) *int {
	if status == "outofstock" {
		return model.Stock(0)
	}
	if quantity == nil {
		return nil
	}
	return model.Stock(max(0, *quantity))
}

func variationTitle(attrs []WooAttribute) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if a.Option != "" {
			parts = append(parts, a.Option)
		}
	}
	return strings.Join(parts, " / ")
}

func cartVariantTitle(attrs []WooVariant) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if a.Value != "" {
			parts = append(parts, a.Value)
		}
	}
	return strings.Join(parts, " / ")
}

// limitOf returns the ceiling the Store API enforces for a cart item.
func limitOf(item WooCartItem) *int {
	if item.QuantityLimits.Maximum <= 0 || item.QuantityLimits.Maximum >= unlimitedMaximum {
		return nil
	}
	return model.Stock(item.QuantityLimits.Maximum)
}

// minorDigits defaults an absent currency_minor_unit to cents.
func minorDigits(d *int) int {
	if d == nil {
		return model.CentDigits
	}
	return *d
}

// CartToSnapshot converts a Store API cart to an authoritative snapshot.
// keys maps each item to its (product, variant) pair, in item order.
func CartToSnapshot(cart *WooCartResponse, cartToken string, keys []model.LineKey, version uint64, now time.Time) *model.CartSnapshot {
	snap := &model.CartSnapshot{
		ID:        cartToken,
		Items:     make([]model.CartLine, 0, len(cart.Items)),
		Version:   version,
		UpdatedAt: now,
		Subtotal: model.Money{
			Amount:   model.ParseMinorUnits(cart.Totals.TotalItems, minorDigits(cart.Totals.CurrencyMinorUnit)),
			Currency: cart.Totals.CurrencyCode,
		},
	}

	for i, item := range cart.Items {
		key := model.LineKey{ProductID: strconv.Itoa(item.ID)}
		if i < len(keys) {
			key = keys[i]
		}
		currency := item.Prices.CurrencyCode
		if currency == "" {
			currency = cart.Totals.CurrencyCode
		}
		digits := item.Prices.CurrencyMinorUnit
		if digits == nil {
			digits = cart.Totals.CurrencyMinorUnit
		}
		price := model.Money{Amount: model.ParseMinorUnits(item.Prices.Price, minorDigits(digits)), Currency: currency}

		line := model.CartLine{ID: item.Key, Quantity: item.Quantity, UnitPrice: price}
		if key.VariantID == "" {
			line.Product = model.Expand(model.Product{
				ID:        key.ProductID,
				Title:     item.Name,
				Price:     price,
				Inventory: limitOf(item),
			})
		} else {
			line.Product = model.Expand(model.Product{ID: key.ProductID, Title: item.Name, EnableVariants: true})
			variant := model.Expand(model.Variant{
				ID:        key.VariantID,
				ProductID: key.ProductID,
				Title:     cartVariantTitle(item.Variation),
				Price:     price,
				Inventory: limitOf(item),
			})
			line.Variant = &variant
		}
		snap.Items = append(snap.Items, line)
	}
	return snap
}

// parseErrorResponse converts a WooCommerce error body to an APIError.
// Store API error codes are more specific than statuses and are checked first.
func parseErrorResponse(statusCode int, body []byte) error {
	var wcErr WooErrorResponse
	json.Unmarshal(body, &wcErr) // Best effort parse

	code := wcErr.Code
	switch {
	case code == "woocommerce_rest_cart_invalid_key":
		return model.NewNotFoundError("cart item")
	case strings.Contains(code, "invalid_product") || strings.Contains(code, "invalid_id"):
		return model.NewNotFoundError("product")
	case strings.Contains(code, "stock"):
		msg := wcErr.Message
		if msg == "" {
			msg = "item"
		}
		return model.NewOutOfStockError(msg, 0)
	case strings.Contains(code, "nonce"):
		return model.NewUnauthorizedError("Store API nonce rejected")
	}

	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError("resource")
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewUnauthorizedError("WooCommerce authentication failed")
	case http.StatusBadRequest:
		msg := wcErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	case http.StatusTooManyRequests:
		return model.NewRateLimitError("WooCommerce")
	default:
		return model.NewUpstreamError("WooCommerce",
			fmt.Errorf("status %d: %s - %s", statusCode, wcErr.Code, wcErr.Message))
	}
}

// transportError classifies a failed HTTP round trip.
func transportError(err error) error {
	err = model.NormalizeTransportError("WooCommerce", err)
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return model.NewNetworkError("WooCommerce", err)
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
