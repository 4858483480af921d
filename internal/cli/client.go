package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"

	"storefront-cart/internal/cart"
)

const sessionHeader = "Cart-Session"

// Client calls the cart service REST API and carries the session handle
// from one response to the next request.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Handle  string // raw Cart-Session header value
	Version string

	// Trace, when set, receives every request and response.
	Trace func(method, path string, reqBody []byte, status int, respBody []byte, d time.Duration)
}

// RequestError is a non-2xx response from the cart service.
type RequestError struct {
	Status        int
	Code          string
	Message       string
	Retryable     bool
	Notifications []cart.Notification
}

func (e *RequestError) Error() string {
	// A failure notification is written for shoppers and reads better than the code.
	for _, n := range e.Notifications {
		if n.Level == cart.LevelError {
			return fmt.Sprintf("%s (%s)", n.Message, e.Code)
		}
	}
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CartResponse mirrors the service's cart body.
type CartResponse struct {
	Session            string                   `json:"session"`
	CartID             string                   `json:"cart_id,omitempty"`
	Cart               cart.View                `json:"cart"`
	Controls           map[string]cart.Controls `json:"controls,omitempty"`
	GuestEmailRequired bool                     `json:"guest_email_required"`
	Notifications      []cart.Notification      `json:"notifications,omitempty"`
}

// AvailabilityResponse mirrors the service's availability body.
type AvailabilityResponse struct {
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id,omitempty"`
	Kind         string `json:"kind"`
	Remaining    *int   `json:"remaining,omitempty"`
	InCart       int    `json:"in_cart"`
	AddDisabled  bool   `json:"add_disabled"`
	StockMessage string `json:"stock_message,omitempty"`
}

// Cart fetches the session's cart.
func (c *Client) Cart(ctx context.Context) (*CartResponse, []byte, error) {
	return decodeInto[CartResponse](c.do(ctx, http.MethodGet, "/cart", nil))
}

// Add adds units of a product or variant.
func (c *Client) Add(ctx context.Context, productID, variantID string, qty int) (*CartResponse, []byte, error) {
	body := map[string]any{"product_id": productID, "quantity": qty}
	if variantID != "" {
		body["variant_id"] = variantID
	}
	return decodeInto[CartResponse](c.do(ctx, http.MethodPost, "/cart/items", body))
}

// Increment adds one unit to a line.
func (c *Client) Increment(ctx context.Context, lineID string) (*CartResponse, []byte, error) {
	return decodeInto[CartResponse](c.do(ctx, http.MethodPost, "/cart/items/"+url.PathEscape(lineID)+"/increment", nil))
}

// Decrement removes one unit from a line.
func (c *Client) Decrement(ctx context.Context, lineID string) (*CartResponse, []byte, error) {
	return decodeInto[CartResponse](c.do(ctx, http.MethodPost, "/cart/items/"+url.PathEscape(lineID)+"/decrement", nil))
}

// Remove deletes a line.
func (c *Client) Remove(ctx context.Context, lineID string) (*CartResponse, []byte, error) {
	return decodeInto[CartResponse](c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(lineID), nil))
}

// Availability reports how many more units of a selection can be added.
func (c *Client) Availability(ctx context.Context, productID, variantID string) (*AvailabilityResponse, []byte, error) {
	path := "/products/" + url.PathEscape(productID) + "/availability"
	if variantID != "" {
		path += "?variant=" + url.QueryEscape(variantID)
	}
	return decodeInto[AvailabilityResponse](c.do(ctx, http.MethodGet, path, nil))
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	var reqJSON []byte
	if body != nil {
		var err error
		if reqJSON, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.BaseURL, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h := c.requestHandle(); h != "" {
		req.Header.Set(sessionHeader, h)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if c.Trace != nil {
		c.Trace(method, path, reqJSON, resp.StatusCode, respBody, time.Since(start))
	}

	// The service echoes the handle on failures too; keep it either way.
	if h := resp.Header.Get(sessionHeader); h != "" {
		c.Handle = h
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Code      string `json:"code"`
				Message   string `json:"message"`
				Retryable bool   `json:"retryable"`
			} `json:"error"`
			Notifications []cart.Notification `json:"notifications"`
		}
		json.Unmarshal(respBody, &envelope) // Best effort parse
		return nil, &RequestError{
			Status:        resp.StatusCode,
			Code:          envelope.Error.Code,
			Message:       envelope.Error.Message,
			Retryable:     envelope.Error.Retryable,
			Notifications: envelope.Notifications,
		}
	}
	return respBody, nil
}

// requestHandle adds the storefront version to the saved handle.
func (c *Client) requestHandle() string {
	if c.Version == "" {
		return c.Handle
	}
	dict := httpsfv.NewDictionary()
	if c.Handle != "" {
		parsed, err := httpsfv.UnmarshalDictionary([]string{c.Handle})
		if err != nil {
			return c.Handle
		}
		dict = parsed
	}
	member, ok := dict.Get("token")
	item, isItem := member.(httpsfv.Item)
	if !ok || !isItem {
		item = httpsfv.NewItem("")
	}
	item.Params.Add("v", c.Version)
	dict.Add("token", item)

	out, err := httpsfv.Marshal(dict)
	if err != nil {
		return c.Handle
	}
	return out
}

func decodeInto[T any](body []byte, err error) (*T, []byte, error) {
	if err != nil {
		return nil, nil, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, body, fmt.Errorf("parsing response: %w", err)
	}
	return &v, body, nil
}

// loadHandle reads the saved Cart-Session handle. A missing file means no
// session yet.
func loadHandle(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading session file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func saveHandle(path, handle string) error {
	if handle == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(handle+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}
