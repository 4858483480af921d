package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront-cart/internal/backend"
	"storefront-cart/internal/model"
	"storefront-cart/internal/transport"
)

// =============================================================================
// NONCE AUTHENTICATION STRATEGY
// =============================================================================
//
// The Store API requires a "nonce" for every cart mutation. Before each
// mutation (or batch) we GET /cart, which returns a fresh nonce in the Nonce
// header and the current cart in the body. The cart is what mutations are
// planned against:
//
//   add / increment / decrement / remove:  GET /cart → POST /cart/<op>   (2 calls)
//   replace / merge:                       GET /cart → POST /batch       (2 calls)
//   fetch:                                 GET /cart                     (1 call)
//
// This keeps the client stateless per cart: nothing but the Cart-Token needs
// to survive between calls.
// =============================================================================

// storeAPIPath is the base path for Store API endpoints.
const storeAPIPath = "/wp-json/wc/store/v1"

// restAPIPath is the base path for REST API v3 endpoints (catalog).
const restAPIPath = "/wp-json/wc/v3"

// userAgent identifies this client to upstream servers.
// WooCommerce CDN/WAF setups rate-limit requests without a User-Agent.
const userAgent = "storefront-cart/1.0"

// BatchStrategy controls how multi-mutation applies are executed.
type BatchStrategy string

const (
	// BatchStrategyMulti uses the /batch endpoint with per-operation headers.
	BatchStrategyMulti BatchStrategy = "multi"

	// BatchStrategySequential executes operations one by one with nonce chaining.
	BatchStrategySequential BatchStrategy = "sequential"
)

// Config holds WooCommerce backend configuration.
type Config struct {
	StoreURL      string
	APIKey        string // REST API consumer key (catalog reads)
	APISecret     string // REST API consumer secret
	Currency      string // Currency for catalog prices. Default: USD
	BatchStrategy BatchStrategy
	CatalogTTL    time.Duration

	// TLSFingerprint selects the browser ClientHello shown to the store's CDN.
	TLSFingerprint transport.Fingerprint

	// HTTPClient overrides the Chrome-fingerprint client. Used by tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the authoritative cart store backed by a WooCommerce shop.
// Cart IDs are Store API Cart-Tokens.
//
// Store API carts carry no revision number, so snapshot versions are
// assigned locally from a monotonic clock: every response supersedes
// everything this client returned before it.
type Client struct {
	httpClient    *http.Client
	storeURL      string
	batchStrategy BatchStrategy
	catalog       *catalog
	logger        *slog.Logger
	now           func() time.Time

	mu      sync.Mutex
	version uint64
}

var (
	_ backend.Backend = (*Client)(nil)
	_ backend.Applier = (*Client)(nil)
	_ backend.Catalog = (*Client)(nil)
)

// New creates a WooCommerce client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("API credentials are required")
	}

	strategy := cfg.BatchStrategy
	if strategy == "" {
		strategy = BatchStrategyMulti
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// A browser TLS fingerprint avoids JA3-based rate limiting.
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: transport.New(transport.Config{
				DialTimeout: 30 * time.Second,
				Fingerprint: cfg.TLSFingerprint,
			}),
		}
	}

	storeURL := strings.TrimSuffix(cfg.StoreURL, "/")
	return &Client{
		httpClient:    httpClient,
		storeURL:      storeURL,
		batchStrategy: strategy,
		catalog:       newCatalog(httpClient, storeURL, cfg.APIKey, cfg.APISecret, currency, cfg.CatalogTTL),
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Product implements backend.Catalog.
func (c *Client) Product(ctx context.Context, productID string) (*model.Product, error) {
	return c.catalog.Product(ctx, productID)
}

// Fetch implements backend.Backend. Without a cart token there is no cart yet:
// the result is an empty snapshot at version 0 and no request is made.
func (c *Client) Fetch(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	if cartID == "" {
		return &model.CartSnapshot{Items: []model.CartLine{}}, nil
	}
	session, err := c.fetchNonce(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return c.toSnapshot(ctx, session.cart, session.cartToken), nil
}

// Mutate implements backend.Backend.
func (c *Client) Mutate(ctx context.Context, cartID string, m model.Mutation) (*model.CartSnapshot, error) {
	return c.Apply(ctx, cartID, []model.Mutation{m})
}

// Apply implements backend.Applier. Mutations are validated and planned
// against the current cart before anything is sent, so a mutation that breaks
// a cart rule fails the whole list without touching the cart.
func (c *Client) Apply(ctx context.Context, cartID string, ms []model.Mutation) (*model.CartSnapshot, error) {
	session, err := c.fetchNonce(ctx, cartID)
	if err != nil {
		return nil, err
	}

	batch, err := c.plan(ctx, session.cart, ms)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return c.toSnapshot(ctx, session.cart, session.cartToken), nil
	}

	var cart *WooCartResponse
	token := session.cartToken
	switch {
	case len(batch.Requests) == 1:
		var newToken string
		cart, _, newToken, err = c.executeCartOperation(ctx, batch.Requests[0], session.cartToken, session.nonce)
		if token == "" {
			token = newToken
		}
	case c.batchStrategy == BatchStrategySequential:
		cart, token, err = c.executeBatchSequential(ctx, batch, session)
	default:
		cart, token, err = c.executeBatchEndpoint(ctx, batch, session)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("woocommerce cart updated", "operations", len(batch.Requests), "items", len(cart.Items))
	return c.toSnapshot(ctx, cart, token), nil
}

// plan runs ms through the shared cart rules against the current Store API
// cart and returns the Store API operations that realise the result.
func (c *Client) plan(ctx context.Context, cart *WooCartResponse, ms []model.Mutation) (*WooBatchRequest, error) {
	keys := c.itemKeys(ctx, cart)
	lines := make([]backend.Line, len(cart.Items))
	limits := make(map[model.LineKey]WooCartItem, len(cart.Items))
	for i, item := range cart.Items {
		lines[i] = backend.Line{ID: item.Key, ProductID: keys[i].ProductID, VariantID: keys[i].VariantID, Quantity: item.Quantity}
		limits[keys[i]] = item
	}

	rules := backend.Rules{
		Ceiling: func(productID, variantID string) (*int, string, error) {
			if item, ok := limits[model.LineKey{ProductID: productID, VariantID: variantID}]; ok {
				return limitOf(item), item.Name, nil
			}
			p, err := c.catalog.Product(ctx, productID)
			if err != nil {
				return nil, "", err
			}
			return backend.ProductCeiling(func(string) (model.Product, bool) { return *p, true })(productID, variantID)
		},
		HasVariants: func(productID string) bool {
			p, err := c.catalog.Product(ctx, productID)
			return err == nil && p.EnableVariants
		},
	}

	b := NewBatch()
	fresh := make(map[string]bool)
	for _, m := range ms {
		next, err := rules.Apply(lines, m)
		if err != nil {
			return nil, err
		}
		if err := emitOps(b, lines, next, fresh); err != nil {
			return nil, err
		}
		lines = next
	}
	return b.Build(), nil
}

// emitOps appends the operations that turn prev into next. Lines added
// earlier in the same plan have no cart item key yet; growing them is another
// add-item, which the Store API merges into the same item.
func emitOps(b *BatchBuilder, prev, next []backend.Line, fresh map[string]bool) error {
	before := make(map[string]backend.Line, len(prev))
	for _, l := range prev {
		before[l.ID] = l
	}

	for _, l := range next {
		old, existed := before[l.ID]
		delete(before, l.ID)
		switch {
		case !existed:
			id, err := wooID(l)
			if err != nil {
				return err
			}
			b.AddItem(id, l.Quantity)
			fresh[l.ID] = true
		case old.Quantity == l.Quantity:
		case fresh[l.ID]:
			id, err := wooID(l)
			if err != nil {
				return err
			}
			b.AddItem(id, l.Quantity-old.Quantity)
		default:
			b.UpdateItemQuantity(l.ID, l.Quantity)
		}
	}
	for _, l := range prev {
		if _, removed := before[l.ID]; removed {
			b.RemoveItem(l.ID)
		}
	}
	return nil
}

// wooID returns the numeric Store API ID for a line: the variation when one
// is selected, the product otherwise.
func wooID(l backend.Line) (int, error) {
	raw := l.ProductID
	if l.VariantID != "" {
		raw = l.VariantID
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError("product_id", "WooCommerce IDs are numeric")
	}
	return id, nil
}

func (c *Client) itemKeys(ctx context.Context, cart *WooCartResponse) []model.LineKey {
	keys := make([]model.LineKey, len(cart.Items))
	for i, item := range cart.Items {
		keys[i] = c.catalog.lineKey(ctx, item)
	}
	return keys
}

func (c *Client) toSnapshot(ctx context.Context, cart *WooCartResponse, cartToken string) *model.CartSnapshot {
	return CartToSnapshot(cart, cartToken, c.itemKeys(ctx, cart), c.nextVersion(), c.now())
}

// nextVersion returns a version strictly greater than any returned before.
func (c *Client) nextVersion() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := uint64(c.now().UnixNano())
	if v <= c.version {
		v = c.version + 1
	}
	c.version = v
	return v
}

// === Store API plumbing ===

// cartSession holds what a preflight GET /cart returns.
type cartSession struct {
	nonce     string
	cartToken string
	cart      *WooCartResponse
}

// fetchNonce performs a preflight GET /cart to obtain a fresh nonce and the
// current cart. Without a cart token the Store API starts a new session and
// its Cart-Token is adopted.
func (c *Client) fetchNonce(ctx context.Context, cartToken string) (*cartSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.storeURL+storeAPIPath+"/cart", nil)
	if err != nil {
		return nil, fmt.Errorf("creating nonce request: %w", err)
	}
	c.setStoreAPIHeaders(req, cartToken, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading cart response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	var cart WooCartResponse
	if err := json.Unmarshal(body, &cart); err != nil {
		return nil, model.NewUpstreamError("WooCommerce", fmt.Errorf("parsing cart response: %w", err))
	}

	// Keep the token we were given; a different header token would be a
	// fresh session, not this cart.
	token := cartToken
	if token == "" {
		token = resp.Header.Get("Cart-Token")
	}

	return &cartSession{
		nonce:     resp.Header.Get("Nonce"),
		cartToken: token,
		cart:      &cart,
	}, nil
}

// setStoreAPIHeaders sets headers for Store API requests.
// The Store API uses Cart-Token for the session and Nonce for mutation auth;
// it does not use Basic Auth.
func (c *Client) setStoreAPIHeaders(req *http.Request, cartToken, nonce string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	if cartToken != "" {
		req.Header.Set("Cart-Token", cartToken)
	}
	if nonce != "" {
		req.Header.Set("Nonce", nonce)
	}
}

// executeCartOperation executes a single cart operation and returns the cart
// from its response together with the response's nonce and cart token.
func (c *Client) executeCartOperation(ctx context.Context, op WooBatchOperation, cartToken, nonce string) (*WooCartResponse, string, string, error) {
	path := strings.TrimPrefix(op.Path, "/wc/store/v1")

	var bodyReader io.Reader
	if len(op.Body) > 0 {
		bodyReader = bytes.NewReader(op.Body)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, c.storeURL+storeAPIPath+path, bodyReader)
	if err != nil {
		return nil, "", "", fmt.Errorf("creating request: %w", err)
	}
	c.setStoreAPIHeaders(req, cartToken, nonce)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", "", transportError(err)
	}
	defer resp.Body.Close()

	newNonce := resp.Header.Get("Nonce")
	newToken := resp.Header.Get("Cart-Token")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", "", parseErrorResponse(resp.StatusCode, body)
	}

	var cart WooCartResponse
	if err := json.Unmarshal(body, &cart); err != nil {
		return nil, "", "", model.NewUpstreamError("WooCommerce", fmt.Errorf("parsing cart response: %w", err))
	}
	return &cart, newNonce, newToken, nil
}

// executeBatchSequential executes operations one by one, chaining the nonce
// from each response into the next request. Returns the cart from the last
// operation.
func (c *Client) executeBatchSequential(ctx context.Context, batch *WooBatchRequest, session *cartSession) (*WooCartResponse, string, error) {
	currentToken := session.cartToken
	currentNonce := session.nonce

	var lastCart *WooCartResponse
	for i, op := range batch.Requests {
		cart, newNonce, newToken, err := c.executeCartOperation(ctx, op, currentToken, currentNonce)
		if err != nil {
			c.logger.Warn("sequential cart batch stopped", "operation", i, "path", op.Path, "error", err)
			return nil, "", fmt.Errorf("operation %d (%s): %w", i, op.Path, err)
		}
		lastCart = cart

		if newNonce != "" {
			currentNonce = newNonce
		}
		if newToken != "" && currentToken == "" {
			currentToken = newToken
		}
	}
	return lastCart, currentToken, nil
}

// executeBatchEndpoint executes a batch via POST /batch (1 HTTP call).
// The endpoint does not propagate parent request headers to sub-operations,
// so Cart-Token and Nonce are injected into each operation.
func (c *Client) executeBatchEndpoint(ctx context.Context, batch *WooBatchRequest, session *cartSession) (*WooCartResponse, string, error) {
	authHeaders := map[string]string{"Nonce": session.nonce}
	if session.cartToken != "" {
		authHeaders["Cart-Token"] = session.cartToken
	}
	batch.InjectHeaders(authHeaders)

	batchJSON, err := json.Marshal(batch)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.storeURL+storeAPIPath+"/batch", bytes.NewReader(batchJSON))
	if err != nil {
		return nil, "", fmt.Errorf("creating batch request: %w", err)
	}
	c.setStoreAPIHeaders(req, session.cartToken, session.nonce)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading batch response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", parseErrorResponse(resp.StatusCode, body)
	}

	var batchResp WooBatchResponse
	if err := json.Unmarshal(body, &batchResp); err != nil {
		return nil, "", model.NewUpstreamError("WooCommerce", fmt.Errorf("parsing batch response: %w", err))
	}

	var lastCart *WooCartResponse
	token := session.cartToken
	for _, result := range batchResp.Responses {
		if result.Status >= 400 {
			return nil, "", parseErrorResponse(result.Status, result.Body)
		}
		var cart WooCartResponse
		if err := json.Unmarshal(result.Body, &cart); err != nil {
			return nil, "", model.NewUpstreamError("WooCommerce", fmt.Errorf("parsing batch result: %w", err))
		}
		lastCart = &cart
		if token == "" && result.Headers.CartToken != "" {
			token = result.Headers.CartToken
		}
	}
	if lastCart == nil {
		return nil, "", model.NewUpstreamError("WooCommerce", fmt.Errorf("empty batch response"))
	}
	return lastCart, token, nil
}
