package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront-cart/internal/model"
)

// DefaultCatalogTTL is used when the REST API response carries no cache headers.
const DefaultCatalogTTL = time.Minute

// MaxCatalogEntries limits the number of cached documents (LRU eviction).
const MaxCatalogEntries = 1000

// catalog fetches product documents from the REST API v3 and caches them.
// Stock moves, so entries are short-lived; stale entries are revalidated with
// their ETag and served as a fallback when the shop is unreachable.
type catalog struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	currency  string
	ttl       time.Duration
	max       int

	mu         sync.RWMutex
	cache      map[int]*catalogEntry
	accessList []int // LRU tracking: most recent at end
}

type catalogEntry struct {
	product   *model.Product
	parentID  int // set when the ID is a variation
	expiresAt time.Time
	etag      string
}

func newCatalog(client *http.Client, storeURL, apiKey, apiSecret, currency string, ttl time.Duration) *catalog {
	if ttl == 0 {
		ttl = DefaultCatalogTTL
	}
	return &catalog{
		client:     client,
		baseURL:    storeURL + restAPIPath,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		currency:   currency,
		ttl:        ttl,
		max:        MaxCatalogEntries,
		cache:      make(map[int]*catalogEntry),
		accessList: make([]int, 0, MaxCatalogEntries),
	}
}

// Product returns the product with the given ID, expanded with its variants.
// A variation ID resolves to its parent product.
func (c *catalog) Product(ctx context.Context, productID string) (*model.Product, error) {
	id, err := strconv.Atoi(productID)
	if err != nil || id <= 0 {
		return nil, model.NewNotFoundError("product " + productID)
	}
	entry, err := c.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.parentID != 0 {
		if entry, err = c.lookup(ctx, entry.parentID); err != nil {
			return nil, err
		}
	}
	p := *entry.product
	return &p, nil
}

// lineKey maps a Store API cart item onto a (product, variant) pair.
// Variation items need a catalog round trip to learn their parent; when that
// fails the item is keyed by its own ID.
func (c *catalog) lineKey(ctx context.Context, item WooCartItem) model.LineKey {
	id := strconv.Itoa(item.ID)
	if item.Type != "variation" {
		return model.LineKey{ProductID: id}
	}
	entry, err := c.lookup(ctx, item.ID)
	if err != nil || entry.parentID == 0 {
		return model.LineKey{ProductID: id}
	}
	return model.LineKey{ProductID: strconv.Itoa(entry.parentID), VariantID: id}
}

func (c *catalog) lookup(ctx context.Context, id int) (*catalogEntry, error) {
	c.mu.RLock()
	entry, exists := c.cache[id]
	c.mu.RUnlock()

	// Fresh cache hit
	if exists && entry.expiresAt.After(time.Now()) {
		c.recordAccess(id)
		return entry, nil
	}

	fresh, err := c.fetchFromNetwork(ctx, id, entry)
	if err != nil {
		// Serve stale data rather than fail an availability check outright,
		// except for products that no longer exist.
		if exists && !isNotFound(err) {
			return entry, nil
		}
		return nil, err
	}
	return fresh, nil
}

func (c *catalog) fetchFromNetwork(ctx context.Context, id int, stale *catalogEntry) (*catalogEntry, error) {
	req, err := c.newRequest(ctx, fmt.Sprintf("/products/%d", id))
	if err != nil {
		return nil, err
	}
	if stale != nil && stale.etag != "" {
		req.Header.Set("If-None-Match", stale.etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && stale != nil {
		return c.store(id, stale.product, stale.parentID, resp), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading product response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	var doc WooProduct
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing product response: %w", err)
	}
	if doc.Type == "variation" && doc.ParentID != 0 {
		return c.store(id, nil, doc.ParentID, resp), nil
	}

	var variations []WooVariation
	if doc.Type == "variable" {
		if variations, err = c.fetchVariations(ctx, id); err != nil {
			return nil, err
		}
	}
	return c.store(id, ProductFromWoo(&doc, variations, c.currency), 0, resp), nil
}

func (c *catalog) fetchVariations(ctx context.Context, id int) ([]WooVariation, error) {
	req, err := c.newRequest(ctx, fmt.Sprintf("/products/%d/variations?per_page=100", id))
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading variations response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	var variations []WooVariation
	if err := json.Unmarshal(body, &variations); err != nil {
		return nil, fmt.Errorf("parsing variations response: %w", err)
	}
	return variations, nil
}

// newRequest builds a REST API v3 request. Unlike the Store API, the REST API
// authenticates with the consumer key and secret.
func (c *catalog) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating catalog request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func (c *catalog) store(id int, product *model.Product, parentID int, resp *http.Response) *catalogEntry {
	entry := &catalogEntry{
		product:   product,
		parentID:  parentID,
		expiresAt: time.Now().Add(c.parseCacheTTL(resp)),
		etag:      resp.Header.Get("ETag"),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cache[id]; !ok && len(c.cache) >= c.max {
		c.evictOldest()
	}
	c.cache[id] = entry
	c.recordAccessLocked(id)
	return entry
}

// parseCacheTTL extracts TTL from HTTP cache headers.
// Priority: max-age in Cache-Control, then Expires header, then default.
func (c *catalog) parseCacheTTL(resp *http.Response) time.Duration {
	if cc := resp.Header.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "no-store" || directive == "no-cache" {
				return 0
			}
			if strings.HasPrefix(directive, "max-age=") {
				if seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil && seconds >= 0 {
					return time.Duration(seconds) * time.Second
				}
			}
		}
	}

	if expires := resp.Header.Get("Expires"); expires != "" {
		if t, err := http.ParseTime(expires); err == nil {
			if ttl := time.Until(t); ttl > 0 {
				return ttl
			}
		}
	}

	return c.ttl
}

func (c *catalog) recordAccess(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordAccessLocked(id)
}

func (c *catalog) recordAccessLocked(id int) {
	for i, v := range c.accessList {
		if v == id {
			c.accessList = append(c.accessList[:i], c.accessList[i+1:]...)
			break
		}
	}
	c.accessList = append(c.accessList, id)
}

func (c *catalog) evictOldest() {
	if len(c.accessList) == 0 {
		return
	}
	oldest := c.accessList[0]
	c.accessList = c.accessList[1:]
	delete(c.cache, oldest)
}
