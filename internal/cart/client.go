package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storefront-cart/internal/backend"
	"storefront-cart/internal/model"
)

// DefaultTimeout bounds a single call to the cart store.
const DefaultTimeout = 10 * time.Second

var errNilSnapshot = errors.New("store returned no snapshot")

// Client wraps the cart store behind a uniform call shape with a bounded
// timeout. It issues no retries. Sessions call it only from their queue.
type Client struct {
	store   backend.Backend
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	cartID string
}

// NewClient creates a client for one cart. An empty cartID lets the store
// issue one on the first mutation.
func NewClient(store backend.Backend, cartID string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{store: store, cartID: cartID, timeout: timeout, logger: logger}
}

// CartID returns the cart identifier, as last issued by the store.
func (c *Client) CartID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cartID
}

// Fetch returns the current authoritative snapshot.
func (c *Client) Fetch(ctx context.Context) (*model.CartSnapshot, error) {
	return c.call(ctx, "fetch cart", func(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
		return c.store.Fetch(ctx, cartID)
	})
}

// Add adds qty units of a (product, variant) pair, merging into an existing line.
func (c *Client) Add(ctx context.Context, productID, variantID string, qty int) (*model.CartSnapshot, error) {
	return c.Mutate(ctx, model.Mutation{Kind: model.MutationAdd, ProductID: productID, VariantID: variantID, Quantity: qty})
}

// Increment raises a line's quantity by one.
func (c *Client) Increment(ctx context.Context, lineID string) (*model.CartSnapshot, error) {
	return c.Mutate(ctx, model.Mutation{Kind: model.MutationIncrement, LineID: lineID})
}

// Decrement lowers a line's quantity by one, removing it at zero.
func (c *Client) Decrement(ctx context.Context, lineID string) (*model.CartSnapshot, error) {
	return c.Mutate(ctx, model.Mutation{Kind: model.MutationDecrement, LineID: lineID})
}

// Remove deletes a line.
func (c *Client) Remove(ctx context.Context, lineID string) (*model.CartSnapshot, error) {
	return c.Mutate(ctx, model.Mutation{Kind: model.MutationRemove, LineID: lineID})
}

// Mutate sends one mutation to the store.
func (c *Client) Mutate(ctx context.Context, m model.Mutation) (*model.CartSnapshot, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return c.call(ctx, string(m.Kind)+" cart item", func(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
		return c.store.Mutate(ctx, cartID, m)
	})
}

// Apply sends an ordered batch, atomically when the store supports it.
func (c *Client) Apply(ctx context.Context, ms []model.Mutation) (*model.CartSnapshot, error) {
	return c.call(ctx, "update cart", func(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
		return backend.ApplyBatch(ctx, c.store, cartID, ms)
	})
}

// abandonGrace is how long a timed-out call may take to unwind.
const abandonGrace = 100 * time.Millisecond

type callResult struct {
	snap *model.CartSnapshot
	err  error
}

// call runs fn under the client timeout. The deadline is enforced here even
// if the store ignores its context, so a hung request cannot stall the queue.
// On timeout fn gets abandonGrace to observe ctx and return; after that it is
// abandoned, not stopped. Backends must return once ctx is done, or the
// abandoned call can overlap the queue's next operation and break its
// one-call-at-a-time guarantee.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context, cartID string) (*model.CartSnapshot, error)) (*model.CartSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cartID := c.CartID()
	start := time.Now()

	done := make(chan callResult, 1)
	go func() {
		snap, err := fn(ctx, cartID)
		done <- callResult{snap: snap, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		select {
		case <-done:
		case <-time.After(abandonGrace):
			c.logger.Warn("cart store call ignored its deadline", "op", op, "cart_id", cartID)
		}
		c.logger.Warn("cart store call timed out", "op", op, "cart_id", cartID, "timeout", c.timeout)
		return nil, model.NewTimeoutError(op)
	}

	if res.err != nil {
		err := model.NormalizeTransportError(op, res.err)
		c.logger.Debug("cart store call failed", "op", op, "cart_id", cartID, "error", err, "duration", time.Since(start))
		return nil, err
	}
	if res.snap == nil {
		return nil, model.NewUpstreamError("cart store", errNilSnapshot)
	}

	if res.snap.ID != "" && res.snap.ID != cartID {
		c.mu.Lock()
		c.cartID = res.snap.ID
		c.mu.Unlock()
	}
	c.logger.Debug("cart store call", "op", op, "cart_id", res.snap.ID, "version", res.snap.Version, "duration", time.Since(start))
	return res.snap, nil
}
