package handler

import (
	"context"
	"log/slog"
	"net/http"

	"storefront-cart/internal/availability"
	"storefront-cart/internal/cart"
	"storefront-cart/internal/model"
	"storefront-cart/internal/reconcile"
	"storefront-cart/internal/session"
)

// cartResponse is returned by every cart route.
type cartResponse struct {
	Session            string                   `json:"session"`
	CartID             string                   `json:"cart_id,omitempty"`
	Cart               cart.View                `json:"cart"`
	Controls           map[string]cart.Controls `json:"controls,omitempty"` // by line ID
	GuestEmailRequired bool                     `json:"guest_email_required"`
	Notifications      []cart.Notification      `json:"notifications,omitempty"`
}

// availabilityResponse is returned by the availability route.
type availabilityResponse struct {
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id,omitempty"`
	Kind         string `json:"kind"`
	Remaining    *int   `json:"remaining,omitempty"` // absent when unlimited or no selection
	InCart       int    `json:"in_cart"`
	AddDisabled  bool   `json:"add_disabled"`
	StockMessage string `json:"stock_message,omitempty"`
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"` // default 1
}

type replaceCartRequest struct {
	Lines []reconcile.DesiredLine `json:"lines"`
}

// mergeCartRequest names the guest cart to fold in: another live session,
// or explicit lines.
type mergeCartRequest struct {
	GuestSession string                  `json:"guest_session,omitempty"`
	Lines        []reconcile.DesiredLine `json:"lines,omitempty"`
}

// handleGetCart returns the session's cart, fetched fresh from the store.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, ok := h.resolved(w, r)
	if !ok {
		return
	}

	if _, err := res.Session.Refetch(ctx); err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeCart(ctx, w, res, http.StatusOK)
}

// handleAddItem adds units of a product or variant.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, nil)
		return
	}
	if req.ProductID == "" {
		h.writeError(w, model.NewValidationError("product_id", "required"), nil)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	h.logger.InfoContext(r.Context(), "adding cart item",
		slog.String("product_id", req.ProductID),
		slog.String("variant_id", req.VariantID),
		slog.Int("quantity", req.Quantity),
	)

	h.act(w, r, func(ctx context.Context, res *session.Resolved) (*cart.Action, error) {
		return res.Drawer.Add(ctx, req.ProductID, req.VariantID, req.Quantity)
	})
}

// handleIncrementItem adds one unit to a line.
// POST /cart/items/{id}/increment
func (h *Handler) handleIncrementItem(w http.ResponseWriter, r *http.Request) {
	lineID := r.PathValue("id")
	h.act(w, r, func(ctx context.Context, res *session.Resolved) (*cart.Action, error) {
		return res.Drawer.Increment(ctx, lineID)
	})
}

// handleDecrementItem removes one unit from a line; the last unit removes it.
// POST /cart/items/{id}/decrement
func (h *Handler) handleDecrementItem(w http.ResponseWriter, r *http.Request) {
	lineID := r.PathValue("id")
	h.act(w, r, func(ctx context.Context, res *session.Resolved) (*cart.Action, error) {
		return res.Drawer.Decrement(ctx, lineID)
	})
}

// handleRemoveItem deletes a line.
// DELETE /cart/items/{id}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	lineID := r.PathValue("id")
	h.act(w, r, func(ctx context.Context, res *session.Resolved) (*cart.Action, error) {
		return res.Drawer.Remove(ctx, lineID)
	})
}

// handleReplaceCart moves the cart to a desired line set.
// Full PUT semantics: lines absent from the request are removed.
// PUT /cart
func (h *Handler) handleReplaceCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, ok := h.resolved(w, r)
	if !ok {
		return
	}

	var req replaceCartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, nil)
		return
	}

	h.logger.InfoContext(ctx, "replacing cart", slog.Int("lines", len(req.Lines)))

	if _, err := res.Session.Replace(ctx, req.Lines); err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeCart(ctx, w, res, http.StatusOK)
}

// handleMergeCart folds a guest cart into the session's cart.
// POST /cart/merge
func (h *Handler) handleMergeCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, ok := h.resolved(w, r)
	if !ok {
		return
	}

	var req mergeCartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, nil)
		return
	}

	guest := guestSnapshot(req.Lines)
	if req.GuestSession != "" {
		if req.GuestSession == res.Token {
			h.writeError(w, model.NewValidationError("guest_session", "cannot merge a cart into itself"), nil)
			return
		}
		other, ok := h.sessions.Get(req.GuestSession)
		if !ok {
			h.writeError(w, model.NewNotFoundError("guest session"), nil)
			return
		}
		snap, err := other.Refetch(ctx)
		if err != nil {
			h.writeError(w, err, nil)
			return
		}
		guest = snap
	}

	h.logger.InfoContext(ctx, "merging guest cart", slog.Int("guest_lines", len(guest.Items)))

	if _, err := res.Session.MergeFrom(ctx, guest); err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeCart(ctx, w, res, http.StatusOK)
}

// handleAvailability reports how many more units of a selection can be added.
// GET /products/{id}/availability?variant=
func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, ok := h.resolved(w, r)
	if !ok {
		return
	}
	if err := ensureLoaded(ctx, res); err != nil {
		h.writeError(w, err, nil)
		return
	}

	productID := r.PathValue("id")
	variantID := r.URL.Query().Get("variant")
	controls, err := res.Drawer.ProductControls(ctx, productID, variantID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}

	w.Header().Set(session.HeaderName, session.FormatHeader(res.Token, res.Session.CartID()))
	h.writeJSON(w, http.StatusOK, toAvailabilityResponse(productID, variantID, controls))
}

// act runs one optimistic drawer action and waits for it to reconcile.
// Blocked actions (pending line, no stock, no selection) fail before anything
// is enqueued and carry no notification.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, do func(context.Context, *session.Resolved) (*cart.Action, error)) {
	ctx := r.Context()
	res, ok := h.resolved(w, r)
	if !ok {
		return
	}
	if err := ensureLoaded(ctx, res); err != nil {
		h.writeError(w, err, nil)
		return
	}

	action, err := do(ctx, res)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if _, err := action.Wait(ctx); err != nil {
		h.logger.InfoContext(ctx, "cart action failed",
			slog.String("action", action.ID),
			slog.String("kind", string(action.Kind)),
			slog.String("error", err.Error()),
		)
		w.Header().Set(session.HeaderName, session.FormatHeader(res.Token, res.Session.CartID()))
		h.writeError(w, err, res.Notices.Drain())
		return
	}
	h.writeCart(ctx, w, res, http.StatusOK)
}

// resolved returns the request's session, writing an error when the session
// middleware did not run.
func (h *Handler) resolved(w http.ResponseWriter, r *http.Request) (*session.Resolved, bool) {
	res := session.FromContext(r.Context())
	if res == nil {
		h.logger.Error("cart route reached without a session", slog.String("path", r.URL.Path))
		h.writeError(w, model.NewInternalError(nil), nil)
		return nil, false
	}
	return res, true
}

// writeCart renders the drawer view, per-line controls and pending
// notifications, and echoes the session handle.
func (h *Handler) writeCart(ctx context.Context, w http.ResponseWriter, res *session.Resolved, status int) {
	body := buildCartResponse(ctx, res)
	w.Header().Set(session.HeaderName, session.FormatHeader(res.Token, body.CartID))
	h.writeJSON(w, status, body)
}

func buildCartResponse(ctx context.Context, res *session.Resolved) cartResponse {
	view := res.Drawer.View()
	body := cartResponse{
		Session:       res.Token,
		CartID:        res.Session.CartID(),
		Cart:          view,
		Notifications: res.Notices.Drain(),
	}
	for _, l := range view.Lines {
		c, err := res.Drawer.LineControls(ctx, l.ID)
		if err != nil {
			continue // predicted lines have no controls yet
		}
		if body.Controls == nil {
			body.Controls = make(map[string]cart.Controls, len(view.Lines))
		}
		body.Controls[l.ID] = c
	}
	if guest, err := res.Session.RequiresGuestEmail(ctx); err == nil {
		body.GuestEmailRequired = guest
	}
	return body
}

func ensureLoaded(ctx context.Context, res *session.Resolved) error {
	if res.Session.Snapshot() != nil {
		return nil
	}
	_, err := res.Session.Load(ctx)
	return err
}

func toAvailabilityResponse(productID, variantID string, c cart.Controls) availabilityResponse {
	out := availabilityResponse{
		ProductID:    productID,
		VariantID:    variantID,
		Kind:         c.Availability.Kind.String(),
		InCart:       c.Quantity,
		AddDisabled:  c.AddDisabled,
		StockMessage: c.StockMessage,
	}
	if c.Availability.Kind == availability.Limited {
		remaining := c.Availability.Remaining
		out.Remaining = &remaining
	}
	return out
}

// guestSnapshot builds a catalog-free snapshot from explicit lines.
func guestSnapshot(lines []reconcile.DesiredLine) *model.CartSnapshot {
	snap := &model.CartSnapshot{Items: make([]model.CartLine, 0, len(lines))}
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity < 1 {
			continue
		}
		line := model.CartLine{Product: model.RefTo[model.Product](l.ProductID), Quantity: l.Quantity}
		if l.VariantID != "" {
			v := model.RefTo[model.Variant](l.VariantID)
			line.Variant = &v
		}
		snap.Items = append(snap.Items, line)
	}
	return snap
}
