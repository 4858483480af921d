// MCP transport handler for the cart session service using the official MCP Go SDK.
// Exposes the cart operations as MCP tools. Tool calls name their session
// explicitly instead of sending the Cart-Session header.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront-cart/internal/cart"
	"storefront-cart/internal/model"
	"storefront-cart/internal/session"
)

// === MCP Tool Input/Output Types ===
// Every input carries the session token; an empty token starts a new session
// and the output reports the token to use from then on.

// SessionInput identifies the cart session of a tool call.
type SessionInput struct {
	Session string `json:"session,omitempty" jsonschema:"cart session token from a previous call; empty starts a new session"`
	CartID  string `json:"cart_id,omitempty" jsonschema:"store cart ID to reattach when the session has expired"`
}

// ViewCartInput is the input schema for view_cart tool.
type ViewCartInput struct {
	SessionInput
}

// AddToCartInput is the input schema for add_to_cart tool.
type AddToCartInput struct {
	SessionInput
	ProductID string `json:"product_id" jsonschema:"product ID"`
	VariantID string `json:"variant_id,omitempty" jsonschema:"variant ID, required for products with variants"`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"units to add, default 1"`
}

// LineInput is the input schema for the per-line tools.
type LineInput struct {
	SessionInput
	LineID string `json:"line_id" jsonschema:"cart line ID"`
}

// AvailabilityInput is the input schema for check_availability tool.
type AvailabilityInput struct {
	SessionInput
	ProductID string `json:"product_id" jsonschema:"product ID"`
	VariantID string `json:"variant_id,omitempty" jsonschema:"selected variant ID"`
}

// CartOutput is returned by every cart tool.
type CartOutput struct {
	Session            string              `json:"session"`
	CartID             string              `json:"cart_id,omitempty"`
	Lines              []LineOutput        `json:"lines"`
	TotalQuantity      int                 `json:"total_quantity"`
	Subtotal           model.Money         `json:"subtotal"`
	Version            uint64              `json:"version"`
	Pending            int                 `json:"pending"`
	GuestEmailRequired bool                `json:"guest_email_required"`
	Notifications      []cart.Notification `json:"notifications,omitempty"`
}

// LineOutput is one cart line as reported to MCP clients.
type LineOutput struct {
	ID        string      `json:"id"`
	ProductID string      `json:"product_id"`
	VariantID string      `json:"variant_id,omitempty"`
	Title     string      `json:"title"`
	Quantity  int         `json:"quantity"`
	UnitPrice model.Money `json:"unit_price"`
}

// AvailabilityOutput is returned by check_availability.
type AvailabilityOutput struct {
	Session      string `json:"session"`
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id,omitempty"`
	Kind         string `json:"kind"`
	Remaining    *int   `json:"remaining,omitempty"`
	InCart       int    `json:"in_cart"`
	AddDisabled  bool   `json:"add_disabled"`
	StockMessage string `json:"stock_message,omitempty"`
}

// NewMCPServer creates an MCP server with cart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront-cart",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart. Use these tools to view a shopper's cart, add products, " +
				"change line quantities and check stock. Pass the session token from each result to the next call.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_cart",
		Description: "Get the current cart of a session.",
	}, h.mcpViewCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add units of a product (and variant) to the cart. Quantities above remaining stock are reduced to what is available.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "increment_item",
		Description: "Add one unit to a cart line. Fails when no more stock is available.",
	}, h.mcpIncrementItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "decrement_item",
		Description: "Remove one unit from a cart line. Removing the last unit removes the line.",
	}, h.mcpDecrementItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_item",
		Description: "Remove a cart line.",
	}, h.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_availability",
		Description: "Report how many more units of a product (and variant) can be added to the cart.",
	}, h.mcpCheckAvailability)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpViewCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCartInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	res, err := h.mcpSession(input.SessionInput)
	if err != nil {
		return nil, nil, err
	}
	if _, err := res.Session.Refetch(ctx); err != nil {
		return nil, nil, h.mcpError(err, nil)
	}
	return nil, cartOutput(ctx, res), nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	return h.mcpAct(ctx, input.SessionInput, func(res *session.Resolved) (*cart.Action, error) {
		return res.Drawer.Add(ctx, input.ProductID, input.VariantID, qty)
	})
}

func (h *Handler) mcpIncrementItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LineInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if input.LineID == "" {
		return nil, nil, fmt.Errorf("line_id is required")
	}
	return h.mcpAct(ctx, input.SessionInput, func(res *session.Resolved) (*cart.Action, error) {
		return res.Drawer.Increment(ctx, input.LineID)
	})
}

func (h *Handler) mcpDecrementItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LineInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if input.LineID == "" {
		return nil, nil, fmt.Errorf("line_id is required")
	}
	return h.mcpAct(ctx, input.SessionInput, func(res *session.Resolved) (*cart.Action, error) {
		return res.Drawer.Decrement(ctx, input.LineID)
	})
}

func (h *Handler) mcpRemoveItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LineInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if input.LineID == "" {
		return nil, nil, fmt.Errorf("line_id is required")
	}
	return h.mcpAct(ctx, input.SessionInput, func(res *session.Resolved) (*cart.Action, error) {
		return res.Drawer.Remove(ctx, input.LineID)
	})
}

func (h *Handler) mcpCheckAvailability(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AvailabilityInput,
) (*mcp.CallToolResult, *AvailabilityOutput, error) {
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	res, err := h.mcpSession(input.SessionInput)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureLoaded(ctx, res); err != nil {
		return nil, nil, h.mcpError(err, nil)
	}

	controls, err := res.Drawer.ProductControls(ctx, input.ProductID, input.VariantID)
	if err != nil {
		return nil, nil, h.mcpError(err, nil)
	}
	a := toAvailabilityResponse(input.ProductID, input.VariantID, controls)
	return nil, &AvailabilityOutput{
		Session:      res.Token,
		ProductID:    a.ProductID,
		VariantID:    a.VariantID,
		Kind:         a.Kind,
		Remaining:    a.Remaining,
		InCart:       a.InCart,
		AddDisabled:  a.AddDisabled,
		StockMessage: a.StockMessage,
	}, nil
}

// mcpAct runs one drawer action for a tool call and waits for it to reconcile.
func (h *Handler) mcpAct(ctx context.Context, in SessionInput, do func(*session.Resolved) (*cart.Action, error)) (*mcp.CallToolResult, *CartOutput, error) {
	res, err := h.mcpSession(in)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureLoaded(ctx, res); err != nil {
		return nil, nil, h.mcpError(err, nil)
	}

	action, err := do(res)
	if err != nil {
		return nil, nil, h.mcpError(err, nil)
	}
	if _, err := action.Wait(ctx); err != nil {
		return nil, nil, h.mcpError(err, res.Notices.Drain())
	}
	return nil, cartOutput(ctx, res), nil
}

// mcpSession resolves the session named by a tool call.
func (h *Handler) mcpSession(in SessionInput) (*session.Resolved, error) {
	res, err := h.sessions.Resolve(session.Handle{Token: in.Session, CartID: in.CartID})
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			return nil, fmt.Errorf("%s: cart sessions are unavailable", session.CodeSessionsExceeded)
		}
		return nil, h.mcpError(err, nil)
	}
	return res, nil
}

// mcpError converts cart errors to MCP-friendly errors. The shopper-facing
// notification, when there is one, replaces the raw message.
func (h *Handler) mcpError(err error, notes []cart.Notification) error {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = h.toAPIError(err)
	}
	msg := apiErr.Message
	for _, n := range notes {
		if n.Level == cart.LevelError {
			msg = n.Message
		}
	}
	return fmt.Errorf("%s: %s", apiErr.Code, msg)
}

func cartOutput(ctx context.Context, res *session.Resolved) *CartOutput {
	body := buildCartResponse(ctx, res)
	out := &CartOutput{
		Session:            body.Session,
		CartID:             body.CartID,
		Lines:              make([]LineOutput, 0, len(body.Cart.Lines)),
		TotalQuantity:      body.Cart.TotalQuantity,
		Subtotal:           body.Cart.Subtotal,
		Version:            body.Cart.Version,
		Pending:            body.Cart.Pending,
		GuestEmailRequired: body.GuestEmailRequired,
		Notifications:      body.Notifications,
	}
	for _, l := range body.Cart.Lines {
		key := l.Key()
		out.Lines = append(out.Lines, LineOutput{
			ID:        l.ID,
			ProductID: key.ProductID,
			VariantID: key.VariantID,
			Title:     l.Title(),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return out
}
