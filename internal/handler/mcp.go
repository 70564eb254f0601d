// MCP transport for the checkout operations, built on the official MCP Go SDK.
// MCP clients have no cookies, so session identifiers travel in every tool's
// input and come back in its output.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/session"
	"storefront-checkout/internal/steps"
)

// === MCP Tool Input Types ===

// GetCartInput is the input schema for get_cart.
type GetCartInput struct {
	Session *session.State `json:"session,omitempty" jsonschema:"session identifiers from a previous call"`
	Locale  string         `json:"locale,omitempty" jsonschema:"two-letter country code used to pick the region"`
}

// AddLineItemInput is the input schema for add_line_item.
type AddLineItemInput struct {
	Session   *session.State `json:"session,omitempty" jsonschema:"session identifiers from a previous call"`
	Locale    string         `json:"locale,omitempty" jsonschema:"two-letter country code used to pick the region"`
	VariantID string         `json:"variant_id" jsonschema:"product variant to add"`
	Quantity  int            `json:"quantity" jsonschema:"number of units, at least 1"`
}

// SetAddressesInput is the input schema for set_addresses.
type SetAddressesInput struct {
	Session         *session.State `json:"session,omitempty" jsonschema:"session identifiers from a previous call"`
	Email           string         `json:"email" jsonschema:"customer email"`
	ShippingAddress *model.Address `json:"shipping_address" jsonschema:"shipping address"`
	BillingAddress  *model.Address `json:"billing_address,omitempty" jsonschema:"billing address, defaults to the shipping address"`
	SameAsShipping  bool           `json:"same_as_shipping,omitempty" jsonschema:"bill to the shipping address"`
}

// SessionInput is the input schema for tools that only need the session.
type SessionInput struct {
	Session *session.State `json:"session,omitempty" jsonschema:"session identifiers from a previous call"`
}

// SetShippingMethodInput is the input schema for set_shipping_method.
type SetShippingMethodInput struct {
	Session  *session.State `json:"session,omitempty" jsonschema:"session identifiers from a previous call"`
	OptionID string         `json:"option_id" jsonschema:"shipping option from list_shipping_options"`
}

// SelectPaymentMethodInput is the input schema for select_payment_method.
type SelectPaymentMethodInput struct {
	Session    *session.State `json:"session,omitempty" jsonschema:"session identifiers from a previous call"`
	ProviderID string         `json:"provider_id" jsonschema:"payment method, e.g. bank-transfer"`
}

// CheckoutStepsInput is the input schema for checkout_steps.
type CheckoutStepsInput struct {
	Session *session.State `json:"session,omitempty" jsonschema:"session identifiers from a previous call"`
	Step    string         `json:"step,omitempty" jsonschema:"active step: address, delivery, payment, review or confirmed"`
}

// === MCP Tool Output Types ===

// CartOutput carries a cart and the session to send on the next call.
type CartOutput struct {
	Session *session.State `json:"session"`
	Cart    *model.Cart    `json:"cart"`
}

// ShippingOptionsOutput lists shipping options.
type ShippingOptionsOutput struct {
	Session         *session.State         `json:"session"`
	ShippingOptions []model.ShippingOption `json:"shipping_options"`
}

// StepsOutput carries the derived checkout step state.
type StepsOutput struct {
	Session  *session.State `json:"session"`
	Progress steps.Progress `json:"progress"`
	Redirect *steps.Step    `json:"redirect,omitempty"`
}

// OrderOutput carries the result of place_order.
type OrderOutput struct {
	Session *session.State    `json:"session"`
	Outcome *checkout.Outcome `json:"outcome"`
}

// NewMCPServer creates an MCP server with checkout tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront-checkout",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront checkout. Start with get_cart or add_line_item, then " +
				"set_addresses, set_shipping_method, select_payment_method and place_order. " +
				"Pass the returned session on every call.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the session's cart, creating one for the locale's region if needed.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_line_item",
		Description: "Add a product variant to the cart.",
	}, h.mcpAddLineItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_addresses",
		Description: "Set the customer email, shipping address and billing address.",
	}, h.mcpSetAddresses)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_shipping_options",
		Description: "List shipping options available for the cart.",
	}, h.mcpListShippingOptions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_shipping_method",
		Description: "Apply a shipping option to the cart.",
	}, h.mcpSetShippingMethod)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_payment_method",
		Description: "Choose how the customer pays.",
	}, h.mcpSelectPaymentMethod)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "checkout_steps",
		Description: "Report which checkout steps are complete and reachable.",
	}, h.mcpCheckoutSteps)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "place_order",
		Description: "Place the order for the session's cart.",
	}, h.mcpPlaceOrder)

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

// toolSession returns the caller's session, or a fresh one.
func toolSession(s *session.State) *session.State {
	if s == nil {
		return session.NewState("", "")
	}
	return session.NewState(s.Cart, s.Cache)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(ctx context.Context, req *mcp.CallToolRequest, input GetCartInput) (*mcp.CallToolResult, any, error) {
	sess := toolSession(input.Session)
	cart, err := h.checkout.GetOrCreateCart(ctx, sess, input.Locale)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, CartOutput{Session: sess, Cart: cart}, nil
}

func (h *Handler) mcpAddLineItem(ctx context.Context, req *mcp.CallToolRequest, input AddLineItemInput) (*mcp.CallToolResult, any, error) {
	sess := toolSession(input.Session)
	cart, err := h.checkout.AddLineItem(ctx, sess, input.Locale, input.VariantID, input.Quantity)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, CartOutput{Session: sess, Cart: cart}, nil
}

func (h *Handler) mcpSetAddresses(ctx context.Context, req *mcp.CallToolRequest, input SetAddressesInput) (*mcp.CallToolResult, any, error) {
	sess := toolSession(input.Session)
	cart, err := h.checkout.SetAddresses(ctx, sess, checkout.AddressForm{
		Email:           input.Email,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		SameAsShipping:  input.SameAsShipping,
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, CartOutput{Session: sess, Cart: cart}, nil
}

func (h *Handler) mcpListShippingOptions(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	sess := toolSession(input.Session)
	options, err := h.checkout.ListShippingOptions(ctx, sess)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	if options == nil {
		options = []model.ShippingOption{}
	}
	return nil, ShippingOptionsOutput{Session: sess, ShippingOptions: options}, nil
}

func (h *Handler) mcpSetShippingMethod(ctx context.Context, req *mcp.CallToolRequest, input SetShippingMethodInput) (*mcp.CallToolResult, any, error) {
	sess := toolSession(input.Session)
	cart, err := h.checkout.SetShippingMethod(ctx, sess, sess.CartID(), input.OptionID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, CartOutput{Session: sess, Cart: cart}, nil
}

func (h *Handler) mcpSelectPaymentMethod(ctx context.Context, req *mcp.CallToolRequest, input SelectPaymentMethodInput) (*mcp.CallToolResult, any, error) {
	sess := toolSession(input.Session)
	cart, err := h.checkout.SelectPaymentMethod(ctx, sess, input.ProviderID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, CartOutput{Session: sess, Cart: cart}, nil
}

func (h *Handler) mcpCheckoutSteps(ctx context.Context, req *mcp.CallToolRequest, input CheckoutStepsInput) (*mcp.CallToolResult, any, error) {
	sess := toolSession(input.Session)
	resp, err := h.progress(ctx, sess, input.Step)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, StepsOutput{Session: sess, Progress: resp.Progress, Redirect: resp.Redirect}, nil
}

func (h *Handler) mcpPlaceOrder(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, any, error) {
	sess := toolSession(input.Session)
	outcome, err := h.checkout.PlaceOrder(ctx, sess, "")
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, OrderOutput{Session: sess, Outcome: outcome}, nil
}

// mcpError converts checkout errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
