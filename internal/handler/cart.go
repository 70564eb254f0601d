package handler

import (
	"context"
	"log/slog"
	"net/http"

	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/session"
	"storefront-checkout/internal/steps"
)

type addLineItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type updateLineItemRequest struct {
	Quantity int `json:"quantity"`
}

type promotionsRequest struct {
	// Codes is loosely typed; non-string members are ignored.
	Codes []any `json:"promo_codes"`
}

type shippingMethodRequest struct {
	CartID   string `json:"cart_id,omitempty"`
	OptionID string `json:"option_id"`
}

type paymentRequest struct {
	ProviderID string `json:"provider_id"`
}

type placeOrderRequest struct {
	CartID string `json:"cart_id,omitempty"`
}

type shippingOptionsResponse struct {
	ShippingOptions []model.ShippingOption `json:"shipping_options"`
}

// stepsResponse is the derived step state. Redirect is set when the
// requested step is out of reach and names the step to show instead.
type stepsResponse struct {
	steps.Progress
	Redirect *steps.Step `json:"redirect,omitempty"`
}

// handleGetCart returns the session's cart, creating it for the country.
// GET /store/{country}/cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)

	cart, err := h.checkout.GetOrCreateCart(r.Context(), sess, r.PathValue("country"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// handleAddLineItem adds a variant to the cart.
// POST /store/{country}/cart/line-items
func (h *Handler) handleAddLineItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.sessionFor(w, r)

	var req addLineItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding line item",
		slog.String("variant_id", req.VariantID),
		slog.Int("quantity", req.Quantity),
		slog.Bool("has_cart", sess.CartID() != ""),
	)

	cart, err := h.checkout.AddLineItem(ctx, sess, r.PathValue("country"), req.VariantID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// handleUpdateLineItem changes a line item's quantity.
// POST /store/cart/line-items/{line}
func (h *Handler) handleUpdateLineItem(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)

	var req updateLineItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	cart, err := h.checkout.UpdateLineItem(r.Context(), sess, r.PathValue("line"), req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// handleRemoveLineItem deletes a line item.
// DELETE /store/cart/line-items/{line}
func (h *Handler) handleRemoveLineItem(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)

	cart, err := h.checkout.RemoveLineItem(r.Context(), sess, r.PathValue("line"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// handleApplyPromotions replaces the cart's promotion codes.
// POST /store/cart/promotions
func (h *Handler) handleApplyPromotions(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)

	var req promotionsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	cart, err := h.checkout.ApplyPromotionCodes(r.Context(), sess, checkout.PromotionCodes(req.Codes))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// handleClearCart forgets the session's cart.
// DELETE /store/cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	h.checkout.ClearCart(h.sessionFor(w, r))
	w.WriteHeader(http.StatusNoContent)
}

// handleSetAddresses submits the address step.
// POST /store/cart/addresses
func (h *Handler) handleSetAddresses(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)

	var form checkout.AddressForm
	if err := decodeJSON(r, &form); err != nil {
		h.writeError(w, err)
		return
	}

	cart, err := h.checkout.SetAddresses(r.Context(), sess, form)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// handleListShippingOptions lists shipping options for the cart.
// GET /store/cart/shipping-options
func (h *Handler) handleListShippingOptions(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)

	options, err := h.checkout.ListShippingOptions(r.Context(), sess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if options == nil {
		options = []model.ShippingOption{}
	}

	h.writeJSON(w, http.StatusOK, shippingOptionsResponse{ShippingOptions: options})
}

// handleSetShippingMethod applies a shipping option. cart_id defaults to
// the session's cart.
// POST /store/cart/shipping-methods
func (h *Handler) handleSetShippingMethod(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)

	var req shippingMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.CartID == "" {
		req.CartID = sess.CartID()
	}

	cart, err := h.checkout.SetShippingMethod(r.Context(), sess, req.CartID, req.OptionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// handleSelectPayment records the shopper's payment method.
// POST /store/cart/payment
func (h *Handler) handleSelectPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.sessionFor(w, r)

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "selecting payment method",
		slog.String("cart_id", sess.CartID()),
		slog.String("provider_id", req.ProviderID),
	)

	cart, err := h.checkout.SelectPaymentMethod(ctx, sess, req.ProviderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

// handleSteps returns the checkout step state for ?step=.
// GET /store/cart/steps
func (h *Handler) handleSteps(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)

	resp, err := h.progress(r.Context(), sess, r.URL.Query().Get("step"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// progress evaluates the steps for the session's cart with the named step
// active. A session without a readable cart has no complete steps.
func (h *Handler) progress(ctx context.Context, sess session.Session, name string) (*stepsResponse, error) {
	current, err := steps.Parse(name)
	if err != nil {
		return nil, err
	}

	var cart *model.Cart
	if sess.CartID() != "" {
		cart, err = h.checkout.RetrieveCart(ctx, sess)
		if err != nil {
			if model.KindOf(err) != model.KindNotFound {
				return nil, err
			}
			cart = nil
		}
	}

	p := steps.Evaluate(cart, current)
	resp := &stepsResponse{Progress: p}
	if blocker, blocked := p.Blocker(); blocked {
		resp.Redirect = &blocker
	}
	return resp, nil
}

// handlePlaceOrder completes the cart.
// POST /store/cart/complete
func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.sessionFor(w, r)

	var req placeOrderRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "placing order",
		slog.String("cart_id", sess.CartID()),
		slog.Bool("explicit_cart", req.CartID != ""),
	)

	outcome, err := h.checkout.PlaceOrder(ctx, sess, req.CartID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, outcome)
}

// handleGetOrder returns a placed order for the confirmation page.
// GET /orders/{id}
func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)

	order, err := h.checkout.RetrieveOrder(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}
