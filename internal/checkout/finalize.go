package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/cache"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/session"
)

// Error codes for payment failures the shopper has to act on.
const (
	CodeReselectPayment = "PAYMENT_RESELECT_REQUIRED"
	CodeManualSupport   = "MANUAL_SUPPORT_REQUIRED"
)

// OutcomeKind discriminates the result of PlaceOrder.
type OutcomeKind string

const (
	// OutcomeOK means the order was placed; Order is set.
	OutcomeOK OutcomeKind = "ok"
	// OutcomeRedirect means the order was placed and the shopper should be
	// sent to To.
	OutcomeRedirect OutcomeKind = "redirect"
	// OutcomeError means the backend declined the cart; Message explains why.
	OutcomeError OutcomeKind = "error"
)

// Outcome is the result of a successful order submission. Declines are an
// Outcome, not an error: the call itself worked.
type Outcome struct {
	Kind    OutcomeKind  `json:"kind"`
	To      string       `json:"to,omitempty"`
	Message string       `json:"message,omitempty"`
	Order   *model.Order `json:"order,omitempty"`
}

// PlaceOrder completes the cart. cartID defaults to the session's cart; the
// session forgets its cart only when that is the cart that was placed.
//
// When completion fails because the backend never initiated the payment
// collection, emulated providers get one repair (a technical-provider
// collection) and one retry; anything else is asked to reselect payment.
func (s *Service) PlaceOrder(ctx context.Context, sess session.Session, cartID string) (*Outcome, error) {
	if cartID == "" {
		cartID = sess.CartID()
	}
	if cartID == "" {
		return nil, model.NewMissingFieldError("cart_id")
	}

	unlock := s.locks.lock(cartID)
	defer unlock()

	ctx = authed(ctx, sess)
	log := s.logger.With(slog.String("cart_id", cartID))

	// Finalization reads past the cache; a stale cart here would skip the
	// checks below.
	cart, err := s.backend.RetrieveCart(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("loading cart: %w", err)
	}
	if err := checkReady(cart); err != nil {
		return nil, err
	}

	provider := cart.LogicalProvider()
	emulated := s.IsEmulated(provider)

	if emulated && cart.PaymentCollection == nil {
		_, err := s.backend.UpdateCart(ctx, cartID, &backend.UpdateCartRequest{
			Metadata: cart.MergedMetadata(map[string]any{
				model.MetaPaymentProvider: provider,
				model.MetaPaymentStatus:   model.PaymentStatusPending,
			}),
		})
		if err != nil {
			return nil, submissionError(err)
		}
		s.invalidate(sess, cache.Carts)
	}

	completion, err := s.backend.CompleteCart(ctx, cartID)
	if err != nil {
		if model.KindOf(err) != model.KindPaymentNotInitiated {
			return nil, submissionError(err)
		}
		if !emulated {
			log.Warn("payment collection missing at completion", slog.String("provider", provider))
			return nil, model.NewPaymentError(CodeReselectPayment,
				"payment could not be initialized, please select a payment method again")
		}

		log.Warn("payment collection missing at completion, repairing", slog.String("provider", provider))
		if _, err := s.emulateCollection(ctx, sess, cart, provider); err != nil {
			return nil, manualSupportError(err)
		}
		completion, err = s.backend.CompleteCart(ctx, cartID)
		if err != nil {
			log.Error("completion failed after repair", slog.Any("error", err))
			return nil, manualSupportError(err)
		}
	}

	return s.finish(sess, cartID, completion), nil
}

// finish applies post-completion side effects and builds the Outcome.
func (s *Service) finish(sess session.Session, cartID string, completion *model.Completion) *Outcome {
	if completion.Type == model.CompletionCart {
		s.invalidate(sess, cache.Carts)
		msg := "your order could not be completed"
		if completion.Error != nil && completion.Error.Message != "" {
			msg = completion.Error.Message
		}
		return &Outcome{Kind: OutcomeError, Message: msg}
	}

	order := completion.Order
	s.invalidate(sess, cache.Orders, cache.Carts, cache.Fulfillment, cache.Payment)
	if sess.CartID() == cartID {
		sess.ClearCartID()
	}
	s.logger.Info("order placed",
		slog.String("order_id", order.ID),
		slog.Int("display_id", order.DisplayID),
	)

	country := order.ShippingCountry()
	if country == "" {
		return &Outcome{Kind: OutcomeOK, Order: order}
	}
	return &Outcome{
		Kind:  OutcomeRedirect,
		To:    fmt.Sprintf("/%s/order/%s/confirmed", country, order.ID),
		Order: order,
	}
}

// checkReady verifies the cart can be submitted.
func checkReady(cart *model.Cart) error {
	if !cart.HasShippingAddress() {
		return model.NewValidationError("shipping_address", "a shipping address is required")
	}
	if len(cart.ShippingMethods) == 0 {
		return model.NewValidationError("shipping_method", "a shipping method is required")
	}
	if cart.LogicalProvider() == "" && cart.PaymentSessionCount() == 0 {
		return model.NewValidationError("payment", "a payment method is required")
	}
	return nil
}

// submissionError reports a failed, unretried submission. The shopper sees
// "order submission failed"; status and code come from the backend error
// when it was classified.
func submissionError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return &model.APIError{
			Code:       apiErr.Code,
			Message:    "order submission failed: " + apiErr.Message,
			StatusCode: apiErr.StatusCode,
			Kind:       apiErr.Kind,
			Err:        err,
		}
	}
	return &model.APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "order submission failed",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func manualSupportError(cause error) *model.APIError {
	return &model.APIError{
		Code:       CodeManualSupport,
		Message:    "we could not confirm your payment, please contact support to complete your order",
		StatusCode: http.StatusPaymentRequired,
		Err:        fmt.Errorf("%w: %v", model.ErrPaymentFailed, cause),
	}
}

// RetrieveOrder returns a placed order through the read cache.
func (s *Service) RetrieveOrder(ctx context.Context, sess session.Session, orderID string) (*model.Order, error) {
	if orderID == "" {
		return nil, model.NewMissingFieldError("order_id")
	}
	ctx = authed(ctx, sess)
	return cache.Fetch(s.cache, cacheKey("order", sess, orderID), tags(sess, cache.Orders),
		func() (*model.Order, error) {
			return s.backend.RetrieveOrder(ctx, orderID)
		})
}
