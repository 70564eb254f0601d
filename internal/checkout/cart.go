package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/cache"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/region"
	"storefront-checkout/internal/session"
)

// AddressForm is the address step submission.
type AddressForm struct {
	Email           string         `json:"email"`
	ShippingAddress *model.Address `json:"shipping_address"`
	BillingAddress  *model.Address `json:"billing_address,omitempty"`
	// SameAsShipping copies the shipping address into billing.
	SameAsShipping bool `json:"same_as_shipping"`
}

// GetOrCreateCart returns the session's cart, creating one bound to the
// locale's region when the session has none or it can no longer be read.
// A cart whose region differs from the locale's region is moved first.
// Repeated calls with the same session and locale make no further writes.
func (s *Service) GetOrCreateCart(ctx context.Context, sess session.Session, locale string) (*model.Cart, error) {
	ctx = authed(ctx, sess)

	reg, err := s.regions.Resolve(ctx, locale)
	if err != nil {
		if errors.Is(err, region.ErrNoRegions) {
			return nil, model.NewInternalError(err)
		}
		return nil, fmt.Errorf("resolving region: %w", err)
	}

	var cart *model.Cart
	if cartID := sess.CartID(); cartID != "" {
		cart, err = s.retrieveCart(ctx, sess, cartID)
		if err != nil {
			s.logger.Debug("stored cart unavailable, creating a new one",
				slog.String("cart_id", cartID),
				slog.Any("error", err),
			)
			cart = nil
		}
	}

	if cart == nil {
		cart, err = s.backend.CreateCart(ctx, &backend.CreateCartRequest{RegionID: reg.ID})
		if err != nil {
			return nil, fmt.Errorf("creating cart: %w", err)
		}
		sess.SetCartID(cart.ID)
		s.invalidate(sess, cache.Carts)
		s.logger.Info("cart created",
			slog.String("cart_id", cart.ID),
			slog.String("region_id", reg.ID),
		)
		return cart, nil
	}

	if cart.RegionID == reg.ID {
		return cart, nil
	}

	unlock := s.locks.lock(cart.ID)
	defer unlock()

	updated, err := s.backend.UpdateCart(ctx, cart.ID, &backend.UpdateCartRequest{RegionID: reg.ID})
	if err != nil {
		return nil, fmt.Errorf("updating cart region: %w", err)
	}
	s.invalidate(sess, cache.Carts, cache.Fulfillment)
	s.logger.Info("cart region corrected",
		slog.String("cart_id", cart.ID),
		slog.String("from", cart.RegionID),
		slog.String("to", reg.ID),
	)
	return updated, nil
}

// RetrieveCart returns the session's cart through the read cache.
func (s *Service) RetrieveCart(ctx context.Context, sess session.Session) (*model.Cart, error) {
	cartID := sess.CartID()
	if cartID == "" {
		return nil, model.NewMissingFieldError("cart_id")
	}
	return s.retrieveCart(authed(ctx, sess), sess, cartID)
}

func (s *Service) retrieveCart(ctx context.Context, sess session.Session, cartID string) (*model.Cart, error) {
	return cache.Fetch(s.cache, cacheKey("cart", sess, cartID), tags(sess, cache.Carts),
		func() (*model.Cart, error) {
			return s.backend.RetrieveCart(ctx, cartID)
		})
}

// AddLineItem adds quantity of variantID to the session's cart, creating the
// cart for locale first if needed.
func (s *Service) AddLineItem(ctx context.Context, sess session.Session, locale, variantID string, quantity int) (*model.Cart, error) {
	if variantID == "" {
		return nil, model.NewMissingFieldError("variant_id")
	}
	if quantity < 1 {
		return nil, model.NewValidationError("quantity", "must be at least 1")
	}

	cart, err := s.GetOrCreateCart(ctx, sess, locale)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(cart.ID)
	defer unlock()

	updated, err := s.backend.AddLineItem(authed(ctx, sess), cart.ID, variantID, quantity)
	if err != nil {
		return nil, fmt.Errorf("adding line item: %w", err)
	}
	s.invalidate(sess, cache.Carts, cache.Fulfillment)
	return updated, nil
}

// UpdateLineItem sets the quantity of an existing line item.
func (s *Service) UpdateLineItem(ctx context.Context, sess session.Session, lineID string, quantity int) (*model.Cart, error) {
	cartID := sess.CartID()
	if cartID == "" {
		return nil, model.NewMissingFieldError("cart_id")
	}
	if lineID == "" {
		return nil, model.NewMissingFieldError("line_id")
	}
	if quantity < 1 {
		return nil, model.NewValidationError("quantity", "must be at least 1")
	}

	unlock := s.locks.lock(cartID)
	defer unlock()

	updated, err := s.backend.UpdateLineItem(authed(ctx, sess), cartID, lineID, quantity)
	if err != nil {
		return nil, fmt.Errorf("updating line item: %w", err)
	}
	s.invalidate(sess, cache.Carts, cache.Fulfillment)
	return updated, nil
}

// RemoveLineItem deletes a line item from the session's cart.
func (s *Service) RemoveLineItem(ctx context.Context, sess session.Session, lineID string) (*model.Cart, error) {
	cartID := sess.CartID()
	if cartID == "" {
		return nil, model.NewMissingFieldError("cart_id")
	}
	if lineID == "" {
		return nil, model.NewMissingFieldError("line_id")
	}

	unlock := s.locks.lock(cartID)
	defer unlock()

	updated, err := s.backend.DeleteLineItem(authed(ctx, sess), cartID, lineID)
	if err != nil {
		return nil, fmt.Errorf("removing line item: %w", err)
	}
	s.invalidate(sess, cache.Carts, cache.Fulfillment)
	return updated, nil
}

// ApplyPromotionCodes replaces the cart's promotion codes. Blank codes are
// dropped before submission.
func (s *Service) ApplyPromotionCodes(ctx context.Context, sess session.Session, codes []string) (*model.Cart, error) {
	cartID := sess.CartID()
	if cartID == "" {
		return nil, model.NewMissingFieldError("cart_id")
	}

	filtered := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return nil, model.NewMissingFieldError("promo_codes")
	}

	unlock := s.locks.lock(cartID)
	defer unlock()

	updated, err := s.backend.UpdateCart(authed(ctx, sess), cartID, &backend.UpdateCartRequest{PromoCodes: filtered})
	if err != nil {
		return nil, fmt.Errorf("applying promotions: %w", err)
	}
	s.invalidate(sess, cache.Carts)
	return updated, nil
}

// PromotionCodes keeps the string members of a decoded JSON array. Clients
// post loosely typed arrays; numbers, nulls and objects are ignored.
func PromotionCodes(raw []any) []string {
	codes := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			codes = append(codes, s)
		}
	}
	return codes
}

// SetShippingMethod applies shipping option optionID to cartID.
func (s *Service) SetShippingMethod(ctx context.Context, sess session.Session, cartID, optionID string) (*model.Cart, error) {
	if cartID == "" {
		return nil, model.NewMissingFieldError("cart_id")
	}
	if optionID == "" {
		return nil, model.NewMissingFieldError("option_id")
	}

	unlock := s.locks.lock(cartID)
	defer unlock()

	updated, err := s.backend.AddShippingMethod(authed(ctx, sess), cartID, optionID)
	if err != nil {
		return nil, fmt.Errorf("setting shipping method: %w", err)
	}
	s.invalidate(sess, cache.Carts, cache.Fulfillment)
	return updated, nil
}

// SetAddresses stores the shipping address, billing address and email.
func (s *Service) SetAddresses(ctx context.Context, sess session.Session, form AddressForm) (*model.Cart, error) {
	cartID := sess.CartID()
	if cartID == "" {
		return nil, model.NewMissingFieldError("cart_id")
	}
	if strings.TrimSpace(form.Email) == "" {
		return nil, model.NewMissingFieldError("email")
	}
	if form.ShippingAddress.IsZero() {
		return nil, model.NewMissingFieldError("shipping_address")
	}

	billing := form.BillingAddress
	if form.SameAsShipping || billing.IsZero() {
		copied := *form.ShippingAddress
		billing = &copied
	}

	unlock := s.locks.lock(cartID)
	defer unlock()

	updated, err := s.backend.UpdateCart(authed(ctx, sess), cartID, &backend.UpdateCartRequest{
		Email:           strings.TrimSpace(form.Email),
		ShippingAddress: form.ShippingAddress,
		BillingAddress:  billing,
	})
	if err != nil {
		return nil, fmt.Errorf("setting addresses: %w", err)
	}
	s.invalidate(sess, cache.Carts, cache.Fulfillment)
	return updated, nil
}

// ListShippingOptions returns the shipping options for the session's cart.
func (s *Service) ListShippingOptions(ctx context.Context, sess session.Session) ([]model.ShippingOption, error) {
	cartID := sess.CartID()
	if cartID == "" {
		return nil, model.NewMissingFieldError("cart_id")
	}
	ctx = authed(ctx, sess)
	return cache.Fetch(s.cache, cacheKey("shipping-options", sess, cartID), tags(sess, cache.Fulfillment),
		func() ([]model.ShippingOption, error) {
			return s.backend.ListShippingOptions(ctx, cartID)
		})
}

// ClearCart forgets the session's cart without touching the backend.
func (s *Service) ClearCart(sess session.Session) {
	sess.ClearCartID()
	s.invalidate(sess, cache.Carts, cache.Fulfillment, cache.Payment)
}
