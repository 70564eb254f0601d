package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/cache"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/session"
)

// =============================================================================
// PAYMENT COLLECTION TIERS
// =============================================================================
//
// The backend only creates payment collections for providers it recognizes.
// Collection setup therefore walks three tiers, strictly one after another so
// a slow tier can never race a later one into a duplicate collection:
//
//   1. POST /store/payment-collections            (cart, region, currency)
//   2. POST /store/carts/{id}/payment-collection  (cart, total, currency)
//   3. same endpoint under a technical provider the backend accepts, then a
//      metadata update recording the shopper's logical provider
//
// Tier 3 is also the repair step when completion hits the
// payment-collection race (see PlaceOrder).
// =============================================================================

// TierError reports that every collection tier failed.
type TierError struct {
	Tier1 error
	Tier2 error
	Tier3 error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("payment collection could not be created: tier 1: %v; tier 2: %v; tier 3: %v",
		e.Tier1, e.Tier2, e.Tier3)
}

// Unwrap exposes all three causes to errors.Is and errors.As.
func (e *TierError) Unwrap() []error {
	return []error{e.Tier1, e.Tier2, e.Tier3}
}

// EnsurePaymentCollection returns the cart's payment collection, creating it
// through the tier chain when absent. An existing collection is returned
// without contacting the backend.
func (s *Service) EnsurePaymentCollection(ctx context.Context, sess session.Session, cart *model.Cart, logicalProvider string) (*model.PaymentCollection, error) {
	if cart == nil {
		return nil, model.NewMissingFieldError("cart")
	}
	if cart.PaymentCollection != nil {
		return cart.PaymentCollection, nil
	}

	ctx = authed(ctx, sess)
	log := s.logger.With(slog.String("cart_id", cart.ID), slog.String("provider", logicalProvider))

	collection, err1 := s.backend.CreatePaymentCollection(ctx, &backend.PaymentCollectionRequest{
		CartID:       cart.ID,
		RegionID:     cart.RegionID,
		CurrencyCode: cart.CurrencyCode,
	})
	if err1 == nil {
		s.invalidate(sess, cache.Carts, cache.Payment)
		return collection, nil
	}
	log.Warn("payment collection tier 1 failed", slog.Any("error", err1))

	collection, err2 := s.backend.CreateCartPaymentCollection(ctx, cart.ID, &backend.PaymentCollectionRequest{
		CartID:       cart.ID,
		Amount:       json.Number(cart.Total.String()),
		CurrencyCode: cart.CurrencyCode,
	})
	if err2 == nil {
		s.invalidate(sess, cache.Carts, cache.Payment)
		return collection, nil
	}
	log.Warn("payment collection tier 2 failed", slog.Any("error", err2))

	collection, err3 := s.emulateCollection(ctx, sess, cart, logicalProvider)
	if err3 == nil {
		return collection, nil
	}
	log.Error("payment collection tier 3 failed", slog.Any("error", err3))

	return nil, &TierError{Tier1: err1, Tier2: err2, Tier3: err3}
}

// emulateCollection creates the collection under the technical provider
// carrying logicalProvider and records both providers on the cart.
// ctx must already carry the session token.
func (s *Service) emulateCollection(ctx context.Context, sess session.Session, cart *model.Cart, logicalProvider string) (*model.PaymentCollection, error) {
	technical := s.technicalProvider(logicalProvider)

	collection, err := s.backend.CreateCartPaymentCollection(ctx, cart.ID, &backend.PaymentCollectionRequest{
		CartID:       cart.ID,
		Amount:       json.Number(cart.Total.String()),
		CurrencyCode: cart.CurrencyCode,
		ProviderID:   technical,
	})
	if err != nil {
		return nil, fmt.Errorf("creating collection under %s: %w", technical, err)
	}
	s.invalidate(sess, cache.Carts, cache.Payment)

	_, err = s.backend.UpdateCart(ctx, cart.ID, &backend.UpdateCartRequest{
		Metadata: cart.MergedMetadata(map[string]any{
			model.MetaPaymentProvider:   logicalProvider,
			model.MetaTechnicalProvider: technical,
			model.MetaPaymentStatus:     model.PaymentStatusPendingConfirmation,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("recording payment provider: %w", err)
	}
	s.invalidate(sess, cache.Carts)

	s.logger.Info("payment collection created under technical provider",
		slog.String("cart_id", cart.ID),
		slog.String("logical", logicalProvider),
		slog.String("technical", technical),
	)
	return collection, nil
}

// SelectPaymentMethod records provider as the shopper's payment choice.
// Native providers get a collection and a payment session immediately;
// emulated ones defer the collection to order placement.
func (s *Service) SelectPaymentMethod(ctx context.Context, sess session.Session, provider string) (*model.Cart, error) {
	cartID := sess.CartID()
	if cartID == "" {
		return nil, model.NewMissingFieldError("cart_id")
	}
	if provider == "" {
		return nil, model.NewMissingFieldError("provider_id")
	}

	unlock := s.locks.lock(cartID)
	defer unlock()

	actx := authed(ctx, sess)
	cart, err := s.retrieveCart(actx, sess, cartID)
	if err != nil {
		return nil, fmt.Errorf("loading cart: %w", err)
	}

	updated, err := s.backend.UpdateCart(actx, cartID, &backend.UpdateCartRequest{
		Metadata: cart.MergedMetadata(map[string]any{model.MetaPaymentProvider: provider}),
	})
	if err != nil {
		return nil, fmt.Errorf("recording payment method: %w", err)
	}
	s.invalidate(sess, cache.Carts)

	if s.IsEmulated(provider) {
		return updated, nil
	}

	collection, err := s.EnsurePaymentCollection(ctx, sess, updated, provider)
	if err != nil {
		return nil, err
	}
	collection, err = s.backend.InitiatePaymentSession(actx, collection.ID, provider)
	if err != nil {
		return nil, fmt.Errorf("initiating payment session: %w", err)
	}
	s.invalidate(sess, cache.Carts, cache.Payment)

	updated.PaymentCollection = collection
	return updated, nil
}
