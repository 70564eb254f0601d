// Package backend defines the interface to the commerce backend's store API.
// The checkout core depends only on this interface; internal/medusa provides
// the HTTP implementation.
package backend

import (
	"context"
	"encoding/json"

	"storefront-checkout/internal/model"
)

// Backend abstracts the store API operations the checkout core consumes.
//
// Implementations classify failures into *model.APIError values carrying a
// model.ErrorKind, so callers never inspect backend message text.
// The session auth token, when present, travels in the context (see
// WithAuthToken).
type Backend interface {
	// ListRegions returns every region with its served countries.
	ListRegions(ctx context.Context) ([]model.Region, error)

	// CreateCart creates an empty cart bound to a region.
	CreateCart(ctx context.Context, req *CreateCartRequest) (*model.Cart, error)

	// RetrieveCart fetches a cart by ID.
	RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error)

	// UpdateCart patches region, addresses, email, promotion codes or metadata.
	UpdateCart(ctx context.Context, cartID string, req *UpdateCartRequest) (*model.Cart, error)

	// AddLineItem adds a variant to the cart.
	AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*model.Cart, error)

	// UpdateLineItem changes the quantity of an existing line item.
	UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error)

	// DeleteLineItem removes a line item.
	DeleteLineItem(ctx context.Context, cartID, lineID string) (*model.Cart, error)

	// ListShippingOptions returns the shipping options valid for the cart.
	ListShippingOptions(ctx context.Context, cartID string) ([]model.ShippingOption, error)

	// AddShippingMethod applies a shipping option to the cart.
	AddShippingMethod(ctx context.Context, cartID, optionID string) (*model.Cart, error)

	// CreatePaymentCollection creates a collection through the top-level
	// payment-collections resource.
	CreatePaymentCollection(ctx context.Context, req *PaymentCollectionRequest) (*model.PaymentCollection, error)

	// CreateCartPaymentCollection creates a collection scoped under the
	// cart's payment-collection sub-resource.
	CreateCartPaymentCollection(ctx context.Context, cartID string, req *PaymentCollectionRequest) (*model.PaymentCollection, error)

	// InitiatePaymentSession starts a provider session on a collection.
	InitiatePaymentSession(ctx context.Context, collectionID, providerID string) (*model.PaymentCollection, error)

	// CompleteCart submits the cart for conversion into an order.
	CompleteCart(ctx context.Context, cartID string) (*model.Completion, error)

	// RetrieveOrder fetches a placed order.
	RetrieveOrder(ctx context.Context, orderID string) (*model.Order, error)
}

// CreateCartRequest contains data for creating a cart.
type CreateCartRequest struct {
	RegionID string `json:"region_id"`
}

// UpdateCartRequest carries the fields of a cart update.
// Nil/empty fields are omitted so the backend leaves them untouched.
type UpdateCartRequest struct {
	RegionID        string         `json:"region_id,omitempty"`
	Email           string         `json:"email,omitempty"`
	ShippingAddress *model.Address `json:"shipping_address,omitempty"`
	BillingAddress  *model.Address `json:"billing_address,omitempty"`
	PromoCodes      []string       `json:"promo_codes,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// PaymentCollectionRequest is the body for both collection endpoints.
// Tier-specific fields are left empty when not used. Amount is a JSON number
// in major units (decimal.Decimal.String() output).
type PaymentCollectionRequest struct {
	CartID       string      `json:"cart_id"`
	RegionID     string      `json:"region_id,omitempty"`
	CurrencyCode string      `json:"currency_code,omitempty"`
	Amount       json.Number `json:"amount,omitempty"`
	ProviderID   string      `json:"provider_id,omitempty"`
}

type authTokenKey struct{}

// WithAuthToken returns a context carrying the shopper's bearer token.
func WithAuthToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, authTokenKey{}, token)
}

// AuthToken returns the bearer token stored by WithAuthToken, or "".
func AuthToken(ctx context.Context) string {
	token, _ := ctx.Value(authTokenKey{}).(string)
	return token
}
