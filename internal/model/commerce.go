// Package model defines the commerce data structures exchanged with the
// store backend and the error taxonomy shared by every layer.
package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Cart metadata keys written by the checkout core.
// The logical provider is what the shopper picked; the technical provider is
// the backend-recognized provider that actually carries the collection.
const (
	MetaPaymentProvider   = "payment_provider"
	MetaTechnicalProvider = "payment_technical_provider"
	MetaPaymentStatus     = "payment_status"
)

// Values stored under MetaPaymentStatus.
const (
	PaymentStatusPending             = "pending"
	PaymentStatusPendingConfirmation = "pending_confirmation"
)

// === Regions ===

// Region is a backend pricing/tax zone serving a set of countries.
type Region struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CurrencyCode   string    `json:"currency_code"`
	AutomaticTaxes bool      `json:"automatic_taxes"`
	Countries      []Country `json:"countries,omitempty"`
}

// Country is one country served by a region.
type Country struct {
	ISO2        string `json:"iso_2"`
	DisplayName string `json:"display_name,omitempty"`
}

// CountryCodes returns the lower-cased ISO-2 codes served by the region.
func (r *Region) CountryCodes() []string {
	codes := make([]string, 0, len(r.Countries))
	for _, c := range r.Countries {
		if c.ISO2 == "" {
			continue
		}
		codes = append(codes, strings.ToLower(c.ISO2))
	}
	return codes
}

// === Carts ===

// Address is a postal address as stored on carts and orders.
type Address struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Address1    string `json:"address_1,omitempty"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Province    string `json:"province,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// IsZero reports whether the address carries no locating data.
// The backend returns an empty address object rather than null after clears.
func (a *Address) IsZero() bool {
	if a == nil {
		return true
	}
	return a.Address1 == "" && a.City == "" && a.PostalCode == "" &&
		a.CountryCode == "" && a.FirstName == "" && a.LastName == ""
}

// LineItem is one purchasable entry in a cart or order.
type LineItem struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	Title     string          `json:"title,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// ShippingMethod is a shipping option applied to a cart.
type ShippingMethod struct {
	ID               string          `json:"id"`
	ShippingOptionID string          `json:"shipping_option_id"`
	Name             string          `json:"name,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
}

// ShippingOption is a shipping choice offered for a cart.
type ShippingOption struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	ProviderID string          `json:"provider_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}

// PaymentSession is a provider-specific attempt within a payment collection.
type PaymentSession struct {
	ID         string          `json:"id"`
	ProviderID string          `json:"provider_id"`
	Status     string          `json:"status,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}

// PaymentCollection is the backend's intent to collect a cart's total.
type PaymentCollection struct {
	ID              string           `json:"id"`
	CurrencyCode    string           `json:"currency_code"`
	Amount          decimal.Decimal  `json:"amount"`
	Status          string           `json:"status,omitempty"`
	PaymentSessions []PaymentSession `json:"payment_sessions,omitempty"`
}

// Promotion is a promotion code applied to a cart.
type Promotion struct {
	ID   string `json:"id,omitempty"`
	Code string `json:"code"`
}

// Cart is the mutable pre-order aggregate.
type Cart struct {
	ID                string             `json:"id"`
	RegionID          string             `json:"region_id"`
	CurrencyCode      string             `json:"currency_code"`
	Email             string             `json:"email,omitempty"`
	Items             []LineItem         `json:"items"`
	ShippingAddress   *Address           `json:"shipping_address,omitempty"`
	BillingAddress    *Address           `json:"billing_address,omitempty"`
	ShippingMethods   []ShippingMethod   `json:"shipping_methods,omitempty"`
	PaymentCollection *PaymentCollection `json:"payment_collection,omitempty"`
	Promotions        []Promotion        `json:"promotions,omitempty"`
	Metadata          map[string]any     `json:"metadata,omitempty"`

	Subtotal      decimal.Decimal `json:"subtotal"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	Total         decimal.Decimal `json:"total"`
}

// MetadataString returns the string stored under key, or "".
func (c *Cart) MetadataString(key string) string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata[key].(string)
	return s
}

// LogicalProvider returns the payment provider the shopper selected.
func (c *Cart) LogicalProvider() string {
	return c.MetadataString(MetaPaymentProvider)
}

// HasShippingAddress reports whether a usable shipping address is set.
func (c *Cart) HasShippingAddress() bool {
	return c != nil && !c.ShippingAddress.IsZero()
}

// PaymentSessionCount returns the number of sessions on the cart's collection.
func (c *Cart) PaymentSessionCount() int {
	if c == nil || c.PaymentCollection == nil {
		return 0
	}
	return len(c.PaymentCollection.PaymentSessions)
}

// MergedMetadata returns a copy of the cart metadata with updates applied.
// Cart updates replace metadata wholesale, so writers send the merged map.
func (c *Cart) MergedMetadata(updates map[string]any) map[string]any {
	merged := make(map[string]any, len(updates))
	if c != nil {
		for k, v := range c.Metadata {
			merged[k] = v
		}
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// === Orders ===

// Order is the immutable result of completing a cart.
type Order struct {
	ID                 string              `json:"id"`
	DisplayID          int                 `json:"display_id"`
	Email              string              `json:"email,omitempty"`
	CurrencyCode       string              `json:"currency_code"`
	Items              []LineItem          `json:"items,omitempty"`
	ShippingAddress    *Address            `json:"shipping_address,omitempty"`
	BillingAddress     *Address            `json:"billing_address,omitempty"`
	ShippingMethods    []ShippingMethod    `json:"shipping_methods,omitempty"`
	PaymentCollections []PaymentCollection `json:"payment_collections,omitempty"`
	Total              decimal.Decimal     `json:"total"`
}

// ShippingCountry returns the lower-cased shipping country, or "".
func (o *Order) ShippingCountry() string {
	if o == nil || o.ShippingAddress == nil {
		return ""
	}
	return strings.ToLower(o.ShippingAddress.CountryCode)
}

// CompletionType discriminates the cart completion response.
type CompletionType string

const (
	CompletionOrder CompletionType = "order"
	CompletionCart  CompletionType = "cart"
)

// CompletionError is the soft-decline reason embedded in a "cart" completion.
type CompletionError struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Completion is the backend response to a cart completion request.
// Exactly one of Order (Type order) or Cart (Type cart) is set.
type Completion struct {
	Type  CompletionType   `json:"type"`
	Order *Order           `json:"order,omitempty"`
	Cart  *Cart            `json:"cart,omitempty"`
	Error *CompletionError `json:"error,omitempty"`
}
