// Package medusa implements backend.Backend against a Medusa-style store API.
package medusa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/model"
)

// =============================================================================
// STORE API CLIENT
// =============================================================================
//
// Every request carries the publishable API key header selected for the
// backend host. Requests made on behalf of a signed-in shopper also carry a
// bearer token, read from the context (backend.WithAuthToken).
//
// Error classification happens once, in parseError. Newer backends attach a
// machine-readable "code" to error bodies; older ones only have free text, so
// for those versions the client falls back to matching known messages here
// and nowhere else.
// =============================================================================

const (
	pathRegions            = "/store/regions"
	pathCarts              = "/store/carts"
	pathShippingOptions    = "/store/shipping-options"
	pathPaymentCollections = "/store/payment-collections"
	pathOrders             = "/store/orders"

	headerPublishableKey = "x-publishable-api-key"

	userAgent = "Storefront-Checkout/1.0"

	// structuredCodesSince is the first backend version whose error bodies
	// carry a stable code for the payment-collection race.
	structuredCodesSince = "v2.5.0"

	codePaymentNotInitiated    = "payment_collection_not_initiated"
	messagePaymentNotInitiated = "payment collection has not been initiated"
)

// Config holds store API client configuration.
type Config struct {
	BaseURL        string
	PublishableKey string

	// APIVersion is the backend's semantic version (e.g. "2.4.1").
	// Empty means unknown; message matching stays enabled.
	APIVersion string

	// Transport overrides the HTTP transport (e.g. transport.NewChromeTransport).
	Transport http.RoundTripper
	Timeout   time.Duration
}

// Client is the store API HTTP client.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	publishableKey  string
	messageFallback bool
}

// New creates a store API client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if cfg.PublishableKey == "" {
		return nil, fmt.Errorf("publishable key is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		publishableKey:  cfg.PublishableKey,
		messageFallback: needsMessageFallback(cfg.APIVersion),
	}, nil
}

// needsMessageFallback reports whether errors from a backend at version must
// be classified by message text.
func needsMessageFallback(version string) bool {
	if version == "" {
		return true
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return true
	}
	return semver.Compare(version, structuredCodesSince) < 0
}

// === Regions ===

// ListRegions returns every region with its countries.
func (c *Client) ListRegions(ctx context.Context) ([]model.Region, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathRegions, nil)
	if err != nil {
		return nil, fmt.Errorf("creating regions request: %w", err)
	}

	var resp struct {
		Regions []model.Region `json:"regions"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Regions, nil
}

// === Carts ===

// CreateCart creates a cart bound to a region.
func (c *Client) CreateCart(ctx context.Context, body *backend.CreateCartRequest) (*model.Cart, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathCarts, body)
	if err != nil {
		return nil, fmt.Errorf("creating cart request: %w", err)
	}
	return c.doCart(req)
}

// RetrieveCart fetches a cart by ID.
func (c *Client) RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error) {
	req, err := c.newRequest(ctx, http.MethodGet, cartPath(cartID), nil)
	if err != nil {
		return nil, fmt.Errorf("creating get cart request: %w", err)
	}
	return c.doCart(req)
}

// UpdateCart patches cart fields.
func (c *Client) UpdateCart(ctx context.Context, cartID string, body *backend.UpdateCartRequest) (*model.Cart, error) {
	req, err := c.newRequest(ctx, http.MethodPost, cartPath(cartID), body)
	if err != nil {
		return nil, fmt.Errorf("creating update cart request: %w", err)
	}
	return c.doCart(req)
}

// AddLineItem adds a variant to the cart.
// POST /store/carts/{id}/line-items
func (c *Client) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*model.Cart, error) {
	body := map[string]any{
		"variant_id": variantID,
		"quantity":   quantity,
	}
	req, err := c.newRequest(ctx, http.MethodPost, cartPath(cartID, "line-items"), body)
	if err != nil {
		return nil, fmt.Errorf("creating add line item request: %w", err)
	}
	return c.doCart(req)
}

// UpdateLineItem sets the quantity of a line item.
// POST /store/carts/{id}/line-items/{lineId}
func (c *Client) UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
	body := map[string]any{"quantity": quantity}
	req, err := c.newRequest(ctx, http.MethodPost, cartPath(cartID, "line-items", lineID), body)
	if err != nil {
		return nil, fmt.Errorf("creating update line item request: %w", err)
	}
	return c.doCart(req)
}

// DeleteLineItem removes a line item.
// The delete response nests the updated cart under "parent".
func (c *Client) DeleteLineItem(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, cartPath(cartID, "line-items", lineID), nil)
	if err != nil {
		return nil, fmt.Errorf("creating delete line item request: %w", err)
	}

	var resp struct {
		Parent *model.Cart `json:"parent"`
		Cart   *model.Cart `json:"cart"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Parent != nil {
		return resp.Parent, nil
	}
	return resp.Cart, nil
}

// === Fulfillment ===

// ListShippingOptions returns options for the cart.
// GET /store/shipping-options?cart_id={id}
func (c *Client) ListShippingOptions(ctx context.Context, cartID string) ([]model.ShippingOption, error) {
	path := pathShippingOptions + "?" + url.Values{"cart_id": {cartID}}.Encode()
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating shipping options request: %w", err)
	}

	var resp struct {
		ShippingOptions []model.ShippingOption `json:"shipping_options"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.ShippingOptions, nil
}

// AddShippingMethod applies a shipping option.
// POST /store/carts/{id}/shipping-methods
func (c *Client) AddShippingMethod(ctx context.Context, cartID, optionID string) (*model.Cart, error) {
	body := map[string]string{"option_id": optionID}
	req, err := c.newRequest(ctx, http.MethodPost, cartPath(cartID, "shipping-methods"), body)
	if err != nil {
		return nil, fmt.Errorf("creating shipping method request: %w", err)
	}
	return c.doCart(req)
}

// === Payment ===

// CreatePaymentCollection creates a collection via the top-level resource.
// POST /store/payment-collections
func (c *Client) CreatePaymentCollection(ctx context.Context, body *backend.PaymentCollectionRequest) (*model.PaymentCollection, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathPaymentCollections, body)
	if err != nil {
		return nil, fmt.Errorf("creating payment collection request: %w", err)
	}
	return c.doPaymentCollection(req)
}

// CreateCartPaymentCollection creates a collection under the cart.
// POST /store/carts/{id}/payment-collection
func (c *Client) CreateCartPaymentCollection(ctx context.Context, cartID string, body *backend.PaymentCollectionRequest) (*model.PaymentCollection, error) {
	req, err := c.newRequest(ctx, http.MethodPost, cartPath(cartID, "payment-collection"), body)
	if err != nil {
		return nil, fmt.Errorf("creating cart payment collection request: %w", err)
	}
	return c.doPaymentCollection(req)
}

// InitiatePaymentSession starts a provider session on a collection.
// POST /store/payment-collections/{id}/payment-sessions
func (c *Client) InitiatePaymentSession(ctx context.Context, collectionID, providerID string) (*model.PaymentCollection, error) {
	path := pathPaymentCollections + "/" + url.PathEscape(collectionID) + "/payment-sessions"
	body := map[string]string{"provider_id": providerID}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, fmt.Errorf("creating payment session request: %w", err)
	}
	return c.doPaymentCollection(req)
}

// === Completion ===

// CompleteCart submits the cart for order conversion.
// The response is discriminated by "type": "order" or "cart" (soft decline).
func (c *Client) CompleteCart(ctx context.Context, cartID string) (*model.Completion, error) {
	req, err := c.newRequest(ctx, http.MethodPost, cartPath(cartID, "complete"), nil)
	if err != nil {
		return nil, fmt.Errorf("creating complete cart request: %w", err)
	}

	var resp model.Completion
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	switch resp.Type {
	case model.CompletionOrder:
		if resp.Order == nil {
			return nil, model.NewUpstreamError("Medusa", fmt.Errorf("order completion without order"))
		}
	case model.CompletionCart:
		if resp.Error == nil {
			resp.Error = &model.CompletionError{Message: "cart could not be completed"}
		}
	default:
		return nil, model.NewUpstreamError("Medusa", fmt.Errorf("unknown completion type %q", resp.Type))
	}
	return &resp, nil
}

// RetrieveOrder fetches a placed order.
func (c *Client) RetrieveOrder(ctx context.Context, orderID string) (*model.Order, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathOrders+"/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, fmt.Errorf("creating get order request: %w", err)
	}

	var resp struct {
		Order *model.Order `json:"order"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Order == nil {
		return nil, model.NewNotFoundError("order")
	}
	return resp.Order, nil
}

// === HTTP Helpers ===

// cartPath builds /store/carts/{id}[/segment...] with escaped segments.
func cartPath(cartID string, segments ...string) string {
	var b strings.Builder
	b.WriteString(pathCarts)
	b.WriteString("/")
	b.WriteString(url.PathEscape(cartID))
	for _, s := range segments {
		b.WriteString("/")
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// newRequest creates a store API request with key and optional bearer auth.
func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerPublishableKey, c.publishableKey)
	if token := backend.AuthToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

func (c *Client) doCart(req *http.Request) (*model.Cart, error) {
	var resp struct {
		Cart *model.Cart `json:"cart"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Cart == nil {
		return nil, model.NewNotFoundError("cart")
	}
	return resp.Cart, nil
}

func (c *Client) doPaymentCollection(req *http.Request) (*model.PaymentCollection, error) {
	var resp struct {
		PaymentCollection *model.PaymentCollection `json:"payment_collection"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.PaymentCollection == nil {
		return nil, model.NewUpstreamError("Medusa", fmt.Errorf("response without payment_collection"))
	}
	return resp.PaymentCollection, nil
}

// do executes the request and decodes the response.
func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError("Medusa", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.parseError(resp.StatusCode, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}

	return nil
}

// errorResponse is the store API error body.
type errorResponse struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseError converts store API errors to model.APIError with a stable Kind.
func (c *Client) parseError(statusCode int, body []byte) error {
	var apiErr errorResponse
	json.Unmarshal(body, &apiErr) // Best effort parse

	if c.isPaymentNotInitiated(&apiErr) {
		return &model.APIError{
			Code:       "PAYMENT_NOT_INITIATED",
			Message:    "payment collection has not been initiated for the cart",
			StatusCode: http.StatusConflict,
			Kind:       model.KindPaymentNotInitiated,
			Err:        fmt.Errorf("%w: %s", model.ErrPaymentFailed, apiErr.Message),
		}
	}

	msg := apiErr.Message
	if msg == "" {
		msg = "invalid request"
	}

	switch statusCode {
	case 401:
		return model.NewUnauthorizedError("Medusa authentication failed")
	case 403:
		return model.NewUnauthorizedError("Medusa access denied")
	case 404:
		return model.NewNotFoundError("resource")
	case 429:
		return model.NewRateLimitError("Medusa")
	case 400, 409, 422:
		if apiErr.Type == "not_allowed" {
			return &model.APIError{
				Code:       "NOT_ALLOWED",
				Message:    msg,
				StatusCode: 400,
				Kind:       model.KindNotAllowed,
				Err:        model.ErrInvalidRequest,
			}
		}
		return model.NewValidationError("request", msg)
	default:
		return model.NewUpstreamError("Medusa",
			fmt.Errorf("status %d: %s - %s", statusCode, apiErr.Type, apiErr.Message))
	}
}

// isPaymentNotInitiated detects the completion race.
func (c *Client) isPaymentNotInitiated(e *errorResponse) bool {
	if e.Code != "" {
		return e.Code == codePaymentNotInitiated
	}
	if !c.messageFallback {
		return false
	}
	return strings.Contains(strings.ToLower(e.Message), messagePaymentNotInitiated)
}

// Verify Client implements backend.Backend at compile time.
var _ backend.Backend = (*Client)(nil)
