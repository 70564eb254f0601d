package medusa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/model"
)

// newTestClient starts a server with handler and returns a client pointed at it.
func newTestClient(t *testing.T, version string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:        srv.URL,
		PublishableKey: "pk_test",
		APIVersion:     version,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing URL", Config{PublishableKey: "pk"}},
		{"missing key", Config{BaseURL: "http://localhost:9000"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(w, 200, map[string]interface{}{"regions": []interface{}{}})
	})

	ctx := backend.WithAuthToken(context.Background(), "jwt-123")
	if _, err := c.ListRegions(ctx); err != nil {
		t.Fatalf("ListRegions: %v", err)
	}

	if got.Get("x-publishable-api-key") != "pk_test" {
		t.Errorf("publishable key = %q, want pk_test", got.Get("x-publishable-api-key"))
	}
	if got.Get("Authorization") != "Bearer jwt-123" {
		t.Errorf("Authorization = %q, want Bearer jwt-123", got.Get("Authorization"))
	}
}

func TestRequestWithoutAuthToken(t *testing.T) {
	var auth string
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, 200, map[string]interface{}{"regions": []interface{}{}})
	})

	if _, err := c.ListRegions(context.Background()); err != nil {
		t.Fatalf("ListRegions: %v", err)
	}
	if auth != "" {
		t.Errorf("Authorization = %q, want empty", auth)
	}
}

func TestListRegions(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/store/regions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"regions":[{"id":"reg_tw","name":"Taiwan","currency_code":"twd","countries":[{"iso_2":"tw"}]}]}`)
	})

	regions, err := c.ListRegions(context.Background())
	if err != nil {
		t.Fatalf("ListRegions: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("len(regions) = %d, want 1", len(regions))
	}
	if regions[0].ID != "reg_tw" || regions[0].CountryCodes()[0] != "tw" {
		t.Errorf("region = %+v", regions[0])
	}
}

func TestCartRequests(t *testing.T) {
	type seen struct {
		method string
		path   string
		body   map[string]interface{}
	}
	var last seen

	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		last = seen{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&last.body)
		}
		if r.Method == http.MethodDelete {
			io.WriteString(w, `{"id":"li_1","deleted":true,"parent":{"id":"cart_1","region_id":"reg_1","items":[]}}`)
			return
		}
		io.WriteString(w, `{"cart":{"id":"cart_1","region_id":"reg_1","total":12.5,"items":[{"id":"li_1","variant_id":"v1","quantity":2,"unit_price":6.25,"total":12.5}]}}`)
	})
	ctx := context.Background()

	tests := []struct {
		name       string
		call       func() (*model.Cart, error)
		wantMethod string
		wantPath   string
		wantBody   map[string]interface{}
	}{
		{
			name:       "create",
			call:       func() (*model.Cart, error) { return c.CreateCart(ctx, &backend.CreateCartRequest{RegionID: "reg_1"}) },
			wantMethod: "POST",
			wantPath:   "/store/carts",
			wantBody:   map[string]interface{}{"region_id": "reg_1"},
		},
		{
			name:       "retrieve",
			call:       func() (*model.Cart, error) { return c.RetrieveCart(ctx, "cart_1") },
			wantMethod: "GET",
			wantPath:   "/store/carts/cart_1",
		},
		{
			name: "update",
			call: func() (*model.Cart, error) {
				return c.UpdateCart(ctx, "cart_1", &backend.UpdateCartRequest{RegionID: "reg_2"})
			},
			wantMethod: "POST",
			wantPath:   "/store/carts/cart_1",
			wantBody:   map[string]interface{}{"region_id": "reg_2"},
		},
		{
			name:       "add line item",
			call:       func() (*model.Cart, error) { return c.AddLineItem(ctx, "cart_1", "v1", 2) },
			wantMethod: "POST",
			wantPath:   "/store/carts/cart_1/line-items",
			wantBody:   map[string]interface{}{"variant_id": "v1", "quantity": float64(2)},
		},
		{
			name:       "update line item",
			call:       func() (*model.Cart, error) { return c.UpdateLineItem(ctx, "cart_1", "li_1", 3) },
			wantMethod: "POST",
			wantPath:   "/store/carts/cart_1/line-items/li_1",
			wantBody:   map[string]interface{}{"quantity": float64(3)},
		},
		{
			name:       "delete line item",
			call:       func() (*model.Cart, error) { return c.DeleteLineItem(ctx, "cart_1", "li_1") },
			wantMethod: "DELETE",
			wantPath:   "/store/carts/cart_1/line-items/li_1",
		},
		{
			name:       "add shipping method",
			call:       func() (*model.Cart, error) { return c.AddShippingMethod(ctx, "cart_1", "so_1") },
			wantMethod: "POST",
			wantPath:   "/store/carts/cart_1/shipping-methods",
			wantBody:   map[string]interface{}{"option_id": "so_1"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			last = seen{}
			cart, err := tc.call()
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if cart == nil || cart.ID != "cart_1" {
				t.Fatalf("cart = %+v, want cart_1", cart)
			}
			if last.method != tc.wantMethod {
				t.Errorf("method = %s, want %s", last.method, tc.wantMethod)
			}
			if last.path != tc.wantPath {
				t.Errorf("path = %s, want %s", last.path, tc.wantPath)
			}
			for k, v := range tc.wantBody {
				if last.body[k] != v {
					t.Errorf("body[%s] = %v, want %v", k, last.body[k], v)
				}
			}
		})
	}
}

func TestCartTotalsDecodeAsDecimal(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"cart":{"id":"cart_1","total":19.99,"items":[]}}`)
	})

	cart, err := c.RetrieveCart(context.Background(), "cart_1")
	if err != nil {
		t.Fatalf("RetrieveCart: %v", err)
	}
	if !cart.Total.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("Total = %s, want 19.99", cart.Total)
	}
}

func TestListShippingOptions(t *testing.T) {
	var query string
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("cart_id")
		io.WriteString(w, `{"shipping_options":[{"id":"so_1","name":"Standard","amount":5}]}`)
	})

	opts, err := c.ListShippingOptions(context.Background(), "cart_1")
	if err != nil {
		t.Fatalf("ListShippingOptions: %v", err)
	}
	if query != "cart_1" {
		t.Errorf("cart_id = %q, want cart_1", query)
	}
	if len(opts) != 1 || opts[0].ID != "so_1" {
		t.Errorf("options = %+v", opts)
	}
}

func TestPaymentCollectionEndpoints(t *testing.T) {
	var path string
	var body map[string]interface{}
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, `{"payment_collection":{"id":"pay_col_1","currency_code":"twd","amount":100}}`)
	})
	ctx := context.Background()

	if _, err := c.CreatePaymentCollection(ctx, &backend.PaymentCollectionRequest{
		CartID: "cart_1", RegionID: "reg_1", CurrencyCode: "twd",
	}); err != nil {
		t.Fatalf("CreatePaymentCollection: %v", err)
	}
	if path != "/store/payment-collections" {
		t.Errorf("path = %s, want /store/payment-collections", path)
	}
	if body["region_id"] != "reg_1" {
		t.Errorf("region_id = %v, want reg_1", body["region_id"])
	}

	if _, err := c.CreateCartPaymentCollection(ctx, "cart_1", &backend.PaymentCollectionRequest{
		CartID: "cart_1", Amount: "100.5", CurrencyCode: "twd", ProviderID: "pp_system_default",
	}); err != nil {
		t.Fatalf("CreateCartPaymentCollection: %v", err)
	}
	if path != "/store/carts/cart_1/payment-collection" {
		t.Errorf("path = %s, want /store/carts/cart_1/payment-collection", path)
	}
	if body["amount"] != 100.5 {
		t.Errorf("amount = %v, want numeric 100.5", body["amount"])
	}
	if body["provider_id"] != "pp_system_default" {
		t.Errorf("provider_id = %v, want pp_system_default", body["provider_id"])
	}

	if _, err := c.InitiatePaymentSession(ctx, "pay_col_1", "pp_stripe_stripe"); err != nil {
		t.Fatalf("InitiatePaymentSession: %v", err)
	}
	if path != "/store/payment-collections/pay_col_1/payment-sessions" {
		t.Errorf("path = %s", path)
	}
}

func TestCompleteCart(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType model.CompletionType
		wantErr  bool
	}{
		{
			name:     "order",
			body:     `{"type":"order","order":{"id":"order_1","display_id":7,"shipping_address":{"country_code":"TW"}}}`,
			wantType: model.CompletionOrder,
		},
		{
			name:     "soft decline",
			body:     `{"type":"cart","cart":{"id":"cart_1"},"error":{"message":"Payment authorization failed","name":"Error","type":"payment_authorization_error"}}`,
			wantType: model.CompletionCart,
		},
		{
			name:    "order type without order",
			body:    `{"type":"order"}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			body:    `{"type":"draft"}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/store/carts/cart_1/complete" {
					t.Errorf("path = %s", r.URL.Path)
				}
				io.WriteString(w, tc.body)
			})

			got, err := c.CompleteCart(context.Background(), "cart_1")
			if (err != nil) != tc.wantErr {
				t.Fatalf("CompleteCart() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if got.Type != tc.wantType {
				t.Errorf("Type = %s, want %s", got.Type, tc.wantType)
			}
			if got.Type == model.CompletionOrder && got.Order.ShippingCountry() != "tw" {
				t.Errorf("ShippingCountry = %q, want tw", got.Order.ShippingCountry())
			}
			if got.Type == model.CompletionCart && got.Error.Message != "Payment authorization failed" {
				t.Errorf("Error.Message = %q", got.Error.Message)
			}
		})
	}
}

func TestParseErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		status   int
		body     string
		wantKind model.ErrorKind
		wantSent error
	}{
		{
			name:     "structured race code",
			version:  "2.6.0",
			status:   400,
			body:     `{"type":"not_allowed","code":"payment_collection_not_initiated","message":"anything"}`,
			wantKind: model.KindPaymentNotInitiated,
			wantSent: model.ErrPaymentFailed,
		},
		{
			name:     "legacy race message",
			version:  "2.3.1",
			status:   400,
			body:     `{"type":"not_allowed","message":"Payment collection has not been initiated for cart"}`,
			wantKind: model.KindPaymentNotInitiated,
			wantSent: model.ErrPaymentFailed,
		},
		{
			name:     "unknown version matches message",
			version:  "",
			status:   500,
			body:     `{"type":"unknown_error","message":"payment collection has not been initiated"}`,
			wantKind: model.KindPaymentNotInitiated,
			wantSent: model.ErrPaymentFailed,
		},
		{
			name:     "new backend ignores message text",
			version:  "v2.6.0",
			status:   400,
			body:     `{"type":"not_allowed","message":"Payment collection has not been initiated for cart"}`,
			wantKind: model.KindNotAllowed,
			wantSent: model.ErrInvalidRequest,
		},
		{
			name:     "other code is not the race",
			version:  "",
			status:   400,
			body:     `{"type":"invalid_data","code":"invalid_email","message":"payment collection has not been initiated"}`,
			wantKind: model.KindValidation,
			wantSent: model.ErrInvalidRequest,
		},
		{
			name:     "not found",
			status:   404,
			body:     `{"type":"not_found","message":"Cart id not found"}`,
			wantKind: model.KindNotFound,
			wantSent: model.ErrNotFound,
		},
		{
			name:     "unauthorized",
			status:   401,
			body:     `{}`,
			wantKind: model.KindUnauthorized,
			wantSent: model.ErrUnauthorized,
		},
		{
			name:     "rate limited",
			status:   429,
			body:     ``,
			wantKind: model.KindRateLimited,
			wantSent: model.ErrRateLimited,
		},
		{
			name:     "server error",
			status:   503,
			body:     `not json`,
			wantKind: model.KindUpstream,
			wantSent: model.ErrUpstreamError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.version, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})

			_, err := c.CompleteCart(context.Background(), "cart_1")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := model.KindOf(err); got != tc.wantKind {
				t.Errorf("KindOf = %v, want %v (err: %v)", got, tc.wantKind, err)
			}
			if !errors.Is(err, tc.wantSent) {
				t.Errorf("errors.Is(%v, %v) = false", err, tc.wantSent)
			}
		})
	}
}

func TestNeedsMessageFallback(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"", true},
		{"garbage", true},
		{"2.4.9", true},
		{"v2.5.0", false},
		{"2.10.1", false},
	}
	for _, tc := range tests {
		t.Run(tc.version, func(t *testing.T) {
			if got := needsMessageFallback(tc.version); got != tc.want {
				t.Errorf("needsMessageFallback(%q) = %v, want %v", tc.version, got, tc.want)
			}
		})
	}
}

func TestRetrieveOrderMissing(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})

	_, err := c.RetrieveOrder(context.Background(), "order_1")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}
