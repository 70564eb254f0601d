package backend

import (
	"context"
	"sync"

	"storefront-checkout/internal/model"
)

// Mock implements Backend for testing.
// Each method can be configured via function fields; unconfigured methods
// return a not-found error. Every call is recorded by method name.
type Mock struct {
	ListRegionsFunc                 func(ctx context.Context) ([]model.Region, error)
	CreateCartFunc                  func(ctx context.Context, req *CreateCartRequest) (*model.Cart, error)
	RetrieveCartFunc                func(ctx context.Context, cartID string) (*model.Cart, error)
	UpdateCartFunc                  func(ctx context.Context, cartID string, req *UpdateCartRequest) (*model.Cart, error)
	AddLineItemFunc                 func(ctx context.Context, cartID, variantID string, quantity int) (*model.Cart, error)
	UpdateLineItemFunc              func(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error)
	DeleteLineItemFunc              func(ctx context.Context, cartID, lineID string) (*model.Cart, error)
	ListShippingOptionsFunc         func(ctx context.Context, cartID string) ([]model.ShippingOption, error)
	AddShippingMethodFunc           func(ctx context.Context, cartID, optionID string) (*model.Cart, error)
	CreatePaymentCollectionFunc     func(ctx context.Context, req *PaymentCollectionRequest) (*model.PaymentCollection, error)
	CreateCartPaymentCollectionFunc func(ctx context.Context, cartID string, req *PaymentCollectionRequest) (*model.PaymentCollection, error)
	InitiatePaymentSessionFunc      func(ctx context.Context, collectionID, providerID string) (*model.PaymentCollection, error)
	CompleteCartFunc                func(ctx context.Context, cartID string) (*model.Completion, error)
	RetrieveOrderFunc               func(ctx context.Context, orderID string) (*model.Order, error)

	mu    sync.Mutex
	calls []string
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

// Calls returns the recorded method names in call order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

// ListRegions calls the configured ListRegionsFunc or returns no regions.
func (m *Mock) ListRegions(ctx context.Context) ([]model.Region, error) {
	m.record("ListRegions")
	if m.ListRegionsFunc != nil {
		return m.ListRegionsFunc(ctx)
	}
	return nil, nil
}

// CreateCart calls the configured CreateCartFunc or returns an error.
func (m *Mock) CreateCart(ctx context.Context, req *CreateCartRequest) (*model.Cart, error) {
	m.record("CreateCart")
	if m.CreateCartFunc != nil {
		return m.CreateCartFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// RetrieveCart calls the configured RetrieveCartFunc or returns an error.
func (m *Mock) RetrieveCart(ctx context.Context, cartID string) (*model.Cart, error) {
	m.record("RetrieveCart")
	if m.RetrieveCartFunc != nil {
		return m.RetrieveCartFunc(ctx, cartID)
	}
	return nil, model.NewNotFoundError("cart")
}

// UpdateCart calls the configured UpdateCartFunc or returns an error.
func (m *Mock) UpdateCart(ctx context.Context, cartID string, req *UpdateCartRequest) (*model.Cart, error) {
	m.record("UpdateCart")
	if m.UpdateCartFunc != nil {
		return m.UpdateCartFunc(ctx, cartID, req)
	}
	return nil, model.NewNotFoundError("cart")
}

// AddLineItem calls the configured AddLineItemFunc or returns an error.
func (m *Mock) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*model.Cart, error) {
	m.record("AddLineItem")
	if m.AddLineItemFunc != nil {
		return m.AddLineItemFunc(ctx, cartID, variantID, quantity)
	}
	return nil, model.NewNotFoundError("cart")
}

// UpdateLineItem calls the configured UpdateLineItemFunc or returns an error.
func (m *Mock) UpdateLineItem(ctx context.Context, cartID, lineID string, quantity int) (*model.Cart, error) {
	m.record("UpdateLineItem")
	if m.UpdateLineItemFunc != nil {
		return m.UpdateLineItemFunc(ctx, cartID, lineID, quantity)
	}
	return nil, model.NewNotFoundError("line item")
}

// DeleteLineItem calls the configured DeleteLineItemFunc or returns an error.
func (m *Mock) DeleteLineItem(ctx context.Context, cartID, lineID string) (*model.Cart, error) {
	m.record("DeleteLineItem")
	if m.DeleteLineItemFunc != nil {
		return m.DeleteLineItemFunc(ctx, cartID, lineID)
	}
	return nil, model.NewNotFoundError("line item")
}

// ListShippingOptions calls the configured ListShippingOptionsFunc or returns none.
func (m *Mock) ListShippingOptions(ctx context.Context, cartID string) ([]model.ShippingOption, error) {
	m.record("ListShippingOptions")
	if m.ListShippingOptionsFunc != nil {
		return m.ListShippingOptionsFunc(ctx, cartID)
	}
	return nil, nil
}

// AddShippingMethod calls the configured AddShippingMethodFunc or returns an error.
func (m *Mock) AddShippingMethod(ctx context.Context, cartID, optionID string) (*model.Cart, error) {
	m.record("AddShippingMethod")
	if m.AddShippingMethodFunc != nil {
		return m.AddShippingMethodFunc(ctx, cartID, optionID)
	}
	return nil, model.NewNotFoundError("shipping option")
}

// CreatePaymentCollection calls the configured CreatePaymentCollectionFunc or returns an error.
func (m *Mock) CreatePaymentCollection(ctx context.Context, req *PaymentCollectionRequest) (*model.PaymentCollection, error) {
	m.record("CreatePaymentCollection")
	if m.CreatePaymentCollectionFunc != nil {
		return m.CreatePaymentCollectionFunc(ctx, req)
	}
	return nil, model.NewNotFoundError("payment collection")
}

// CreateCartPaymentCollection calls the configured CreateCartPaymentCollectionFunc or returns an error.
func (m *Mock) CreateCartPaymentCollection(ctx context.Context, cartID string, req *PaymentCollectionRequest) (*model.PaymentCollection, error) {
	m.record("CreateCartPaymentCollection")
	if m.CreateCartPaymentCollectionFunc != nil {
		return m.CreateCartPaymentCollectionFunc(ctx, cartID, req)
	}
	return nil, model.NewNotFoundError("payment collection")
}

// InitiatePaymentSession calls the configured InitiatePaymentSessionFunc or returns an error.
func (m *Mock) InitiatePaymentSession(ctx context.Context, collectionID, providerID string) (*model.PaymentCollection, error) {
	m.record("InitiatePaymentSession")
	if m.InitiatePaymentSessionFunc != nil {
		return m.InitiatePaymentSessionFunc(ctx, collectionID, providerID)
	}
	return nil, model.NewNotFoundError("payment collection")
}

// CompleteCart calls the configured CompleteCartFunc or returns an error.
func (m *Mock) CompleteCart(ctx context.Context, cartID string) (*model.Completion, error) {
	m.record("CompleteCart")
	if m.CompleteCartFunc != nil {
		return m.CompleteCartFunc(ctx, cartID)
	}
	return nil, model.NewNotFoundError("cart")
}

// RetrieveOrder calls the configured RetrieveOrderFunc or returns an error.
func (m *Mock) RetrieveOrder(ctx context.Context, orderID string) (*model.Order, error) {
	m.record("RetrieveOrder")
	if m.RetrieveOrderFunc != nil {
		return m.RetrieveOrderFunc(ctx, orderID)
	}
	return nil, model.NewNotFoundError("order")
}

// Verify Mock implements Backend interface at compile time.
var _ Backend = (*Mock)(nil)
