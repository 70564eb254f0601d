// Package handler exposes checkout operations over REST and MCP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/session"
)

// Checkout is the set of checkout operations the handlers call.
// *checkout.Service implements it.
type Checkout interface {
	GetOrCreateCart(ctx context.Context, sess session.Session, locale string) (*model.Cart, error)
	RetrieveCart(ctx context.Context, sess session.Session) (*model.Cart, error)
	AddLineItem(ctx context.Context, sess session.Session, locale, variantID string, quantity int) (*model.Cart, error)
	UpdateLineItem(ctx context.Context, sess session.Session, lineID string, quantity int) (*model.Cart, error)
	RemoveLineItem(ctx context.Context, sess session.Session, lineID string) (*model.Cart, error)
	ApplyPromotionCodes(ctx context.Context, sess session.Session, codes []string) (*model.Cart, error)
	SetAddresses(ctx context.Context, sess session.Session, form checkout.AddressForm) (*model.Cart, error)
	ListShippingOptions(ctx context.Context, sess session.Session) ([]model.ShippingOption, error)
	SetShippingMethod(ctx context.Context, sess session.Session, cartID, optionID string) (*model.Cart, error)
	SelectPaymentMethod(ctx context.Context, sess session.Session, provider string) (*model.Cart, error)
	PlaceOrder(ctx context.Context, sess session.Session, cartID string) (*checkout.Outcome, error)
	RetrieveOrder(ctx context.Context, sess session.Session, orderID string) (*model.Order, error)
	ClearCart(sess session.Session)
}

// RegionPurger drops cached region lookups.
type RegionPurger interface {
	Purge()
}

// Config holds handler settings.
type Config struct {
	// AdminToken guards the admin endpoints. Empty disables them.
	AdminToken string

	// Cookies is used when a request reaches a handler without a session
	// in its context.
	Cookies session.CookieOptions
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	checkout Checkout
	regions  RegionPurger
	cfg      Config
	logger   *slog.Logger
}

// New creates a new Handler. regions may be nil, which disables region purges.
func New(c Checkout, regions RegionPurger, cfg Config, logger *slog.Logger) *Handler {
	return &Handler{
		checkout: c,
		regions:  regions,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Cart
	mux.HandleFunc("GET /store/{country}/cart", h.handleGetCart)
	mux.HandleFunc("POST /store/{country}/cart/line-items", h.handleAddLineItem)
	mux.HandleFunc("POST /store/cart/line-items/{line}", h.handleUpdateLineItem)
	mux.HandleFunc("DELETE /store/cart/line-items/{line}", h.handleRemoveLineItem)
	mux.HandleFunc("POST /store/cart/promotions", h.handleApplyPromotions)
	mux.HandleFunc("DELETE /store/cart", h.handleClearCart)

	// Checkout steps
	mux.HandleFunc("POST /store/cart/addresses", h.handleSetAddresses)
	mux.HandleFunc("GET /store/cart/shipping-options", h.handleListShippingOptions)
	mux.HandleFunc("POST /store/cart/shipping-methods", h.handleSetShippingMethod)
	mux.HandleFunc("POST /store/cart/payment", h.handleSelectPayment)
	mux.HandleFunc("GET /store/cart/steps", h.handleSteps)
	mux.HandleFunc("POST /store/cart/complete", h.handlePlaceOrder)
	mux.HandleFunc("GET /orders/{id}", h.handleGetOrder)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	mux.HandleFunc("POST /admin/regions/purge", h.handlePurgeRegions)

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// sessionFor returns the request's session, resolving it from cookies or the
// session header when no middleware did.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) session.Session {
	if sess := session.FromContext(r.Context()); sess != nil {
		return sess
	}
	return session.FromRequest(w, r, h.cfg.Cookies)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.apiError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// apiError finds the APIError in err's chain. Anything else is logged and
// reported as a generic internal error.
func (h *Handler) apiError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= http.StatusInternalServerError {
			h.logger.Error("request failed", slog.String("error", err.Error()))
		}
		return apiErr
	}
	h.logger.Error("internal error", slog.String("error", err.Error()))
	return &model.APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return model.NewValidationError("body", "invalid JSON")
}
