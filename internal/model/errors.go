package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels wrapped by the APIError constructors, for errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrPaymentFailed  = errors.New("payment failed")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")
)

// ErrorKind is the stable classification of a backend failure.
// The backend client assigns it once when it decodes an error response,
// so call sites switch on the kind instead of matching message text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindRateLimited
	KindUpstream
	KindNotAllowed
	// KindPaymentNotInitiated is the backend race where cart completion runs
	// before a payment collection exists for the cart.
	KindPaymentNotInitiated
)

var kindNames = map[ErrorKind]string{
	KindUnknown:             "unknown",
	KindValidation:          "validation",
	KindNotFound:            "not_found",
	KindUnauthorized:        "unauthorized",
	KindRateLimited:         "rate_limited",
	KindUpstream:            "upstream",
	KindNotAllowed:          "not_allowed",
	KindPaymentNotInitiated: "payment_not_initiated",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// APIError is the error every checkout operation returns to its surface.
// Code and Message are safe to show the shopper; Err is kept for logs.
type APIError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"` // HTTP status, not serialized
	Kind       ErrorKind `json:"-"`
	Err        error     `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of the first APIError in err's chain.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

func newAPIError(status int, kind ErrorKind, code, message string, err error) *APIError {
	return &APIError{Code: code, Message: message, StatusCode: status, Kind: kind, Err: err}
}

// NewNotFoundError reports a missing cart, order or region.
func NewNotFoundError(resource string) *APIError {
	return newAPIError(http.StatusNotFound, KindNotFound, "NOT_FOUND",
		fmt.Sprintf("%s not found", resource), ErrNotFound)
}

// NewValidationError rejects caller input before any backend call is made.
func NewValidationError(field, reason string) *APIError {
	return newAPIError(http.StatusBadRequest, KindValidation, "VALIDATION_ERROR",
		fmt.Sprintf("invalid %s: %s", field, reason), ErrInvalidRequest)
}

// NewMissingFieldError names a required identifier that was empty.
func NewMissingFieldError(field string) *APIError {
	return newAPIError(http.StatusBadRequest, KindValidation, "VALIDATION_ERROR",
		fmt.Sprintf("%s is required", field), ErrInvalidRequest)
}

func NewUnauthorizedError(reason string) *APIError {
	return newAPIError(http.StatusUnauthorized, KindUnauthorized, "UNAUTHORIZED", reason, ErrUnauthorized)
}

// NewUpstreamError wraps a transport or decoding failure talking to service.
func NewUpstreamError(service string, err error) *APIError {
	return newAPIError(http.StatusBadGateway, KindUpstream, "UPSTREAM_ERROR",
		fmt.Sprintf("%s request failed", service), fmt.Errorf("%w: %v", ErrUpstreamError, err))
}

// NewPaymentError is a terminal checkout failure the shopper has to act on.
// code names the required action, e.g. PAYMENT_RESELECT_REQUIRED.
func NewPaymentError(code, reason string) *APIError {
	return newAPIError(http.StatusPaymentRequired, KindUnknown, code, reason, ErrPaymentFailed)
}

// NewInternalError hides err behind a generic message.
func NewInternalError(err error) *APIError {
	return newAPIError(http.StatusInternalServerError, KindUnknown, "INTERNAL_ERROR",
		"an internal error occurred", err)
}

func NewRateLimitError(service string) *APIError {
	return newAPIError(http.StatusTooManyRequests, KindRateLimited, "RATE_LIMITED",
		fmt.Sprintf("%s rate limit exceeded, please retry later", service), ErrRateLimited)
}
