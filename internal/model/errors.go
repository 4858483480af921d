package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrSelectionRequired = errors.New("variant selection required")
	ErrPending           = errors.New("operation already in flight")
	ErrNetwork           = errors.New("network error")
	ErrTimeout           = errors.New("timeout")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUpstreamError     = errors.New("upstream error")
	ErrRateLimited       = errors.New("rate limited")
	ErrQueueClosed       = errors.New("queue closed")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
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

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewOutOfStockError creates a 409 error for a quantity that would exceed inventory.
func NewOutOfStockError(product string, available int) *APIError {
	return &APIError{
		Code:       "OUT_OF_STOCK",
		Message:    fmt.Sprintf("%s: only %d available", product, available),
		StatusCode: 409,
		Err:        ErrOutOfStock,
	}
}

// NewSelectionRequiredError creates a 422 error for a variant product without a selected variant.
func NewSelectionRequiredError(product string) *APIError {
	return &APIError{
		Code:       "SELECTION_REQUIRED",
		Message:    fmt.Sprintf("%s: select an option first", product),
		StatusCode: 422,
		Err:        ErrSelectionRequired,
	}
}

// NewConflictError creates a 409 error for a control that is still waiting on its last operation.
func NewConflictError(reason string) *APIError {
	return &APIError{
		Code:       "OPERATION_PENDING",
		Message:    reason,
		StatusCode: 409,
		Err:        ErrPending,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewNetworkError creates a 503 error for transport failures talking to the cart store.
func NewNetworkError(service string, err error) *APIError {
	return &APIError{
		Code:       "NETWORK_ERROR",
		Message:    fmt.Sprintf("%s unreachable, please retry", service),
		StatusCode: 503,
		Err:        fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewTimeoutError creates a 504 error for a cart mutation that did not settle in time.
func NewTimeoutError(operation string) *APIError {
	return &APIError{
		Code:       "TIMEOUT",
		Message:    fmt.Sprintf("%s timed out, please retry", operation),
		StatusCode: 504,
		Err:        ErrTimeout,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// NormalizeTransportError maps context and net failures onto the cart taxonomy.
// Errors that already carry an APIError are returned unchanged.
func NormalizeTransportError(service string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(service)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewTimeoutError(service)
		}
		return NewNetworkError(service, err)
	}
	return err
}

// IsTransient reports whether a failure is worth a manual retry by the shopper.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}
