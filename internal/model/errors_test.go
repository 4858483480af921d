package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "without wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
			},
			want: "TEST_ERROR: something went wrong",
		},
		{
			name: "with wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
				Err:     errors.New("underlying cause"),
			},
			want: "TEST_ERROR: something went wrong (underlying cause)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	if got := (&APIError{Code: "TEST", Err: underlying}).Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
	if (&APIError{Code: "TEST"}).Unwrap() != nil {
		t.Error("Unwrap() should return nil when no wrapped error")
	}
}

// TestConstructors pins the code, status and shopper-facing message of each
// error the cart surfaces can return.
func TestConstructors(t *testing.T) {
	tests := []struct {
		name        string
		err         *APIError
		wantCode    string
		wantStatus  int
		wantMessage string
	}{
		{"not found", NewNotFoundError("cart line"), "NOT_FOUND", 404, "cart line not found"},
		{"out of stock", NewOutOfStockError("Acme Mug", 2), "OUT_OF_STOCK", 409, "Acme Mug: only 2 available"},
		{"selection required", NewSelectionRequiredError("Hoodie"), "SELECTION_REQUIRED", 422, "Hoodie: select an option first"},
		{"pending", NewConflictError("line l1 has an operation in flight"), "OPERATION_PENDING", 409, "line l1 has an operation in flight"},
		{"validation", NewValidationError("quantity", "must be positive"), "VALIDATION_ERROR", 400, "invalid quantity: must be positive"},
		{"unauthorized", NewUnauthorizedError("invalid API key"), "UNAUTHORIZED", 401, "invalid API key"},
		{"upstream", NewUpstreamError("WooCommerce", errors.New("502")), "UPSTREAM_ERROR", 502, "WooCommerce request failed"},
		{"network", NewNetworkError("cart store", errors.New("reset")), "NETWORK_ERROR", 503, "cart store unreachable, please retry"},
		{"timeout", NewTimeoutError("add to cart"), "TIMEOUT", 504, "add to cart timed out, please retry"},
		{"internal", NewInternalError(errors.New("nil map")), "INTERNAL_ERROR", 500, "an internal error occurred"},
		{"rate limited", NewRateLimitError("WooCommerce"), "RATE_LIMITED", 429, "WooCommerce rate limit exceeded, please retry later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", tt.err.StatusCode, tt.wantStatus)
			}
			if tt.err.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMessage)
			}
		})
	}
}

func TestWrappedCausePreserved(t *testing.T) {
	cause := errors.New("connection reset by peer")

	upstream := NewUpstreamError("WooCommerce", cause)
	if !strings.Contains(upstream.Error(), cause.Error()) {
		t.Errorf("Error() = %q, want cause included", upstream.Error())
	}

	internal := NewInternalError(cause)
	if !errors.Is(internal, cause) {
		t.Error("internal error should wrap its cause")
	}
}

func TestPendingIsNotOutOfStock(t *testing.T) {
	// Both are 409; callers tell them apart by sentinel.
	if errors.Is(NewConflictError("x"), ErrOutOfStock) {
		t.Error("pending conflict must not match ErrOutOfStock")
	}
	if errors.Is(NewOutOfStockError("x", 0), ErrPending) {
		t.Error("out of stock must not match ErrPending")
	}
}

// TestErrorsIs verifies that errors.Is() works correctly with all sentinel errors.
// This is critical for handler code that uses errors.Is() to determine response codes.
func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		sentinel error
	}{
		{"NotFound", NewNotFoundError("x"), ErrNotFound},
		{"Validation", NewValidationError("x", "y"), ErrInvalidRequest},
		{"Unauthorized", NewUnauthorizedError("x"), ErrUnauthorized},
		{"Upstream", NewUpstreamError("x", nil), ErrUpstreamError},
		{"OutOfStock", NewOutOfStockError("x", 0), ErrOutOfStock},
		{"SelectionRequired", NewSelectionRequiredError("x"), ErrSelectionRequired},
		{"Pending", NewConflictError("x"), ErrPending},
		{"Network", NewNetworkError("x", nil), ErrNetwork},
		{"Timeout", NewTimeoutError("x"), ErrTimeout},
		{"RateLimit", NewRateLimitError("x"), ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%T, %v) = false, want true", tt.err, tt.sentinel)
			}
		})
	}
}

// TestAPIErrorImplementsError verifies the error interface is properly implemented.
func TestAPIErrorImplementsError(t *testing.T) {
	var err error = &APIError{Code: "TEST", Message: "test"}
	_ = err.Error() // Should compile and not panic

	// Verify it works with fmt.Errorf wrapping
	wrapped := fmt.Errorf("outer: %w", err)
	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) {
		t.Error("errors.As should find *APIError in wrapped error")
	}
}

type timeoutNetErr struct{ timeout bool }

func (e timeoutNetErr) Error() string { return "net failure" }
func (e timeoutNetErr) Timeout() bool { return e.timeout }
func (e timeoutNetErr) Temporary() bool { return false }

var _ net.Error = timeoutNetErr{}

func TestNormalizeTransportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrTimeout},
		{"net timeout", timeoutNetErr{timeout: true}, ErrTimeout},
		{"net refused", timeoutNetErr{timeout: false}, ErrNetwork},
		{"api error kept", NewOutOfStockError("x", 0), ErrOutOfStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTransportError("cart store", tt.err)
			if !errors.Is(got, tt.sentinel) {
				t.Errorf("NormalizeTransportError() = %v, want wrapping %v", got, tt.sentinel)
			}
		})
	}

	if NormalizeTransportError("cart store", nil) != nil {
		t.Error("NormalizeTransportError(nil) should be nil")
	}

	plain := errors.New("boom")
	if got := NormalizeTransportError("cart store", plain); got != plain {
		t.Errorf("plain errors should pass through, got %v", got)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(NewTimeoutError("add")) {
		t.Error("timeout should be transient")
	}
	if !IsTransient(NewNetworkError("store", errors.New("reset"))) {
		t.Error("network error should be transient")
	}
	if IsTransient(NewOutOfStockError("x", 0)) {
		t.Error("out of stock is not transient")
	}
	if IsTransient(NewNotFoundError("line")) {
		t.Error("not found is not transient")
	}
}
