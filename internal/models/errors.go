package models

import (
	"errors"
	"fmt"
)

var (
	ErrAttemptNotFound   = errors.New("checkout attempt not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrNoAnswer          = errors.New("customer has not answered the payment confirmation")
)

// InvalidCartError means there is nothing valid to charge. Caller bug, not retryable.
type InvalidCartError struct {
	Reason string
}

func (e *InvalidCartError) Error() string {
	return "invalid cart: " + e.Reason
}

// GatewayUnavailableError means the provider credential is missing or rejected.
type GatewayUnavailableError struct {
	Reason string
}

func (e *GatewayUnavailableError) Error() string {
	return "payment gateway unavailable: " + e.Reason
}

// GatewayRequestError carries the provider's message for a failed request.
type GatewayRequestError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment gateway %s failed (%d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("payment gateway %s failed: %s", e.Op, e.Message)
}

func (e *GatewayRequestError) Unwrap() error { return e.Err }

// RedirectOpenError means the external browser context could not be opened.
type RedirectOpenError struct {
	Err error
}

func (e *RedirectOpenError) Error() string {
	return fmt.Sprintf("could not open payment page: %v", e.Err)
}

func (e *RedirectOpenError) Unwrap() error { return e.Err }

// Steps reported in PersistenceError.Op.
const (
	OpSaveAttempt = "save checkout attempt"
	OpAcquireLock = "acquire finalize lock"
	OpLoadOrder   = "load order"
	OpCreateOrder = "create order"
	OpClearCart   = "clear cart"
)

// PersistenceError means a storage step of checkout failed. Before OpClearCart
// the cart is left populated so the finalize can be retried without paying
// again; at OpClearCart the order is already stored.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Retryable reports whether re-initiating the failed step can succeed without operator action.
func Retryable(err error) bool {
	var (
		cartErr     *InvalidCartError
		unavailable *GatewayUnavailableError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &cartErr), errors.As(err, &unavailable):
		return false
	default:
		return true
	}
}

// UserMessage is the single message shown to the customer for a failed checkout step.
func UserMessage(err error) string {
	var (
		cartErr     *InvalidCartError
		unavailable *GatewayUnavailableError
		request     *GatewayRequestError
		redirect    *RedirectOpenError
		persist     *PersistenceError
	)
	switch {
	case errors.As(err, &cartErr):
		return "Your cart has nothing to pay for."
	case errors.As(err, &unavailable):
		return "Payments are temporarily unavailable. Please try again later."
	case errors.As(err, &request):
		return "We could not start the payment. Please try checking out again."
	case errors.As(err, &redirect):
		return "We could not open the payment page. Please try again."
	case errors.As(err, &persist) && persist.Op == OpClearCart:
		return "Your order has been placed, but we could not update your cart. Please refresh your cart."
	case errors.As(err, &persist) && persist.Op == OpSaveAttempt:
		return "We could not start the payment. Please try checking out again."
	case errors.As(err, &persist):
		return "Your payment went through but we could not save your order. Please retry; you will not be charged again."
	case errors.Is(err, ErrAttemptNotFound):
		return "This checkout has expired. Please start checkout again."
	default:
		return "Something went wrong. Please try again."
	}
}
