package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidInput   = errors.New("invalid input")
	ErrRateLimited    = errors.New("rate limited")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")
)

// AppError represents a structured application error with HTTP status mapping.
// Code is the classified outcome written to the wire; Details carries optional
// machine-readable context (e.g. remaining availability on OUT_OF_STOCK).
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Status  int            `json:"-"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ItemNotFound creates a 404 error for a missing inventory item.
func ItemNotFound(itemID string) *AppError {
	return &AppError{
		Code:    "ITEM_NOT_FOUND",
		Message: fmt.Sprintf("item %s not found", itemID),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// ReservationNotFound creates a 404 error for a missing reservation. It also
// covers ownership mismatches: a caller probing another user's reservation id
// receives the same response as for a nonexistent one.
func ReservationNotFound(reservationID string) *AppError {
	return &AppError{
		Code:    "RESERVATION_NOT_FOUND",
		Message: fmt.Sprintf("reservation %s not found", reservationID),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// ItemExists creates a 409 error for a duplicate item id.
func ItemExists(itemID string) *AppError {
	return &AppError{
		Code:    "ITEM_EXISTS",
		Message: fmt.Sprintf("item %s already exists", itemID),
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// OutOfStock creates a 409 error reporting the availability observed at read
// time. The value may already be stale when the caller sees it.
func OutOfStock(itemID string, available int) *AppError {
	return &AppError{
		Code:    "OUT_OF_STOCK",
		Message: fmt.Sprintf("insufficient stock for item %s", itemID),
		Details: map[string]any{"available": available},
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// InvalidQuantity creates a 400 error for a quantity outside the allowed band.
func InvalidQuantity(min, max int) *AppError {
	return &AppError{
		Code:    "INVALID_QUANTITY",
		Message: fmt.Sprintf("qty must be between %d and %d", min, max),
		Details: map[string]any{"min": min, "max": max},
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Expired creates a 409 error for an operation on an expired reservation.
func Expired(reservationID string) *AppError {
	return &AppError{
		Code:    "EXPIRED",
		Message: fmt.Sprintf("reservation %s has expired", reservationID),
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Cancelled creates a 409 error for confirming a cancelled reservation.
func Cancelled(reservationID string) *AppError {
	return &AppError{
		Code:    "CANCELLED",
		Message: fmt.Sprintf("reservation %s was cancelled", reservationID),
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// AlreadyConfirmed creates a 409 error for repeating a confirm, or for
// cancelling a reservation whose stock has already been consumed.
func AlreadyConfirmed(reservationID string) *AppError {
	return &AppError{
		Code:    "ALREADY_CONFIRMED",
		Message: fmt.Sprintf("reservation %s is already confirmed", reservationID),
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// AlreadyCancelled creates a 409 error for repeating a cancel.
func AlreadyCancelled(reservationID string) *AppError {
	return &AppError{
		Code:    "ALREADY_CANCELLED",
		Message: fmt.Sprintf("reservation %s is already cancelled", reservationID),
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// InvalidIdempotencyKey creates a 400 error for a malformed Idempotency-Key header.
func InvalidIdempotencyKey(message string) *AppError {
	return &AppError{
		Code:    "INVALID_IDEMPOTENCY_KEY",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Validation creates a 400 error for request-shape problems (malformed JSON,
// oversize bodies, bad query parameters). Field-level failures go through the
// validator package instead.
func Validation(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// UnsupportedMedia creates a 415 error for non-JSON request bodies.
func UnsupportedMedia() *AppError {
	return &AppError{
		Code:    "UNSUPPORTED_MEDIA_TYPE",
		Message: "Content-Type must be application/json",
		Status:  http.StatusUnsupportedMediaType,
		Err:     ErrInvalidInput,
	}
}

// RateLimited creates a 429 error with a retry hint in seconds.
func RateLimited(retryAfter int) *AppError {
	return &AppError{
		Code:    "RATE_LIMITED",
		Message: "too many requests",
		Details: map[string]any{"retryAfter": retryAfter},
		Status:  http.StatusTooManyRequests,
		Err:     ErrRateLimited,
	}
}

// Internal creates a 500 error. The wrapped cause is logged server-side and
// never serialized to the client.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Unavailable creates a 503 error for datastore health failures.
func Unavailable(err error) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: "service temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
