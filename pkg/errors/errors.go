package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTransport            = errors.New("upstream request failed")
	ErrUnsupported          = errors.New("not implemented")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInternal             = errors.New("internal error")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
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

// NotFound creates a 404 error. Views use it to render "not found" rather
// than a retry prompt.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error for input rejected before any network call.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unsupported creates a 501 error for a capability that is defined but not
// implemented.
func Unsupported(capability string) *AppError {
	return &AppError{
		Code:    "NOT_IMPLEMENTED",
		Message: fmt.Sprintf("%s is not implemented", capability),
		Status:  http.StatusNotImplemented,
		Err:     ErrUnsupported,
	}
}

// ConfirmationRequired creates a 428 error for destructive actions issued
// without explicit confirmation.
func ConfirmationRequired(action string) *AppError {
	return &AppError{
		Code:    "CONFIRMATION_REQUIRED",
		Message: fmt.Sprintf("%s requires explicit confirmation", action),
		Status:  http.StatusPreconditionRequired,
		Err:     ErrConfirmationRequired,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// TransportError reports a failed round trip to the upstream API: either a
// non-2xx status or a network failure (Status == 0).
type TransportError struct {
	Status  int
	Message string
	Err     error
}

// Transport creates a TransportError.
func Transport(status int, message string, err error) *TransportError {
	return &TransportError{Status: status, Message: message, Err: err}
}

func (e *TransportError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("status %d: %s", e.Status, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", msg, e.Err)
	}
	return "transport: " + msg
}

// Unwrap exposes both ErrTransport and the underlying cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// IsRetryable reports whether err is a transient upstream failure: a network
// error, a 429, or a 5xx other than 501.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *TransportError
	if !errors.As(err, &te) {
		var ne net.Error
		return errors.As(err, &ne)
	}

	switch {
	case te.Status == 0:
		return true
	case te.Status == http.StatusTooManyRequests:
		return true
	case te.Status >= 500 && te.Status != http.StatusNotImplemented:
		return true
	default:
		return false
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
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
