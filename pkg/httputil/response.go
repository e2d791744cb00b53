package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/utafrali/EcommerceGo/storefront/pkg/errors"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
	"github.com/utafrali/EcommerceGo/storefront/pkg/validator"
)

// Response is the JSON envelope for every API reply. Exactly one of Data and
// Error is set.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the body of a failed reply.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

const (
	codeInternal    = "INTERNAL_ERROR"
	codeUpstream    = "UPSTREAM_UNAVAILABLE"
	codeValidation  = "VALIDATION_ERROR"
	messageInternal = "an internal error occurred"
	messageUpstream = "the product catalog is unavailable, please retry later"
)

// WriteJSON encodes v with the given status. Encoding errors are dropped since
// the header has already gone out.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes v inside the data envelope.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteErrorCode writes an error envelope with an explicit code, tagged with
// the request's correlation id.
func WriteErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, Response{Error: &ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}})
}

// sentinelCodes maps bare sentinel errors to wire codes. An empty message
// echoes the error text.
var sentinelCodes = []struct {
	target  error
	code    string
	message string
}{
	{apperrors.ErrNotFound, "NOT_FOUND", "resource not found"},
	{apperrors.ErrUnauthorized, "UNAUTHORIZED", "unauthorized"},
	{apperrors.ErrInvalidInput, "INVALID_INPUT", ""},
	{apperrors.ErrUnsupported, "NOT_IMPLEMENTED", ""},
	{apperrors.ErrConfirmationRequired, "CONFIRMATION_REQUIRED", ""},
}

// classify maps err onto a status and error body.
func classify(err error) (int, ErrorResponse) {
	var (
		valErr       *validator.ValidationError
		appErr       *apperrors.AppError
		transportErr *apperrors.TransportError
	)
	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest, ErrorResponse{
			Code:    codeValidation,
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		}
	case errors.As(err, &appErr):
		return appErr.Status, ErrorResponse{Code: appErr.Code, Message: appErr.Message}
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, ErrorResponse{Code: codeUpstream, Message: messageUpstream}
	}

	for _, s := range sentinelCodes {
		if errors.Is(err, s.target) {
			msg := s.message
			if msg == "" {
				msg = err.Error()
			}
			return apperrors.HTTPStatus(err), ErrorResponse{Code: s.code, Message: msg}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Code: codeInternal, Message: messageInternal}
}

// WriteError renders err as an error envelope. Upstream failures are logged
// at warn and server faults at error, through the request-scoped logger when
// RequestLogger is mounted and fallback otherwise.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	status, body := classify(err)

	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}
	switch {
	case body.Code == codeUpstream:
		var transportErr *apperrors.TransportError
		errors.As(err, &transportErr)
		l.WarnContext(r.Context(), "upstream request failed",
			slog.String("error", err.Error()),
			slog.Int("upstream_status", transportErr.Status),
			slog.String("path", r.URL.Path),
		)
	case status >= http.StatusInternalServerError && status != http.StatusNotImplemented:
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	body.RequestID = logger.CorrelationIDFromContext(r.Context())
	WriteJSON(w, status, Response{Error: &body})
}

// QueryInt reads a non-negative integer query parameter, def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.InvalidInput(fmt.Sprintf("query parameter %q must be a non-negative integer", name))
	}
	return v, nil
}

// QueryFloat reads an optional non-negative number; nil means absent.
func QueryFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("query parameter %q must be a non-negative number", name))
	}
	return &v, nil
}

// QueryBool reports whether the parameter parses as true.
func QueryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
