package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/logger"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/validator"
)

// Response is the JSON envelope used on every endpoint: successes carry
// ok=true plus data (and optional meta), failures carry ok=false plus error.
type Response struct {
	OK    bool           `json:"ok"`
	Data  any            `json:"data,omitempty"`
	Meta  any            `json:"meta,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// ListMeta carries the row count for unpaginated list responses.
type ListMeta struct {
	Count int `json:"count"`
}

// WriteJSON writes a JSON response with the given status code.
// If encoding fails, the error is logged but headers are already sent so nothing can be done.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope with the given payload.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{OK: true, Data: data})
}

// WriteSuccessMeta writes a success envelope with payload and meta.
func WriteSuccessMeta(w http.ResponseWriter, status int, data, meta any) {
	WriteJSON(w, status, Response{OK: true, Data: data, Meta: meta})
}

// WriteError writes a standardized error envelope based on the error type.
// Classified outcomes (AppError) keep their code, message, and details;
// anything else is scrubbed to INTERNAL_ERROR. Internal errors are logged
// through the request-scoped logger when the logging middleware has been
// mounted, falling back to the provided logger otherwise.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}

	requestID := logger.RequestIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			l.ErrorContext(r.Context(), "internal error",
				slog.String("error", appErr.Error()),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
		} else {
			l.DebugContext(r.Context(), "request rejected",
				slog.String("code", appErr.Code),
				slog.Int("status", appErr.Status),
				slog.String("path", r.URL.Path),
			)
		}
		WriteJSON(w, appErr.Status, Response{
			Error: &ErrorResponse{
				Code:      appErr.Code,
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	// Unclassified errors never leak their message to the client.
	WriteJSON(w, status, Response{
		Error: &ErrorResponse{
			Code:      "INTERNAL_ERROR",
			Message:   "an internal error occurred",
			RequestID: requestID,
		},
	})
}

// WriteValidationError writes a VALIDATION_ERROR envelope. Field-level
// failures from the validator package land in details; other decode errors
// keep their message.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logger.RequestIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		details := make(map[string]any, len(valErr.Errors))
		for field, msg := range valErr.Fields() {
			details[field] = msg
		}
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      "VALIDATION_ERROR",
				Message:   "request validation failed",
				Details:   details,
				RequestID: requestID,
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{
			Code:      "VALIDATION_ERROR",
			Message:   err.Error(),
			RequestID: requestID,
		},
	})
}
