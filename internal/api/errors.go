// Package api provides the HTTP handlers of the feed ranking service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/feedrank/internal/middleware"
)

// Error codes used in the JSON error envelope.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request body.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeAuthFailed indicates missing or invalid credentials.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates an unknown route.
	ErrCodeNotFound = "not_found"

	// ErrCodeMethodNotAllowed indicates the route exists for other methods.
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// ErrCodePayloadTooLarge indicates the body or candidate set is too large.
	ErrCodePayloadTooLarge = "payload_too_large"

	// ErrCodeRateLimited indicates the rate limit was exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeUnavailable indicates a dependency is down or the request was cancelled.
	ErrCodeUnavailable = "service_unavailable"
)

// ErrorResponse is the body of every error: {"error": {"code": "...", "message": "..."}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes the JSON error envelope with status and records code for
// the access log.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	ctx = middleware.SetErrorCode(ctx, code)

	data, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeCodedError writes code with its mapped status.
func writeCodedError(w http.ResponseWriter, r *http.Request, code, message string) {
	WriteError(w, r.Context(), StatusCodeMapping(code), code, message)
}

// writeJSON writes v as a JSON body with status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// allowMethod rejects requests whose method is not method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	writeCodedError(w, r, ErrCodeMethodNotAllowed, "Method not allowed")
	return false
}

// NotFound handles unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeCodedError(w, r, ErrCodeNotFound, "The requested resource was not found")
}
