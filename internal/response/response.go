// Package response provides standardized HTTP response helpers.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Error codes returned in the error envelope.
const (
	ErrCodeValidationError  = "VALIDATION_ERROR"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeEventNotFound    = "EVENT_NOT_FOUND"
	ErrCodeReadOnly         = "READ_ONLY"
	ErrCodeAccountExpired   = "ACCOUNT_EXPIRED"
	ErrCodeBackendDisabled  = "BACKEND_DISABLED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUpstreamError    = "UPSTREAM_ERROR"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// APIError represents a structured API error response.
type APIError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"requestId,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps an APIError in the standard response format.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
// The request id is taken from the X-Request-ID response header when set.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	JSON(w, status, ErrorResponse{
		Error: APIError{
			Code:      code,
			Message:   message,
			RequestID: w.Header().Get("X-Request-ID"),
			Details:   details,
		},
	})
}

// WriteValidationError writes a 400 validation error.
func WriteValidationError(w http.ResponseWriter, message string, details map[string]interface{}) {
	WriteErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationError, message, details)
}

// WriteUnauthorized writes a 401 for a missing or invalid API token.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="calmerge"`)
	WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "API token missing or invalid")
}

// WriteNotFound writes a 404 for the named resource.
func WriteNotFound(w http.ResponseWriter, what string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, what+" not found")
}

// WriteRateLimited writes a 429 with a Retry-After header.
func WriteRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorWithDetails(w, http.StatusTooManyRequests, ErrCodeRateLimited,
		"Too many requests, please slow down",
		map[string]interface{}{"retry_after_seconds": retryAfter})
}

// WriteUpstreamError writes a 502 for a provider failure.
func WriteUpstreamError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, ErrCodeUpstreamError, message)
}

// WriteInternalError writes a 500 internal error.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}
