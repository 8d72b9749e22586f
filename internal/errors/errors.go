package errors

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// Predefined error types for common scenarios
var (
	// 400 Bad Request
	ErrInvalidRequest   = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrValidationFailed = New(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed")

	// 401 Unauthorized
	ErrUnauthorized = New(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")

	// 429 Too Many Requests
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")

	// 500 Internal Server Error
	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred while processing your request.")

	// Upgrade failures are reported with the status the handshake chose
	ErrWebSocketUpgrade = New(http.StatusBadRequest, "WEBSOCKET_UPGRADE_FAILED", "WebSocket upgrade failed")
)

// With returns a copy of e carrying message and details. An empty message
// keeps the predefined one.
func (e *APIError) With(message string, details interface{}) *APIError {
	c := *e
	if message != "" {
		c.Message = message
	}
	c.Details = details
	return &c
}

// WithStatus returns a copy of e with a different status code
func (e *APIError) WithStatus(status int) *APIError {
	c := *e
	c.StatusCode = status
	return &c
}

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return ErrInvalidRequest.With("", err.Error())
}

