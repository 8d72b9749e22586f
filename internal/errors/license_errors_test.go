package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiscli/pkg/contracts/domain"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid format", ErrInvalidFormat, domain.ErrCodeInvalidFormat},
		{"wrapped checksum", fmt.Errorf("decode: %w", ErrChecksumMismatch), domain.ErrCodeChecksumMismatch},
		{"revoked", ErrRevoked, domain.ErrCodeRevoked},
		{"expired", ErrExpired, domain.ErrCodeExpiredLicense},
		{"device", ErrDeviceMismatch, domain.ErrCodeDeviceMismatch},
		{"duration", ErrInvalidDuration, domain.ErrCodeInvalidDuration},
		{"revoked key", ErrRevokedKey, domain.ErrCodeRevokedKey},
		{"storage", fmt.Errorf("%w: disk full", ErrStorageFailure), domain.ErrCodeStorageFailure},
		{"unknown", fmt.Errorf("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestMapLicenseError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"device mismatch", ErrDeviceMismatch, http.StatusConflict, domain.ErrCodeDeviceMismatch},
		{"expired", fmt.Errorf("validate: %w", ErrExpired), http.StatusForbidden, domain.ErrCodeExpiredLicense},
		{"not activated", ErrNoActivation, http.StatusPreconditionRequired, domain.ErrCodeNotActivated},
		{"api error", ErrRateLimitExceeded, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/license/status", nil)
			rec := httptest.NewRecorder()

			require.NoError(t, render.Render(rec, req, MapLicenseError(tt.err, "trace-1")))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["error_code"])
			assert.Equal(t, "trace-1", body["trace_id"])
			assert.EqualValues(t, tt.wantStatus, body["status"])
		})
	}
}

func TestErrorHandlerRecoverer(t *testing.T) {
	h := NewErrorHandler(nil, true)
	handler := h.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "kaboom")
}

func TestAPIErrorCopies(t *testing.T) {
	detailed := ErrValidationFailed.With("token is required", []ValidationError{{Field: "token", Message: "token is required"}})
	assert.Equal(t, "VALIDATION_FAILED", detailed.ErrorCode)
	assert.Equal(t, "token is required", detailed.Message)
	assert.NotNil(t, detailed.Details)

	kept := ErrInvalidRequest.With("", "unexpected EOF")
	assert.Equal(t, "Invalid request format", kept.Message)

	forbidden := ErrWebSocketUpgrade.WithStatus(http.StatusForbidden)
	assert.Equal(t, http.StatusForbidden, forbidden.StatusCode)

	// predefined values stay untouched
	assert.Equal(t, "Request validation failed", ErrValidationFailed.Message)
	assert.Nil(t, ErrValidationFailed.Details)
	assert.Equal(t, http.StatusBadRequest, ErrWebSocketUpgrade.StatusCode)
}
