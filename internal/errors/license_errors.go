package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"axiscli/pkg/contracts/domain"
)

// Token codec errors
var (
	// ErrInvalidFormat is returned when a token cannot be split or decoded.
	ErrInvalidFormat = errors.New("invalid token format")

	// ErrChecksumMismatch is returned when the token integrity tag does not
	// match the encoded payload.
	ErrChecksumMismatch = errors.New("token checksum mismatch")
)

// Validation errors
var (
	// ErrKeyNotFound is returned when the registry has no record for the key.
	ErrKeyNotFound = errors.New("license key not found")

	// ErrRevoked is returned when the registry record is revoked.
	ErrRevoked = errors.New("license revoked")

	// ErrExpired is returned when the registry record is past its expiry.
	ErrExpired = errors.New("license expired")

	// ErrDeviceMismatch is returned when the key is bound to another device.
	ErrDeviceMismatch = errors.New("license bound to a different device")

	// ErrNoActivation is returned when no local activation exists.
	ErrNoActivation = errors.New("license not activated")
)

// Lifecycle and storage errors
var (
	// ErrInvalidDuration is returned when a key is issued for zero or negative days.
	ErrInvalidDuration = errors.New("duration must be a positive number of days")

	// ErrNotFound is returned by the record store for absent keys.
	ErrNotFound = errors.New("key record not found")

	// ErrRevokedKey is returned when a lifecycle operation refuses a revoked key.
	ErrRevokedKey = errors.New("key is revoked")

	// ErrAlreadyExists is returned when creating a record for an existing key.
	ErrAlreadyExists = errors.New("key record already exists")

	// ErrInvalidKey is returned for key names outside A-Z, 0-9 and '-'.
	ErrInvalidKey = errors.New("invalid key name")

	// ErrStorageFailure wraps I/O failures on records, the registry or the
	// local activation file.
	ErrStorageFailure = errors.New("storage failure")

	// ErrChannelUnavailable wraps registry channel fetch and publish failures.
	ErrChannelUnavailable = errors.New("registry channel unavailable")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, 5+len(pd.Extensions))
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}
	for k, v := range pd.Extensions {
		data[k] = v
	}
	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// Code returns the domain error code for a license error, or an empty string.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidFormat):
		return domain.ErrCodeInvalidFormat
	case errors.Is(err, ErrChecksumMismatch):
		return domain.ErrCodeChecksumMismatch
	case errors.Is(err, ErrKeyNotFound):
		return domain.ErrCodeKeyNotFound
	case errors.Is(err, ErrRevoked):
		return domain.ErrCodeRevoked
	case errors.Is(err, ErrExpired):
		return domain.ErrCodeExpiredLicense
	case errors.Is(err, ErrDeviceMismatch):
		return domain.ErrCodeDeviceMismatch
	case errors.Is(err, ErrNoActivation):
		return domain.ErrCodeNotActivated
	case errors.Is(err, ErrInvalidDuration):
		return domain.ErrCodeInvalidDuration
	case errors.Is(err, ErrNotFound):
		return domain.ErrCodeNotFound
	case errors.Is(err, ErrRevokedKey):
		return domain.ErrCodeRevokedKey
	case errors.Is(err, ErrAlreadyExists):
		return domain.ErrCodeAlreadyExists
	case errors.Is(err, ErrInvalidKey):
		return domain.ErrCodeInvalidKey
	case errors.Is(err, ErrChannelUnavailable):
		return domain.ErrCodeChannelError
	case errors.Is(err, ErrStorageFailure):
		return domain.ErrCodeStorageFailure
	}
	return ""
}

type problemSpec struct {
	status int
	slug   string
	title  string
	detail string
}

var problemSpecs = map[string]problemSpec{
	domain.ErrCodeInvalidFormat:    {http.StatusBadRequest, "invalid-format", "Invalid License Token", "The license token is malformed. Paste the full token you received."},
	domain.ErrCodeChecksumMismatch: {http.StatusBadRequest, "checksum-mismatch", "License Token Corrupted", "The license token failed its integrity check. It may have been edited or truncated."},
	domain.ErrCodeKeyNotFound:      {http.StatusNotFound, "key-not-found", "License Key Not Found", "The license key is not present in the license registry."},
	domain.ErrCodeRevoked:          {http.StatusForbidden, "revoked", "License Revoked", "This license has been revoked."},
	domain.ErrCodeExpiredLicense:   {http.StatusForbidden, "expired", "License Expired", "Your license has expired. Please renew to continue."},
	domain.ErrCodeDeviceMismatch:   {http.StatusConflict, "device-mismatch", "License Bound To Another Device", "This license is already bound to a different device. Ask the issuer to reset the device binding."},
	domain.ErrCodeNotActivated:     {http.StatusPreconditionRequired, "not-activated", "License Not Activated", "No license has been activated. Please activate a license to continue."},
	domain.ErrCodeInvalidDuration:  {http.StatusBadRequest, "invalid-duration", "Invalid Duration", "The license duration must be a positive number of days."},
	domain.ErrCodeNotFound:         {http.StatusNotFound, "not-found", "Key Not Found", "No record exists for this key."},
	domain.ErrCodeRevokedKey:       {http.StatusConflict, "revoked-key", "Key Revoked", "The operation is not allowed on a revoked key."},
	domain.ErrCodeAlreadyExists:    {http.StatusConflict, "already-exists", "Key Already Exists", "A record for this key already exists."},
	domain.ErrCodeInvalidKey:       {http.StatusBadRequest, "invalid-key", "Invalid Key", "Key names may only contain A-Z, 0-9 and '-'."},
	domain.ErrCodeChannelError:     {http.StatusServiceUnavailable, "channel-unavailable", "Registry Unavailable", "The license registry could not be reached. Please check your connection."},
	domain.ErrCodeStorageFailure:   {http.StatusInternalServerError, "storage-failure", "Storage Failure", "License data could not be read or written."},
}

// MapLicenseError maps domain errors to HTTP problem details
func MapLicenseError(err error, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/license#trace-%s", traceID)

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return NewProblemDetails(
			apiErr.StatusCode,
			"/errors/"+apiErr.ErrorCode,
			http.StatusText(apiErr.StatusCode),
			apiErr.Message,
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", apiErr.ErrorCode)
	}

	code := Code(err)
	spec, ok := problemSpecs[code]
	if !ok {
		return NewProblemDetails(
			ErrInternalServer.StatusCode,
			"/errors/internal-error",
			"Internal Server Error",
			ErrInternalServer.Message,
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", ErrInternalServer.ErrorCode)
	}

	return NewProblemDetails(
		spec.status,
		"/errors/license/"+spec.slug,
		spec.title,
		spec.detail,
		instance,
	).WithExtension("trace_id", traceID).
		WithExtension("error_code", code)
}
