// Package domain contains the core domain models shared by the key server,
// the admin CLI and the licensed macro client.
// These types serve as the Single Source of Truth (SSOT) for all layers of the application.
package domain

import (
	"sort"
	"strings"
	"time"
)

// KeyRecord is one issued license key as stored by the issuing side.
// A nil HWID means the key is unbound and will bind to the first device
// that validates it. Revoked never goes back to false.
type KeyRecord struct {
	Key         string     `json:"key" validate:"required"`
	HWID        *string    `json:"hwid"`
	Expires     time.Time  `json:"expires" validate:"required"`
	Revoked     bool       `json:"revoked"`
	Created     time.Time  `json:"created"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	HWIDResetAt *time.Time `json:"hwid_reset_at,omitempty"`
}

// Bound reports whether the record is tied to a device.
func (r KeyRecord) Bound() bool {
	return r.HWID != nil && *r.HWID != ""
}

// BoundTo returns the bound fingerprint or an empty string.
func (r KeyRecord) BoundTo() string {
	if r.HWID == nil {
		return ""
	}
	return *r.HWID
}

// Expired reports whether the record is past its expiry at now.
func (r KeyRecord) Expired(now time.Time) bool {
	return !now.Before(r.Expires)
}

// Status returns the display status of the record.
func (r KeyRecord) Status(now time.Time) LicenseStatus {
	switch {
	case r.Revoked:
		return LicenseStatusRevoked
	case r.Expired(now):
		return LicenseStatusExpired
	default:
		return LicenseStatusActive
	}
}

// Registry is the aggregate key -> record document that is published to and
// fetched from the registry channel.
type Registry map[string]KeyRecord

// Keys returns the registry keys in lexical order.
func (r Registry) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LicenseStatus represents the status of a license
type LicenseStatus string

const (
	LicenseStatusActive       LicenseStatus = "active"
	LicenseStatusExpired      LicenseStatus = "expired"
	LicenseStatusRevoked      LicenseStatus = "revoked"
	LicenseStatusNotActivated LicenseStatus = "not_activated"
	LicenseStatusInvalid      LicenseStatus = "invalid"
)

// ValidationResult represents the result of license validation as exposed
// over the client API and the websocket status feed.
type ValidationResult struct {
	Valid     bool          `json:"valid"`
	Status    LicenseStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	DaysLeft  int           `json:"days_left"`
	Expires   *time.Time    `json:"expires,omitempty"`
	Key       string        `json:"key,omitempty"` // masked
	CheckedAt time.Time     `json:"checked_at"`
}

// LicenseActivationRequest represents a license activation request
type LicenseActivationRequest struct {
	Token string `json:"token" validate:"required,min=20,max=4096"`
}

// Normalize trims surrounding whitespace from pasted tokens.
func (r *LicenseActivationRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
}

// LicenseActivationResponse represents a license activation response
type LicenseActivationResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	Result      *ValidationResult `json:"result,omitempty"`
	ActivatedAt time.Time         `json:"activated_at"`
}

// FingerprintResponse describes the current device fingerprint.
type FingerprintResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Factors     map[string]string `json:"factors,omitempty"`
}

// IssueKeyRequest is the admin API request to issue a key.
type IssueKeyRequest struct {
	Key  string `json:"key,omitempty" validate:"omitempty,max=64"`
	Days int    `json:"days" validate:"required,min=1,max=36500"`
	HWID string `json:"hwid,omitempty" validate:"omitempty,max=128"`
}

// ExtendKeyRequest is the admin API request to push a key's expiry out.
type ExtendKeyRequest struct {
	Days int `json:"days" validate:"required,min=1,max=36500"`
}

// BindRequest asks the key server to record a first-use device binding.
type BindRequest struct {
	Key  string `json:"key" validate:"required,max=64"`
	HWID string `json:"hwid" validate:"required,max=128"`
}

// KeyTokenResponse carries the activation token for a stored key.
type KeyTokenResponse struct {
	Key   string `json:"key"`
	Token string `json:"token"`
}

// License error codes
const (
	ErrCodeInvalidFormat    = "INVALID_FORMAT"
	ErrCodeChecksumMismatch = "CHECKSUM_MISMATCH"
	ErrCodeKeyNotFound      = "KEY_NOT_FOUND"
	ErrCodeRevoked          = "LICENSE_REVOKED"
	ErrCodeExpiredLicense   = "LICENSE_EXPIRED"
	ErrCodeDeviceMismatch   = "DEVICE_MISMATCH"
	ErrCodeInvalidDuration  = "INVALID_DURATION"
	ErrCodeStorageFailure   = "STORAGE_FAILURE"
	ErrCodeChannelError     = "CHANNEL_UNAVAILABLE"
	ErrCodeNotActivated     = "NOT_ACTIVATED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeRevokedKey       = "REVOKED_KEY"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInvalidKey       = "INVALID_KEY"
)
