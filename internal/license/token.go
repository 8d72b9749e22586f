package license

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	licenseErrors "axiscli/internal/errors"
)

const (
	tokenFieldSep = "|"
	tokenTagSep   = "."
	tokenTagLen   = 16

	// UnboundHWID is the token spelling of a key that is not bound to a device.
	UnboundHWID = "None"
)

// expiry layouts accepted on decode; the first one is used on encode
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// TokenClaims are the fields carried by a license token.
// An empty HWID means the token does not name a device.
type TokenClaims struct {
	Key     string
	Expires time.Time
	HWID    string
}

// EncodeToken builds the distributable token for key, expires and hwid.
func EncodeToken(key string, expires time.Time, hwid string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", licenseErrors.ErrInvalidFormat)
	}
	if strings.Contains(key, tokenFieldSep) || strings.Contains(hwid, tokenFieldSep) {
		return "", fmt.Errorf("%w: fields must not contain %q", licenseErrors.ErrInvalidFormat, tokenFieldSep)
	}
	if hwid == "" {
		hwid = UnboundHWID
	}

	payload := strings.Join([]string{key, expires.UTC().Format(expiryLayouts[0]), hwid}, tokenFieldSep)
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))

	return encoded + tokenTagSep + tokenTag(encoded), nil
}

// DecodeToken parses and integrity-checks a token.
func DecodeToken(token string) (TokenClaims, error) {
	token = strings.TrimSpace(token)

	idx := strings.LastIndex(token, tokenTagSep)
	if idx < 0 {
		return TokenClaims{}, fmt.Errorf("%w: missing integrity tag", licenseErrors.ErrInvalidFormat)
	}
	encoded, tag := token[:idx], token[idx+1:]

	if subtle.ConstantTimeCompare([]byte(tag), []byte(tokenTag(encoded))) != 1 {
		return TokenClaims{}, licenseErrors.ErrChecksumMismatch
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", licenseErrors.ErrInvalidFormat, err)
	}

	parts := strings.Split(string(raw), tokenFieldSep)
	if len(parts) != 3 {
		return TokenClaims{}, fmt.Errorf("%w: expected 3 fields, got %d", licenseErrors.ErrInvalidFormat, len(parts))
	}
	if parts[0] == "" {
		return TokenClaims{}, fmt.Errorf("%w: empty key", licenseErrors.ErrInvalidFormat)
	}

	expires, err := parseExpiry(parts[1])
	if err != nil {
		return TokenClaims{}, err
	}

	hwid := parts[2]
	if hwid == UnboundHWID {
		hwid = ""
	}

	return TokenClaims{Key: parts[0], Expires: expires, HWID: hwid}, nil
}

// tokenTag is the truncated hex SHA-256 of the encoded payload
func tokenTag(encoded string) string {
	sum := sha256.Sum256([]byte(encoded))
	return hex.EncodeToString(sum[:])[:tokenTagLen]
}

// parseExpiry accepts RFC 3339 and zone-less ISO timestamps, the latter read as UTC.
func parseExpiry(value string) (time.Time, error) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad expiry %q", licenseErrors.ErrInvalidFormat, value)
}
