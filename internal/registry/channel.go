// Package registry moves the aggregate key registry document between the
// issuing side and validating devices. Every channel is best effort: callers
// bound each call with a context deadline and treat any error as
// ErrChannelUnavailable.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	licenseErrors "axiscli/internal/errors"
	"axiscli/pkg/contracts/domain"
)

// Fetcher retrieves the latest published registry document.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Publisher replaces the published registry document.
type Publisher interface {
	Publish(ctx context.Context, document []byte) error
}

// Channel is a registry location that can be both read and written.
type Channel interface {
	Fetcher
	Publisher
}

// Binder records a first-use device binding at the issuing side.
type Binder interface {
	Bind(ctx context.Context, key, hwid string) error
}

// Parse decodes an aggregate registry document. Records whose map key and
// key field disagree take the map key.
func Parse(document []byte) (domain.Registry, error) {
	reg := domain.Registry{}
	if err := json.Unmarshal(document, &reg); err != nil {
		return nil, fmt.Errorf("%w: malformed registry document: %v", licenseErrors.ErrChannelUnavailable, err)
	}
	for key, rec := range reg {
		if rec.Key != key {
			rec.Key = key
			reg[key] = rec
		}
	}
	return reg, nil
}

// Marshal encodes reg as an indented aggregate document. encoding/json
// sorts map keys, so equal registries produce identical bytes.
func Marshal(reg domain.Registry) ([]byte, error) {
	if reg == nil {
		reg = domain.Registry{}
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registry: %w", err)
	}
	return append(data, '\n'), nil
}

// MergeBindings carries first-use bindings seen in observed over into an
// authoritative registry that has not caught up with them yet. A binding is
// dropped once the authoritative record is bound or was reset after the
// binding was made. authoritative is modified in place and returned.
func MergeBindings(authoritative, observed domain.Registry) domain.Registry {
	for key, rec := range authoritative {
		prev, ok := observed[key]
		if !ok || !prev.Bound() || rec.Bound() {
			continue
		}
		if !sameTime(prev.HWIDResetAt, rec.HWIDResetAt) {
			continue
		}
		hwid := prev.BoundTo()
		rec.HWID = &hwid
		authoritative[key] = rec
	}
	return authoritative
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", licenseErrors.ErrChannelUnavailable, op, err)
}
