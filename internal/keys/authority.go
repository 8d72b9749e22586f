package keys

import (
	"context"
	"errors"
	"fmt"

	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/license"
	"axiscli/pkg/contracts/domain"
)

var _ license.Authority = (*StoreAuthority)(nil)

// StoreAuthority lets a validator run directly against the issuing side's
// record store, with no registry channel in between.
type StoreAuthority struct {
	manager *Manager
}

// NewStoreAuthority wraps manager as a license authority.
func NewStoreAuthority(manager *Manager) *StoreAuthority {
	return &StoreAuthority{manager: manager}
}

// Refresh is a no-op; the records are always current.
func (a *StoreAuthority) Refresh(ctx context.Context) (bool, error) {
	return true, ctx.Err()
}

// Lookup returns the stored record for key.
func (a *StoreAuthority) Lookup(ctx context.Context, key string) (domain.KeyRecord, error) {
	rec, err := a.manager.Get(ctx, key)
	if errors.Is(err, licenseErrors.ErrNotFound) || errors.Is(err, licenseErrors.ErrInvalidKey) {
		return domain.KeyRecord{}, fmt.Errorf("%w: %s", licenseErrors.ErrKeyNotFound, key)
	}
	return rec, err
}

// Bind records the first-use binding in the store.
func (a *StoreAuthority) Bind(ctx context.Context, key, hwid string) error {
	return a.manager.Bind(ctx, key, hwid)
}
