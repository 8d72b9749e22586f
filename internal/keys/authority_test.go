package keys

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/license"
	"axiscli/pkg/contracts/domain"
)

type fixedFingerprint string

func (f fixedFingerprint) Fingerprint() string { return string(f) }

func newValidator(t *testing.T, m *Manager, c *clock, fp string) (*license.Manager, *license.StateStore) {
	t.Helper()
	state := license.NewStateStore(filepath.Join(t.TempDir(), "license.dat"))
	return license.NewManager(NewStoreAuthority(m), state, fixedFingerprint(fp), license.WithClock(c.Now)), state
}

func TestStoreAuthorityLookup(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	authority := NewStoreAuthority(m)

	fresh, err := authority.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, fresh)

	_, err = authority.Lookup(ctx, "MISSING")
	assert.ErrorIs(t, err, licenseErrors.ErrKeyNotFound)
	_, err = authority.Lookup(ctx, "not a key")
	assert.ErrorIs(t, err, licenseErrors.ErrKeyNotFound)

	_, err = m.Issue(ctx, "K1", 30, nil)
	require.NoError(t, err)
	rec, err := authority.Lookup(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, "K1", rec.Key)
}

// Issue a key, activate on D1, reject D2, revoke, and watch D1 lose its
// activation on the next revalidation.
func TestKeyLifecycleAcrossDevices(t *testing.T) {
	ctx := context.Background()
	m, c := newTestManager(t)

	_, err := m.Issue(ctx, "K1", 30, nil)
	require.NoError(t, err)
	token, err := m.Token(ctx, "K1")
	require.NoError(t, err)

	d1, d1State := newValidator(t, m, c, "F1")
	d2, d2State := newValidator(t, m, c, "F2")

	result := d1.Activate(ctx, token)
	require.True(t, result.Valid, result.Reason)
	assert.Equal(t, 30, result.DaysLeft)
	assert.True(t, result.Bound)
	assert.True(t, d1State.Exists())

	rec, err := m.Get(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, "F1", rec.BoundTo())

	result = d2.Activate(ctx, token)
	assert.False(t, result.Valid)
	assert.ErrorIs(t, result.Err, licenseErrors.ErrDeviceMismatch)
	assert.False(t, d2State.Exists())

	already, err := m.Revoke(ctx, "K1")
	require.NoError(t, err)
	assert.False(t, already)

	result = d1.IsCurrentlyValid(ctx)
	assert.False(t, result.Valid)
	assert.ErrorIs(t, result.Err, licenseErrors.ErrRevoked)
	assert.Equal(t, domain.LicenseStatusRevoked, result.Status())
	assert.False(t, d1State.Exists(), "a revoked key must remove the local activation")
}

func TestResetHWIDMovesKeyToNewDevice(t *testing.T) {
	ctx := context.Background()
	m, c := newTestManager(t)

	_, err := m.Issue(ctx, "K1", 30, nil)
	require.NoError(t, err)
	token, err := m.Token(ctx, "K1")
	require.NoError(t, err)

	d1, _ := newValidator(t, m, c, "F1")
	d2, _ := newValidator(t, m, c, "F2")

	require.True(t, d1.Activate(ctx, token).Valid)
	require.False(t, d2.Activate(ctx, token).Valid)

	require.NoError(t, m.ResetHWID(ctx, "K1"))

	result := d2.Activate(ctx, token)
	require.True(t, result.Valid, result.Reason)

	result = d1.IsCurrentlyValid(ctx)
	assert.ErrorIs(t, result.Err, licenseErrors.ErrDeviceMismatch)
}
