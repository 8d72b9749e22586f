package license

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/registry"
	"axiscli/internal/registry/registrytest"
	"axiscli/pkg/contracts/domain"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type staticFingerprint string

func (f staticFingerprint) Fingerprint() string { return string(f) }

func strPtr(s string) *string { return &s }

func record(key string, expires time.Time, hwid *string) domain.KeyRecord {
	return domain.KeyRecord{
		Key:     key,
		HWID:    hwid,
		Expires: expires,
		Created: testNow.Add(-24 * time.Hour),
	}
}

func newChannel(t *testing.T, recs ...domain.KeyRecord) *registrytest.MemoryChannel {
	t.Helper()
	reg := domain.Registry{}
	for _, rec := range recs {
		reg[rec.Key] = rec
	}
	doc, err := registry.Marshal(reg)
	require.NoError(t, err)
	return registrytest.NewMemoryChannel(doc)
}

// editRecord applies fn to key in the published document.
func editRecord(t *testing.T, ch *registrytest.MemoryChannel, key string, fn func(*domain.KeyRecord)) {
	t.Helper()
	reg, err := registry.Parse(ch.Document())
	require.NoError(t, err)
	rec := reg[key]
	fn(&rec)
	reg[key] = rec
	doc, err := registry.Marshal(reg)
	require.NoError(t, err)
	require.NoError(t, ch.Publish(context.Background(), doc))
}

type device struct {
	manager *Manager
	state   *StateStore
	cache   *CachedRegistry
}

func newDevice(t *testing.T, ch registry.Fetcher, fp string, opts ...Option) device {
	t.Helper()
	dir := t.TempDir()
	cache := NewCachedRegistry(filepath.Join(dir, "keys.json"), ch, WithRefreshTimeout(time.Second))
	state := NewStateStore(filepath.Join(dir, "license.dat"))
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return device{
		manager: NewManager(cache, state, staticFingerprint(fp), opts...),
		state:   state,
		cache:   cache,
	}
}

func mustToken(t *testing.T, key string, expires time.Time, hwid string) string {
	t.Helper()
	token, err := EncodeToken(key, expires, hwid)
	require.NoError(t, err)
	return token
}

func TestScenarioBindThenMismatchThenRevoke(t *testing.T) {
	ctx := context.Background()
	expires := testNow.Add(7 * 24 * time.Hour)
	ch := newChannel(t, record("K1", expires, nil))
	token := mustToken(t, "K1", expires, "")

	d1 := newDevice(t, ch, "D1")
	res := d1.manager.Activate(ctx, token)
	require.True(t, res.Valid, res.Reason)
	assert.True(t, res.Bound)
	assert.Equal(t, 7, res.DaysLeft)
	assert.Equal(t, "License valid, 7 days left", res.Reason)
	assert.True(t, d1.state.Exists())

	reg, err := registry.Parse(ch.Document())
	require.NoError(t, err)
	assert.Equal(t, "D1", reg["K1"].BoundTo())

	d2 := newDevice(t, ch, "D2")
	res = d2.manager.Activate(ctx, token)
	assert.False(t, res.Valid)
	assert.ErrorIs(t, res.Err, licenseErrors.ErrDeviceMismatch)
	assert.False(t, d2.state.Exists())

	editRecord(t, ch, "K1", func(rec *domain.KeyRecord) {
		rec.Revoked = true
		revokedAt := testNow
		rec.RevokedAt = &revokedAt
	})

	res = d1.manager.IsCurrentlyValid(ctx)
	assert.False(t, res.Valid)
	assert.ErrorIs(t, res.Err, licenseErrors.ErrRevoked)
	assert.Equal(t, domain.LicenseStatusRevoked, res.Status())
	assert.False(t, d1.state.Exists(), "activation file must be removed")
}

func TestRevalidationKeepsWorkingForBoundDevice(t *testing.T) {
	ctx := context.Background()
	expires := testNow.Add(30 * 24 * time.Hour)
	ch := newChannel(t, record("K1", expires, nil))

	d1 := newDevice(t, ch, "D1")
	require.True(t, d1.manager.Activate(ctx, mustToken(t, "K1", expires, "")).Valid)

	res := d1.manager.IsCurrentlyValid(ctx)
	require.True(t, res.Valid, res.Reason)
	assert.False(t, res.Bound, "binding happens once")
	assert.True(t, res.FreshRegistry)
	assert.Equal(t, 30, res.DaysLeft)
}

func TestExpiredRecordFails(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
	}{
		{"past", testNow.Add(-time.Hour)},
		{"exactly now", testNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newChannel(t, record("K1", tt.expires, nil))
			d := newDevice(t, ch, "D1")

			res := d.manager.Activate(context.Background(), mustToken(t, "K1", testNow.Add(time.Hour), ""))
			assert.False(t, res.Valid)
			assert.ErrorIs(t, res.Err, licenseErrors.ErrExpired)
			assert.Equal(t, domain.LicenseStatusExpired, res.Status())
			assert.False(t, d.state.Exists())

			reg, err := registry.Parse(ch.Document())
			require.NoError(t, err)
			assert.False(t, reg["K1"].Bound(), "expired keys are never bound")
		})
	}
}

func TestRevokedRecordAlwaysFails(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		hwid    *string
	}{
		{"unbound", testNow.Add(time.Hour), nil},
		{"bound here", testNow.Add(time.Hour), strPtr("D1")},
		{"bound elsewhere", testNow.Add(time.Hour), strPtr("D9")},
		{"also expired", testNow.Add(-time.Hour), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("K1", tt.expires, tt.hwid)
			rec.Revoked = true
			d := newDevice(t, newChannel(t, rec), "D1")

			res := d.manager.Activate(context.Background(), mustToken(t, "K1", tt.expires, ""))
			assert.False(t, res.Valid)
			assert.ErrorIs(t, res.Err, licenseErrors.ErrRevoked)
		})
	}
}

func TestActivationRejectsTokenMintedForAnotherDevice(t *testing.T) {
	ch := newChannel(t, record("K1", testNow.Add(time.Hour), nil))
	d := newDevice(t, ch, "D1")

	res := d.manager.Activate(context.Background(), mustToken(t, "K1", testNow.Add(time.Hour), "D2"))
	assert.ErrorIs(t, res.Err, licenseErrors.ErrDeviceMismatch)

	fetches, _ := ch.Calls()
	assert.Zero(t, fetches, "registry must not be consulted")

	res = d.manager.Activate(context.Background(), mustToken(t, "K1", testNow.Add(time.Hour), "D1"))
	assert.True(t, res.Valid, res.Reason)
}

func TestUnknownKeyFails(t *testing.T) {
	d := newDevice(t, newChannel(t), "D1")
	res := d.manager.Activate(context.Background(), mustToken(t, "NOPE", testNow.Add(time.Hour), ""))
	assert.ErrorIs(t, res.Err, licenseErrors.ErrKeyNotFound)
	assert.Equal(t, "License key not found in registry", res.Reason)
}

func TestChannelOutageFallsBackToCachedRegistry(t *testing.T) {
	ctx := context.Background()
	expires := testNow.Add(10 * 24 * time.Hour)
	ch := newChannel(t, record("K1", expires, nil))
	d := newDevice(t, ch, "D1")
	require.True(t, d.manager.Activate(ctx, mustToken(t, "K1", expires, "")).Valid)

	ch.FailFetch(assert.AnError)

	res := d.manager.IsCurrentlyValid(ctx)
	require.True(t, res.Valid, res.Reason)
	assert.False(t, res.FreshRegistry)
	assert.True(t, d.state.Exists())
}

func TestChannelOutageWithoutCache(t *testing.T) {
	ch := newChannel(t, record("K1", testNow.Add(time.Hour), nil))
	ch.FailFetch(assert.AnError)
	d := newDevice(t, ch, "D1")

	res := d.manager.Activate(context.Background(), mustToken(t, "K1", testNow.Add(time.Hour), ""))
	assert.ErrorIs(t, res.Err, licenseErrors.ErrKeyNotFound)
}

func TestOfflineFirstUseBindingIsKeptLocally(t *testing.T) {
	ctx := context.Background()
	expires := testNow.Add(time.Hour)
	ch := newChannel(t, record("K1", expires, nil))
	d := newDevice(t, ch, "D1")

	_, err := d.cache.Refresh(ctx)
	require.NoError(t, err)
	ch.FailFetch(assert.AnError)

	res := d.manager.Activate(ctx, mustToken(t, "K1", expires, ""))
	require.True(t, res.Valid, res.Reason)

	rec, err := d.cache.Lookup(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, "D1", rec.BoundTo())

	// the channel comes back without the binding; the local one survives
	ch.FailFetch(nil)
	res = d.manager.IsCurrentlyValid(ctx)
	require.True(t, res.Valid, res.Reason)
	assert.True(t, res.FreshRegistry)
}

func TestRevalidationAfterAdminReset(t *testing.T) {
	ctx := context.Background()
	expires := testNow.Add(time.Hour)
	ch := newChannel(t, record("K1", expires, nil))
	d1 := newDevice(t, ch, "D1")
	require.True(t, d1.manager.Activate(ctx, mustToken(t, "K1", expires, "")).Valid)

	editRecord(t, ch, "K1", func(rec *domain.KeyRecord) {
		rec.HWID = nil
		resetAt := testNow
		rec.HWIDResetAt = &resetAt
	})

	d2 := newDevice(t, ch, "D2")
	res := d2.manager.Activate(ctx, mustToken(t, "K1", expires, ""))
	require.True(t, res.Valid, res.Reason)

	res = d1.manager.IsCurrentlyValid(ctx)
	assert.ErrorIs(t, res.Err, licenseErrors.ErrDeviceMismatch)
	assert.False(t, d1.state.Exists())
}

func TestRevalidationWithoutActivation(t *testing.T) {
	d := newDevice(t, newChannel(t), "D1")
	res := d.manager.IsCurrentlyValid(context.Background())
	assert.False(t, res.Valid)
	assert.ErrorIs(t, res.Err, licenseErrors.ErrNoActivation)
	assert.Equal(t, domain.LicenseStatusNotActivated, res.Status())
}

func TestAnyInvalidOutcomeRemovesActivation(t *testing.T) {
	ctx := context.Background()
	expires := testNow.Add(time.Hour)

	tests := []struct {
		name string
		run  func(d device) Result
		want error
	}{
		{
			name: "malformed activation token",
			run:  func(d device) Result { return d.manager.Activate(ctx, "not-a-token") },
			want: licenseErrors.ErrInvalidFormat,
		},
		{
			name: "tampered activation file",
			run: func(d device) Result {
				token, err := d.state.LoadToken()
				require.NoError(t, err)
				tampered := token[:len(token)-1] + "x"
				require.NoError(t, os.WriteFile(d.state.Path(), []byte(tampered), 0600))
				return d.manager.IsCurrentlyValid(ctx)
			},
			want: licenseErrors.ErrChecksumMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDevice(t, newChannel(t, record("K1", expires, nil)), "D1")
			require.True(t, d.manager.Activate(ctx, mustToken(t, "K1", expires, "")).Valid)

			res := tt.run(d)
			assert.ErrorIs(t, res.Err, tt.want)
			assert.False(t, d.state.Exists())
		})
	}
}

func TestCommittedStateUsesRegistryExpiry(t *testing.T) {
	registryExpiry := testNow.Add(3 * 24 * time.Hour)
	d := newDevice(t, newChannel(t, record("K1", registryExpiry, nil)), "D1")

	res := d.manager.Activate(context.Background(), mustToken(t, "K1", testNow.Add(365*24*time.Hour), ""))
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, 3, res.DaysLeft)

	state, err := d.state.Load()
	require.NoError(t, err)
	assert.Equal(t, ActivationState{Key: "K1", Expires: registryExpiry, HWID: "D1"}, state)
}

func TestSubscribeAndLastResult(t *testing.T) {
	d := newDevice(t, newChannel(t), "D1")

	_, ok := d.manager.LastResult()
	assert.False(t, ok)

	var got []Result
	d.manager.Subscribe(func(r Result) { got = append(got, r) })

	res := d.manager.IsCurrentlyValid(context.Background())
	last, ok := d.manager.LastResult()
	require.True(t, ok)
	assert.Equal(t, res, last)
	require.Len(t, got, 1)
	assert.Equal(t, res, got[0])
	assert.Equal(t, testNow, res.CheckedAt)
}

func TestPassesAreSerialized(t *testing.T) {
	ctx := context.Background()
	expires := testNow.Add(time.Hour)
	d := newDevice(t, newChannel(t, record("K1", expires, nil)), "D1")
	token := mustToken(t, "K1", expires, "")
	require.True(t, d.manager.Activate(ctx, token).Valid)

	var wg sync.WaitGroup
	results := make([]Result, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				results[i] = d.manager.Activate(ctx, token)
			} else {
				results[i] = d.manager.IsCurrentlyValid(ctx)
			}
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		assert.True(t, res.Valid, "pass %d: %s", i, res.Reason)
	}
	assert.True(t, d.state.Exists())
}

func TestResultToDomain(t *testing.T) {
	expires := testNow.Add(48 * time.Hour)
	valid := Result{Valid: true, Key: "ABCD-EFGH-IJKL-MNOP", Expires: expires, DaysLeft: 2, CheckedAt: testNow, Reason: "ok"}.ToDomain()
	assert.Equal(t, domain.LicenseStatusActive, valid.Status)
	assert.Equal(t, "ABCD****MNOP", valid.Key)
	require.NotNil(t, valid.Expires)
	assert.Equal(t, expires, *valid.Expires)
	assert.Empty(t, valid.ErrorCode)

	failed := invalid(Result{Key: "K1"}, licenseErrors.ErrDeviceMismatch).ToDomain()
	assert.Equal(t, domain.LicenseStatusInvalid, failed.Status)
	assert.Equal(t, domain.ErrCodeDeviceMismatch, failed.ErrorCode)
	assert.Nil(t, failed.Expires)
}

func TestDaysLeft(t *testing.T) {
	assert.Equal(t, 0, daysLeft(testNow, testNow))
	assert.Equal(t, 0, daysLeft(testNow.Add(-time.Hour), testNow))
	assert.Equal(t, 0, daysLeft(testNow.Add(23*time.Hour), testNow))
	assert.Equal(t, 1, daysLeft(testNow.Add(25*time.Hour), testNow))
	assert.Equal(t, 7, daysLeft(testNow.Add(7*24*time.Hour), testNow))
}
