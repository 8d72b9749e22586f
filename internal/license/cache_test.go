package license

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiscli/internal/config"
	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/registry"
	"axiscli/internal/registry/registrytest"
	"axiscli/pkg/contracts/domain"
)

// blockingFetcher never answers before its context is done
type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// readOnlyFetcher hides the Binder side of a channel
type readOnlyFetcher struct{ ch *registrytest.MemoryChannel }

func (f readOnlyFetcher) Fetch(ctx context.Context) ([]byte, error) { return f.ch.Fetch(ctx) }

func TestCachedRegistryRefreshAndLookup(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "keys.json")
	ch := newChannel(t, record("K1", testNow.Add(time.Hour), nil))
	cache := NewCachedRegistry(path, ch, WithCacheClock(func() time.Time { return testNow }))

	_, err := cache.Lookup(ctx, "K1")
	assert.ErrorIs(t, err, licenseErrors.ErrKeyNotFound)

	fresh, err := cache.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, testNow, cache.LastRefresh())

	rec, err := cache.Lookup(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, "K1", rec.Key)

	// a second instance reads the persisted cache without fetching
	reopened := NewCachedRegistry(path, nil)
	rec, err = reopened.Lookup(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, "K1", rec.Key)

	fresh, err = reopened.Refresh(ctx)
	assert.NoError(t, err)
	assert.False(t, fresh)
}

func TestCachedRegistryRefreshFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	ch := newChannel(t, record("K1", testNow.Add(time.Hour), nil))
	cache := NewCachedRegistry(filepath.Join(t.TempDir(), "keys.json"), ch)

	_, err := cache.Refresh(ctx)
	require.NoError(t, err)

	ch.FailFetch(errors.New("dns failure"))
	fresh, err := cache.Refresh(ctx)
	assert.False(t, fresh)
	assert.ErrorIs(t, err, licenseErrors.ErrChannelUnavailable)

	_, err = cache.Lookup(ctx, "K1")
	assert.NoError(t, err)
}

func TestCachedRegistryRefreshTimeout(t *testing.T) {
	cache := NewCachedRegistry(filepath.Join(t.TempDir(), "keys.json"), blockingFetcher{},
		WithRefreshTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := cache.Refresh(context.Background())
	assert.ErrorIs(t, err, licenseErrors.ErrChannelUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWithRefreshTimeoutIsClamped(t *testing.T) {
	cache := NewCachedRegistry("keys.json", nil, WithRefreshTimeout(time.Hour))
	assert.Equal(t, config.MaxRegistryTimeout, cache.timeout)

	cache = NewCachedRegistry("keys.json", nil, WithRefreshTimeout(0))
	assert.Equal(t, 10*time.Second, cache.timeout)
}

func TestCachedRegistryCorruptCacheStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	cache := NewCachedRegistry(path, nil)
	_, err := cache.Lookup(context.Background(), "K1")
	assert.ErrorIs(t, err, licenseErrors.ErrKeyNotFound)
}

func TestCachedRegistryBind(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards to the issuing side", func(t *testing.T) {
		ch := newChannel(t, record("K1", testNow.Add(time.Hour), nil))
		cache := NewCachedRegistry(filepath.Join(t.TempDir(), "keys.json"), ch)
		_, err := cache.Refresh(ctx)
		require.NoError(t, err)

		require.NoError(t, cache.Bind(ctx, "K1", "D1"))
		require.NoError(t, cache.Bind(ctx, "K1", "D1"))

		reg, err := registry.Parse(ch.Document())
		require.NoError(t, err)
		assert.Equal(t, "D1", reg["K1"].BoundTo())

		assert.ErrorIs(t, cache.Bind(ctx, "K1", "D2"), licenseErrors.ErrDeviceMismatch)
	})

	t.Run("remote rejection is authoritative", func(t *testing.T) {
		ch := newChannel(t, record("K1", testNow.Add(time.Hour), nil))
		cache := NewCachedRegistry(filepath.Join(t.TempDir(), "keys.json"), ch)
		_, err := cache.Refresh(ctx)
		require.NoError(t, err)

		// another device bound it after our refresh
		require.NoError(t, ch.Bind(ctx, "K1", "D9"))

		assert.ErrorIs(t, cache.Bind(ctx, "K1", "D1"), licenseErrors.ErrDeviceMismatch)
		rec, err := cache.Lookup(ctx, "K1")
		require.NoError(t, err)
		assert.False(t, rec.Bound())
	})

	t.Run("read-only channel binds locally", func(t *testing.T) {
		ch := newChannel(t, record("K1", testNow.Add(time.Hour), nil))
		cache := NewCachedRegistry(filepath.Join(t.TempDir(), "keys.json"), readOnlyFetcher{ch})
		_, err := cache.Refresh(ctx)
		require.NoError(t, err)

		require.NoError(t, cache.Bind(ctx, "K1", "D1"))
		rec, err := cache.Lookup(ctx, "K1")
		require.NoError(t, err)
		assert.Equal(t, "D1", rec.BoundTo())

		assert.ErrorIs(t, cache.Bind(ctx, "NOPE", "D1"), licenseErrors.ErrKeyNotFound)
	})
}

func TestMergeBindings(t *testing.T) {
	resetAt := testNow.Add(-time.Hour)
	laterReset := testNow

	tests := []struct {
		name    string
		fetched domain.KeyRecord
		local   domain.KeyRecord
		want    string
	}{
		{
			name:    "keeps pending local binding",
			fetched: domain.KeyRecord{Key: "K"},
			local:   domain.KeyRecord{Key: "K", HWID: strPtr("D1")},
			want:    "D1",
		},
		{
			name:    "published binding wins",
			fetched: domain.KeyRecord{Key: "K", HWID: strPtr("D2")},
			local:   domain.KeyRecord{Key: "K", HWID: strPtr("D1")},
			want:    "D2",
		},
		{
			name:    "admin reset drops local binding",
			fetched: domain.KeyRecord{Key: "K", HWIDResetAt: &laterReset},
			local:   domain.KeyRecord{Key: "K", HWID: strPtr("D1"), HWIDResetAt: &resetAt},
			want:    "",
		},
		{
			name:    "same reset keeps local binding",
			fetched: domain.KeyRecord{Key: "K", HWIDResetAt: &resetAt},
			local:   domain.KeyRecord{Key: "K", HWID: strPtr("D1"), HWIDResetAt: &resetAt},
			want:    "D1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := registry.MergeBindings(domain.Registry{"K": tt.fetched}, domain.Registry{"K": tt.local})
			assert.Equal(t, tt.want, merged["K"].BoundTo())
		})
	}

	merged := registry.MergeBindings(domain.Registry{"K": {Key: "K"}}, nil)
	assert.False(t, merged["K"].Bound())
}
