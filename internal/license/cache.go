package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"axiscli/internal/config"
	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/files"
	"axiscli/internal/infrastructure"
	"axiscli/internal/registry"
	"axiscli/pkg/contracts/domain"
)

// Authority is the registry view the validator trusts for revocation,
// expiry and binding.
type Authority interface {
	// Refresh pulls the latest registry. fresh reports whether the cached
	// copy was replaced; an error means the previous copy stays in use.
	Refresh(ctx context.Context) (fresh bool, err error)
	Lookup(ctx context.Context, key string) (domain.KeyRecord, error)
	// Bind records hwid as the device of an unbound key.
	Bind(ctx context.Context, key, hwid string) error
}

// CachedRegistry is the validating side's Authority: a local copy of the
// aggregate registry, refreshed from a registry channel.
type CachedRegistry struct {
	path    string
	fetcher registry.Fetcher
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	group singleflight.Group

	mu          sync.RWMutex
	reg         domain.Registry
	loaded      bool
	lastRefresh time.Time
}

// CacheOption configures a CachedRegistry.
type CacheOption func(*CachedRegistry)

// WithRefreshTimeout bounds each channel call. Values above the registry
// maximum are clamped.
func WithRefreshTimeout(d time.Duration) CacheOption {
	return func(c *CachedRegistry) {
		if d > 0 {
			c.timeout = min(d, config.MaxRegistryTimeout)
		}
	}
}

// WithCacheClock overrides the clock used for refresh timestamps.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CachedRegistry) {
		c.now = now
	}
}

// NewCachedRegistry creates a registry cached at path. A nil fetcher makes
// the cache read-only and Refresh a no-op.
func NewCachedRegistry(path string, fetcher registry.Fetcher, opts ...CacheOption) *CachedRegistry {
	c := &CachedRegistry{
		path:    path,
		fetcher: fetcher,
		timeout: 10 * time.Second,
		now:     time.Now,
		logger:  infrastructure.WithComponent(infrastructure.GetLogger(), "registry_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh fetches the published registry and replaces the local cache.
// Concurrent calls share one fetch.
func (c *CachedRegistry) Refresh(ctx context.Context) (bool, error) {
	if c.fetcher == nil {
		return false, nil
	}

	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		document, err := c.fetcher.Fetch(fetchCtx)
		if err != nil {
			return false, asUnavailable(err)
		}

		fetched, err := registry.Parse(document)
		if err != nil {
			return false, asUnavailable(err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if err := c.loadLocked(); err != nil {
			c.logger.WarnContext(ctx, "discarding unreadable registry cache", slog.String("error", err.Error()))
		}

		merged := registry.MergeBindings(fetched, c.reg)
		if err := c.writeLocked(merged); err != nil {
			return false, err
		}
		c.lastRefresh = c.now()
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Lookup returns the cached record for key.
func (c *CachedRegistry) Lookup(ctx context.Context, key string) (domain.KeyRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(); err != nil {
		return domain.KeyRecord{}, err
	}

	rec, ok := c.reg[key]
	if !ok {
		return domain.KeyRecord{}, licenseErrors.ErrKeyNotFound
	}
	return rec, nil
}

// Bind forwards the binding to the issuing side when the channel supports it
// and then records it in the local cache. An unreachable issuing side does
// not fail the binding; an authoritative rejection does.
func (c *CachedRegistry) Bind(ctx context.Context, key, hwid string) error {
	if binder, ok := c.fetcher.(registry.Binder); ok {
		bindCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := binder.Bind(bindCtx, key, hwid)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, licenseErrors.ErrChannelUnavailable):
			c.logger.WarnContext(ctx, "binding not forwarded, keeping it locally",
				slog.String("key_hash", hashLicenseKey(key)),
				slog.String("error", err.Error()))
		default:
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(); err != nil {
		return err
	}

	rec, ok := c.reg[key]
	if !ok {
		return licenseErrors.ErrKeyNotFound
	}
	if rec.Bound() {
		if rec.BoundTo() != hwid {
			return licenseErrors.ErrDeviceMismatch
		}
		return nil
	}

	next := make(domain.Registry, len(c.reg))
	for k, v := range c.reg {
		next[k] = v
	}
	bound := hwid
	rec.HWID = &bound
	next[key] = rec

	return c.writeLocked(next)
}

// Snapshot returns a copy of the cached registry.
func (c *CachedRegistry) Snapshot(ctx context.Context) (domain.Registry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(); err != nil {
		return nil, err
	}
	out := make(domain.Registry, len(c.reg))
	for k, v := range c.reg {
		out[k] = v
	}
	return out, nil
}

// LastRefresh returns the time of the last successful refresh.
func (c *CachedRegistry) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// loadLocked reads the cache file once. A missing or corrupt file is an
// empty registry.
func (c *CachedRegistry) loadLocked() error {
	if c.loaded {
		return nil
	}

	data, ok, err := files.ReadIfExists(c.path)
	if err != nil {
		return fmt.Errorf("%w: read registry cache: %v", licenseErrors.ErrStorageFailure, err)
	}

	reg := domain.Registry{}
	if ok {
		parsed, err := registry.Parse(data)
		if err != nil {
			c.logger.Warn("registry cache is corrupt, starting empty",
				slog.String("path", c.path),
				slog.String("error", err.Error()))
		} else {
			reg = parsed
		}
	}

	c.reg, c.loaded = reg, true
	return nil
}

func (c *CachedRegistry) writeLocked(reg domain.Registry) error {
	data, err := registry.Marshal(reg)
	if err != nil {
		return fmt.Errorf("%w: %v", licenseErrors.ErrStorageFailure, err)
	}
	if err := files.WriteAtomic(c.path, data, 0644); err != nil {
		return fmt.Errorf("%w: write registry cache: %v", licenseErrors.ErrStorageFailure, err)
	}
	c.reg, c.loaded = reg, true
	return nil
}

func asUnavailable(err error) error {
	if errors.Is(err, licenseErrors.ErrChannelUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", licenseErrors.ErrChannelUnavailable, err)
}
