package app

import (
	"context"
	"fmt"

	"axiscli/internal/infrastructure"
	"axiscli/internal/license"
	"axiscli/internal/registry"
	"axiscli/internal/security"
)

// Device identifies the machine a license is bound to.
type Device interface {
	Fingerprint() string
	MaskedFactors() map[string]string
}

// Client is the validating side's license stack: the registry cache, the
// activation file and the validator over them.
type Client struct {
	License  *license.Manager
	Registry *license.CachedRegistry
	State    *license.StateStore
	Device   Device
}

type clientOptions struct {
	fetcher registry.Fetcher
	device  Device
}

// ClientOption configures NewClient.
type ClientOption func(*clientOptions)

// WithFetcher replaces the configured registry channel.
func WithFetcher(fetcher registry.Fetcher) ClientOption {
	return func(o *clientOptions) {
		o.fetcher = fetcher
	}
}

// WithDevice replaces the host fingerprint.
func WithDevice(device Device) ClientOption {
	return func(o *clientOptions) {
		o.device = device
	}
}

// NewClient builds the license stack from the runtime configuration.
func NewClient(ctx context.Context, rt *Runtime, opts ...ClientOption) (*Client, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.fetcher == nil {
		channel, err := registry.Open(ctx, rt.Config.Registry)
		if err != nil {
			return nil, fmt.Errorf("failed to open registry channel: %w", err)
		}
		o.fetcher = channel
	}
	if o.device == nil {
		o.device = security.NewFingerprintManager(
			security.WithLogger(infrastructure.WithComponent(rt.logger(), "fingerprint")))
	}

	var managerOpts []license.Option
	if meter := rt.meter(); meter != nil {
		metrics, err := license.InitializeLicenseMetrics(meter)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize license metrics: %w", err)
		}
		managerOpts = append(managerOpts, license.WithMetrics(metrics))
	}

	cache := license.NewCachedRegistry(rt.Paths.RegistryCache, o.fetcher,
		license.WithRefreshTimeout(rt.Config.Registry.Timeout))
	state := license.NewStateStore(rt.Paths.LicenseFile)

	return &Client{
		License:  license.NewManager(cache, state, o.device, managerOpts...),
		Registry: cache,
		State:    state,
		Device:   o.device,
	}, nil
}
