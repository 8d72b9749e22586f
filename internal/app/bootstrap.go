package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"axiscli/internal/config"
	"axiscli/internal/infrastructure"
	"axiscli/pkg/contracts"
)

// Runtime holds what every command needs: configuration, resolved paths,
// the process logger and the telemetry providers.
type Runtime struct {
	Config        *config.Config
	Paths         *config.Paths
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
}

// BootstrapOptions selects what Bootstrap initializes.
type BootstrapOptions struct {
	// ConfigFile overrides the default config file lookup.
	ConfigFile string
	// Service names the process in logs and telemetry.
	Service string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Telemetry enables the OpenTelemetry providers. Only long running
	// hosts need it; the prometheus exporter can be registered once per
	// process.
	Telemetry bool
}

// Bootstrap loads configuration, initializes logging and optionally
// telemetry, and makes sure the working directories exist.
func Bootstrap(opts BootstrapOptions) (*Runtime, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.LoadFile(opts.ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Debug("Application starting",
		slog.String("service", opts.Service),
		slog.String("version", contracts.Version))

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()

	rt := &Runtime{
		Config: cfg,
		Paths:  paths,
		Logger: logger,
	}

	if opts.Telemetry {
		providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(opts.Service), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
		}
		rt.OTelProviders = providers
	}

	return rt, nil
}

// Close flushes telemetry and closes the log file.
func (rt *Runtime) Close(ctx context.Context) error {
	var firstErr error
	if rt.OTelProviders != nil {
		if err := rt.OTelProviders.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("failed to shut down OpenTelemetry: %w", err)
		}
	}
	if err := infrastructure.CloseLogFile(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// meter returns the runtime meter, or nil when telemetry is disabled.
func (rt *Runtime) meter() metric.Meter {
	if rt.OTelProviders == nil {
		return nil
	}
	return rt.OTelProviders.Meter
}

// logger returns the runtime logger or the process default.
func (rt *Runtime) logger() *slog.Logger {
	if rt.Logger == nil {
		return infrastructure.GetLogger()
	}
	return rt.Logger
}
