package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	licenseErrors "axiscli/internal/errors"
	"axiscli/internal/infrastructure"
)

const (
	TracerName = "license-manager"
	MeterName  = "license-manager"
)

// LicenseMetrics holds all license-specific OpenTelemetry metrics
type LicenseMetrics struct {
	// Activation metrics
	ActivationAttempts metric.Int64Counter
	ActivationSuccess  metric.Int64Counter
	ActivationFailures metric.Int64Counter
	ActivationDuration metric.Float64Histogram

	// Validation metrics
	ValidationAttempts metric.Int64Counter
	ValidationSuccess  metric.Int64Counter
	ValidationFailures metric.Int64Counter
	ValidationDuration metric.Float64Histogram

	// Registry metrics
	RegistryRefreshes       metric.Int64Counter
	RegistryRefreshFailures metric.Int64Counter
	RegistryRefreshDuration metric.Float64Histogram

	// Device binding metrics
	FirstUseBindings      metric.Int64Counter
	FingerprintMismatches metric.Int64Counter
}

// InitializeLicenseMetrics creates all license-specific metrics
func InitializeLicenseMetrics(meter metric.Meter) (*LicenseMetrics, error) {
	metrics := &LicenseMetrics{}

	var err error

	// Activation metrics
	metrics.ActivationAttempts, err = meter.Int64Counter(
		"license_activation_attempts_total",
		metric.WithDescription("Total number of license activation attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation attempts counter: %w", err)
	}

	metrics.ActivationSuccess, err = meter.Int64Counter(
		"license_activation_success_total",
		metric.WithDescription("Total number of successful license activations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation success counter: %w", err)
	}

	metrics.ActivationFailures, err = meter.Int64Counter(
		"license_activation_failures_total",
		metric.WithDescription("Total number of failed license activations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation failures counter: %w", err)
	}

	metrics.ActivationDuration, err = meter.Float64Histogram(
		"license_activation_duration_seconds",
		metric.WithDescription("License activation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation duration histogram: %w", err)
	}

	// Validation metrics
	metrics.ValidationAttempts, err = meter.Int64Counter(
		"license_validation_attempts_total",
		metric.WithDescription("Total number of license revalidation passes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation attempts counter: %w", err)
	}

	metrics.ValidationSuccess, err = meter.Int64Counter(
		"license_validation_success_total",
		metric.WithDescription("Total number of revalidation passes that found the license valid"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation success counter: %w", err)
	}

	metrics.ValidationFailures, err = meter.Int64Counter(
		"license_validation_failures_total",
		metric.WithDescription("Total number of revalidation passes that found the license invalid"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation failures counter: %w", err)
	}

	metrics.ValidationDuration, err = meter.Float64Histogram(
		"license_validation_duration_seconds",
		metric.WithDescription("License revalidation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation duration histogram: %w", err)
	}

	// Registry metrics
	metrics.RegistryRefreshes, err = meter.Int64Counter(
		"license_registry_refresh_total",
		metric.WithDescription("Total number of registry refresh attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry refresh counter: %w", err)
	}

	metrics.RegistryRefreshFailures, err = meter.Int64Counter(
		"license_registry_refresh_failures_total",
		metric.WithDescription("Total number of registry refreshes that fell back to the cached registry"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry refresh failures counter: %w", err)
	}

	metrics.RegistryRefreshDuration, err = meter.Float64Histogram(
		"license_registry_refresh_duration_seconds",
		metric.WithDescription("Registry refresh duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry refresh duration histogram: %w", err)
	}

	// Device binding metrics
	metrics.FirstUseBindings, err = meter.Int64Counter(
		"license_first_use_bindings_total",
		metric.WithDescription("Total number of keys bound to this device on first use"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create first use bindings counter: %w", err)
	}

	metrics.FingerprintMismatches, err = meter.Int64Counter(
		"license_fingerprint_mismatches_total",
		metric.WithDescription("Total number of passes rejected because the key is bound to another device"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprint mismatches counter: %w", err)
	}

	return metrics, nil
}

// traceValidation wraps one pass with a span and records pass metrics
func (m *Manager) traceValidation(ctx context.Context, mode passMode, fn func(context.Context) Result) Result {
	tracer := otel.Tracer(TracerName)

	ctx, span := tracer.Start(ctx, "license."+string(mode),
		trace.WithAttributes(
			attribute.String("license.operation", string(mode)),
			attribute.String("component", "license_manager"),
		),
	)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	duration := time.Since(start)

	m.recordPassMetrics(ctx, mode, duration, result)

	span.SetAttributes(
		attribute.Float64("license.duration_ms", float64(duration.Milliseconds())),
		attribute.Bool("license.valid", result.Valid),
		attribute.Bool("license.fresh_registry", result.FreshRegistry),
	)
	if result.Key != "" {
		span.SetAttributes(attribute.String("license.key_prefix", maskLicenseKey(result.Key)))
	}

	if result.Valid {
		span.SetStatus(codes.Ok, "License valid")
		if result.Bound {
			infrastructure.AddSpanEvent(ctx, "license.first_use_binding", map[string]interface{}{
				"license_key_hash": hashLicenseKey(result.Key),
				"audit_category":   "license_security",
			})
		}
	} else {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Reason)
		span.SetAttributes(attribute.String("license.error_type", classifyLicenseError(result.Err)))
	}

	return result
}

// refresh wraps the registry refresh with a child span and metrics
func (m *Manager) refresh(ctx context.Context) (bool, error) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.registry_refresh")
	defer span.End()

	start := time.Now()
	fresh, err := m.authority.Refresh(ctx)
	duration := time.Since(start)

	span.SetAttributes(attribute.Bool("license.fresh_registry", fresh))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if m.metrics != nil {
		labels := metric.WithAttributes(attribute.String("component", "license_manager"))
		m.metrics.RegistryRefreshes.Add(ctx, 1, labels)
		m.metrics.RegistryRefreshDuration.Record(ctx, duration.Seconds(), labels)
		if err != nil {
			m.metrics.RegistryRefreshFailures.Add(ctx, 1, labels)
		}
	}

	return fresh, err
}

// bind wraps the first-use binding with a child span and metrics
func (m *Manager) bind(ctx context.Context, key, fp string) error {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.bind",
		trace.WithAttributes(attribute.String("license.key_prefix", maskLicenseKey(key))),
	)
	defer span.End()

	err := m.authority.Bind(ctx, key, fp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.logInfo(ctx, "bind", "key bound to this device on first use",
		slog.String("license_key_hash", hashLicenseKey(key)),
		slog.String("hwid", maskFingerprint(fp)),
	)

	if m.metrics != nil {
		m.metrics.FirstUseBindings.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", "license_manager"),
		))
	}
	return nil
}

func (m *Manager) recordPassMetrics(ctx context.Context, mode passMode, duration time.Duration, result Result) {
	if m.metrics == nil {
		return
	}

	base := []attribute.KeyValue{
		attribute.String("operation", string(mode)),
		attribute.String("component", "license_manager"),
	}
	labels := metric.WithAttributes(base...)
	outcome := metric.WithAttributes(append(base, attribute.String("result", classifyLicenseError(result.Err)))...)

	if mode == modeActivation {
		m.metrics.ActivationAttempts.Add(ctx, 1, labels)
		m.metrics.ActivationDuration.Record(ctx, duration.Seconds(), labels)
		if result.Valid {
			m.metrics.ActivationSuccess.Add(ctx, 1, labels)
		} else {
			m.metrics.ActivationFailures.Add(ctx, 1, outcome)
		}
	} else {
		m.metrics.ValidationAttempts.Add(ctx, 1, labels)
		m.metrics.ValidationDuration.Record(ctx, duration.Seconds(), labels)
		if result.Valid {
			m.metrics.ValidationSuccess.Add(ctx, 1, labels)
		} else {
			m.metrics.ValidationFailures.Add(ctx, 1, outcome)
		}
	}

	if errors.Is(result.Err, licenseErrors.ErrDeviceMismatch) {
		m.metrics.FingerprintMismatches.Add(ctx, 1, labels)
	}
}

// classifyLicenseError returns a low-cardinality label for err
func classifyLicenseError(err error) string {
	if err == nil {
		return "valid"
	}
	if code := licenseErrors.Code(err); code != "" {
		return code
	}
	return "unknown_error"
}
