package license

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"axiscli/internal/infrastructure"
)

// logAction logs a specific action with structured data and OpenTelemetry correlation
func (m *Manager) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	logger := infrastructure.LoggerWithContext(ctx)

	infrastructure.AddSpanEvent(ctx, "license."+action, map[string]interface{}{
		"action": action,
		"result": result,
	})

	allAttrs := []slog.Attr{
		slog.String("component", "license_manager"),
		slog.String("action", action),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(ctx, level, result, allAttrs...)
}

// logResult logs the outcome of a pass. Keys are masked and hashed, never
// logged in full.
func (m *Manager) logResult(ctx context.Context, mode passMode, result Result) {
	attrs := []slog.Attr{
		slog.String("mode", string(mode)),
		slog.Bool("valid", result.Valid),
		slog.String("reason", result.Reason),
		slog.Bool("fresh_registry", result.FreshRegistry),
	}
	if result.Key != "" {
		attrs = append(attrs,
			slog.String("license_key_masked", maskLicenseKey(result.Key)),
			slog.String("license_key_hash", hashLicenseKey(result.Key)),
		)
	}
	if result.Bound {
		attrs = append(attrs, slog.Bool("first_use_binding", true))
	}

	if result.Valid {
		attrs = append(attrs, slog.Int("days_left", result.DaysLeft))
		m.logInfo(ctx, string(mode), "license valid", attrs...)
		return
	}

	attrs = append(attrs, slog.String("error", result.Err.Error()))
	m.logWarn(ctx, string(mode), "license invalid", attrs...)
}

// maskLicenseKey masks the license key for security
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// hashLicenseKey creates a short hash of the license key for audit correlation
func hashLicenseKey(key string) string {
	if key == "" {
		return ""
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)[:16]
}

// maskFingerprint keeps the first 8 characters of a fingerprint
func maskFingerprint(fp string) string {
	if len(fp) <= 8 {
		return "****"
	}
	return fp[:8] + "..."
}

// Helper methods for specific log levels
func (m *Manager) logDebug(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelDebug, action, result, attrs...)
}

func (m *Manager) logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func (m *Manager) logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

func (m *Manager) logError(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelError, action, result, attrs...)
}
