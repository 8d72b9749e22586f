package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apierrors "axiscli/internal/errors"
	"axiscli/internal/license"
)

// DefaultLicenseCacheTTL is how long a valid pass admits requests without
// revalidating.
const DefaultLicenseCacheTTL = 5 * time.Minute

// LicenseChecker is the part of the license manager the gate needs.
type LicenseChecker interface {
	IsCurrentlyValid(ctx context.Context) license.Result
	LastResult() (license.Result, bool)
}

// LicenseValidator admits requests only while the local activation is valid
type LicenseValidator struct {
	checker         LicenseChecker
	logger          *slog.Logger
	ttl             time.Duration
	now             func() time.Time
	excludePaths    []string
	excludePrefixes []string
	metrics         *MiddlewareMetrics

	// validationMu collapses concurrent cache misses into one pass
	validationMu sync.Mutex
}

// MiddlewareMetrics holds OpenTelemetry metrics for the license gate
type MiddlewareMetrics struct {
	RequestsTotal  metric.Int64Counter
	RequestsDenied metric.Int64Counter
	CacheHits      metric.Int64Counter
	CacheMisses    metric.Int64Counter
	PathExclusions metric.Int64Counter
}

// InitializeMiddlewareMetrics creates the license gate metrics
func InitializeMiddlewareMetrics(meter metric.Meter) (*MiddlewareMetrics, error) {
	m := &MiddlewareMetrics{}
	var err error

	if m.RequestsTotal, err = meter.Int64Counter("license_gate_requests_total",
		metric.WithDescription("Requests seen by the license gate")); err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}
	if m.RequestsDenied, err = meter.Int64Counter("license_gate_denied_total",
		metric.WithDescription("Requests refused because the license is not valid")); err != nil {
		return nil, fmt.Errorf("failed to create denied counter: %w", err)
	}
	if m.CacheHits, err = meter.Int64Counter("license_gate_cache_hits_total",
		metric.WithDescription("Requests admitted on a cached valid pass")); err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}
	if m.CacheMisses, err = meter.Int64Counter("license_gate_cache_misses_total",
		metric.WithDescription("Requests that triggered a revalidation")); err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}
	if m.PathExclusions, err = meter.Int64Counter("license_gate_exclusions_total",
		metric.WithDescription("Requests on paths exempt from the license gate")); err != nil {
		return nil, fmt.Errorf("failed to create exclusions counter: %w", err)
	}
	return m, nil
}

// NewLicenseValidator creates a license gate over checker.
func NewLicenseValidator(checker LicenseChecker, logger *slog.Logger) *LicenseValidator {
	return &LicenseValidator{
		checker: checker,
		logger:  logger.With(slog.String("component", "license_middleware")),
		ttl:     DefaultLicenseCacheTTL,
		now:     time.Now,
	}
}

// Handler returns the middleware handler function
func (lv *LicenseValidator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("license-middleware").Start(r.Context(), "license_middleware.validate",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.Path),
				attribute.String("component", "license_middleware"),
			),
		)
		defer span.End()

		pathAttr := metric.WithAttributes(attribute.String("path", r.URL.Path))
		lv.count(ctx, func(m *MiddlewareMetrics) metric.Int64Counter { return m.RequestsTotal }, pathAttr)

		if lv.shouldExcludePath(r.URL.Path) {
			span.SetAttributes(attribute.Bool("license.excluded", true))
			lv.count(ctx, func(m *MiddlewareMetrics) metric.Int64Counter { return m.PathExclusions }, pathAttr)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		result := lv.current(ctx)
		span.SetAttributes(attribute.Bool("license.valid", result.Valid))

		if !result.Valid {
			span.SetStatus(codes.Error, result.Reason)
			lv.count(ctx, func(m *MiddlewareMetrics) metric.Int64Counter { return m.RequestsDenied }, pathAttr)
			lv.logger.WarnContext(ctx, "request refused, license not valid",
				slog.String("path", r.URL.Path),
				slog.String("reason", result.Reason))
			lv.deny(w, r.WithContext(ctx), result)
			return
		}

		w.Header().Set("X-License-Days-Left", strconv.Itoa(result.DaysLeft))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// current returns a cached valid pass if it is fresh enough, otherwise it
// revalidates.
func (lv *LicenseValidator) current(ctx context.Context) license.Result {
	if result, ok := lv.fresh(); ok {
		lv.count(ctx, func(m *MiddlewareMetrics) metric.Int64Counter { return m.CacheHits })
		return result
	}

	lv.validationMu.Lock()
	defer lv.validationMu.Unlock()

	// another request may have revalidated while we waited
	if result, ok := lv.fresh(); ok {
		lv.count(ctx, func(m *MiddlewareMetrics) metric.Int64Counter { return m.CacheHits })
		return result
	}

	lv.count(ctx, func(m *MiddlewareMetrics) metric.Int64Counter { return m.CacheMisses })
	return lv.checker.IsCurrentlyValid(ctx)
}

func (lv *LicenseValidator) fresh() (license.Result, bool) {
	last, ok := lv.checker.LastResult()
	if !ok || !last.Valid {
		return license.Result{}, false
	}
	if lv.now().Sub(last.CheckedAt) >= lv.ttl {
		return license.Result{}, false
	}
	return last, true
}

func (lv *LicenseValidator) deny(w http.ResponseWriter, r *http.Request, result license.Result) {
	err := result.Err
	if err == nil {
		err = apierrors.ErrNoActivation
	}

	problem := apierrors.MapLicenseError(err, TraceID(r.Context()))
	if pd, ok := problem.(*apierrors.ProblemDetails); ok {
		pd.WithExtension("reason", result.Reason).
			WithExtension("status_text", string(result.Status()))
	}
	render.Render(w, r, problem)
}

func (lv *LicenseValidator) count(ctx context.Context, pick func(*MiddlewareMetrics) metric.Int64Counter, opts ...metric.AddOption) {
	if lv.metrics == nil {
		return
	}
	pick(lv.metrics).Add(ctx, 1, opts...)
}

// shouldExcludePath checks if a path should be excluded from validation
func (lv *LicenseValidator) shouldExcludePath(path string) bool {
	for _, excluded := range lv.excludePaths {
		if path == excluded {
			return true
		}
	}
	for _, prefix := range lv.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AddExcludePath adds a path to be excluded from license validation
func (lv *LicenseValidator) AddExcludePath(path string) {
	lv.excludePaths = append(lv.excludePaths, path)
}

// AddExcludePrefix adds a path prefix to be excluded from license validation
func (lv *LicenseValidator) AddExcludePrefix(prefix string) {
	lv.excludePrefixes = append(lv.excludePrefixes, prefix)
}

// SetCacheTTL sets how long a valid pass is reused
func (lv *LicenseValidator) SetCacheTTL(ttl time.Duration) {
	lv.ttl = ttl
}

// SetClock overrides the wall clock used for cache freshness
func (lv *LicenseValidator) SetClock(now func() time.Time) {
	lv.now = now
}

// SetMetrics enables OpenTelemetry metrics
func (lv *LicenseValidator) SetMetrics(metrics *MiddlewareMetrics) {
	lv.metrics = metrics
}
