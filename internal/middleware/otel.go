package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"axiscli/internal/infrastructure"
)

// HTTPMetrics holds the request instruments recorded by OTel
type HTTPMetrics struct {
	RequestsTotal   metric.Int64Counter
	RequestDuration metric.Float64Histogram
	ActiveRequests  metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the HTTP request instruments on meter
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	m := &HTTPMetrics{}
	var err error

	if m.RequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests")); err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}
	if m.RequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	if m.ActiveRequests, err = meter.Int64UpDownCounter("http_active_requests",
		metric.WithDescription("Requests currently being served")); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}
	return m, nil
}

// OTel wraps each request in a server span and records request metrics.
// metrics may be nil.
func OTel(service string, metrics *HTTPMetrics) func(next http.Handler) http.Handler {
	tracer := otel.Tracer(service)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.UserAgentOriginal(r.UserAgent()),
				),
			)
			defer span.End()

			if span.SpanContext().IsValid() {
				ctx = infrastructure.WithTraceID(ctx, span.SpanContext().TraceID().String())
			}

			if metrics != nil {
				metrics.ActiveRequests.Add(ctx, 1)
				defer metrics.ActiveRequests.Add(ctx, -1)
			}

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			r = r.WithContext(ctx)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			if metrics != nil {
				attrs := metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
					attribute.Int("status_code", status),
				)
				metrics.RequestsTotal.Add(ctx, 1, attrs)
				metrics.RequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
		})
	}
}

// routePattern extracts the route pattern from request context
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
