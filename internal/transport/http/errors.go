package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "axiscli/internal/errors"
	"axiscli/internal/middleware"
)

// handleError logs err and renders it as a problem document. Domain errors
// map through MapLicenseError; context errors get their own problems.
func handleError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ctx := r.Context()
	traceID := middleware.TraceID(ctx)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	var problem render.Renderer
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		problem = apierrors.NewProblemDetails(
			http.StatusGatewayTimeout,
			"/errors/timeout",
			"Request Timeout",
			"The request timed out while processing. Please try again.",
			r.URL.Path+"#"+traceID,
		).WithExtension("trace_id", traceID)

	case errors.Is(err, context.Canceled):
		problem = apierrors.NewProblemDetails(
			http.StatusRequestTimeout,
			"/errors/request-canceled",
			"Request Canceled",
			"The request was canceled before completion.",
			r.URL.Path+"#"+traceID,
		).WithExtension("trace_id", traceID)

	default:
		problem = apierrors.MapLicenseError(err, traceID)
		var apiErr *apierrors.APIError
		if pd, ok := problem.(*apierrors.ProblemDetails); ok && errors.As(err, &apiErr) && apiErr.Details != nil {
			pd.WithExtension("details", apiErr.Details)
		}
	}

	status := http.StatusInternalServerError
	if pd, ok := problem.(*apierrors.ProblemDetails); ok {
		status = pd.Status
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(ctx, level, "request failed",
		slog.String("error", err.Error()),
		slog.String("error_code", apierrors.Code(err)),
		slog.Int("status", status),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.String("remote_addr", r.RemoteAddr))

	render.Render(w, r, problem)
}
