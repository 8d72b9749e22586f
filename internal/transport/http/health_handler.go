package http

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/render"

	"axiscli/pkg/contracts"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	checks map[string]HealthCheck
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks map[string]HealthCheck, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Version:   contracts.Version,
		Timestamp: time.Now().UTC(),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("check", name),
				slog.String("error", err.Error()))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	if resp.Status != "ok" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
