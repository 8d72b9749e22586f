package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "axiscli/internal/errors"
	"axiscli/internal/license"
	"axiscli/internal/middleware"
	"axiscli/pkg/contracts/domain"
)

// LicenseService is the part of the license manager the client API needs.
type LicenseService interface {
	Activate(ctx context.Context, token string) license.Result
	IsCurrentlyValid(ctx context.Context) license.Result
	LastResult() (license.Result, bool)
	Fingerprint() string
}

// FactorReporter exposes the masked fingerprint signals for diagnostics.
type FactorReporter interface {
	MaskedFactors() map[string]string
}

// LicenseHandler handles the client license endpoints
type LicenseHandler struct {
	service LicenseService
	factors FactorReporter
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler. factors and limiter may
// be nil.
func NewLicenseHandler(service LicenseService, factors FactorReporter, limiter *middleware.RateLimiter, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		factors: factors,
		limiter: limiter,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	if h.limiter != nil {
		r.With(h.limiter.Handler).Post("/activate", h.Activate)
	} else {
		r.Post("/activate", h.Activate)
	}

	r.Get("/status", h.GetStatus)
	r.Get("/fingerprint", h.GetFingerprint)
	return r
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("license-handler").Start(r.Context(), "license_handler.activate",
		trace.WithAttributes(attribute.String("component", "license_handler")))
	defer span.End()
	r = r.WithContext(ctx)

	var req domain.LicenseActivationRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	result := h.service.Activate(ctx, req.Token)
	span.SetAttributes(
		attribute.Bool("license.valid", result.Valid),
		attribute.String("license.status", string(result.Status())),
	)

	if !result.Valid {
		h.logger.WarnContext(ctx, "license activation refused",
			slog.String("reason", result.Reason),
			slog.String("error_code", apierrors.Code(result.Err)))
		renderInvalid(w, r, result)
		return
	}

	view := result.ToDomain()
	h.logger.InfoContext(ctx, "license activated",
		slog.String("key", view.Key),
		slog.Int("days_left", result.DaysLeft))

	render.JSON(w, r, domain.LicenseActivationResponse{
		Success:     true,
		Message:     fmt.Sprintf("License valid, %d days left", result.DaysLeft),
		Result:      &view,
		ActivatedAt: result.CheckedAt,
	})
}

// GetStatus handles GET /api/license/status. The last pass is reported
// unless refresh=true is given or no pass has run yet.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	result, ok := h.service.LastResult()
	if refresh || !ok {
		result = h.service.IsCurrentlyValid(ctx)
	}

	render.JSON(w, r, result.ToDomain())
}

// GetFingerprint handles GET /api/license/fingerprint
func (h *LicenseHandler) GetFingerprint(w http.ResponseWriter, r *http.Request) {
	resp := domain.FingerprintResponse{Fingerprint: h.service.Fingerprint()}
	if h.factors != nil {
		resp.Factors = h.factors.MaskedFactors()
	}
	render.JSON(w, r, resp)
}

// renderInvalid renders a failed pass as a problem document that carries the
// human-readable reason.
func renderInvalid(w http.ResponseWriter, r *http.Request, result license.Result) {
	err := result.Err
	if err == nil {
		err = apierrors.ErrNoActivation
	}

	problem := apierrors.MapLicenseError(err, middleware.TraceID(r.Context()))
	if pd, ok := problem.(*apierrors.ProblemDetails); ok {
		pd.WithExtension("reason", result.Reason).
			WithExtension("status_text", string(result.Status()))
	}
	render.Render(w, r, problem)
}
