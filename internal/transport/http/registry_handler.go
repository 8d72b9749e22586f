package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"axiscli/pkg/contracts/domain"
)

// RegistryPath is where the key server publishes the aggregate document.
const RegistryPath = "/keys.json"

// RegistrySource serves the aggregate registry and records bindings
type RegistrySource interface {
	Aggregate(ctx context.Context) ([]byte, error)
	Bind(ctx context.Context, key, hwid string) error
}

// RegistryHandler serves the registry document to validating clients and
// accepts their first-use bindings.
type RegistryHandler struct {
	source RegistrySource
	logger *slog.Logger
}

// NewRegistryHandler creates a new registry handler
func NewRegistryHandler(source RegistrySource, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{
		source: source,
		logger: logger.With(slog.String("handler", "registry")),
	}
}

// GetRegistry handles GET /keys.json
func (h *RegistryHandler) GetRegistry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := h.source.Aggregate(ctx)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	sum := sha256.Sum256(doc)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		h.logger.DebugContext(ctx, "registry write aborted", slog.String("error", err.Error()))
	}
}

// Bind handles POST /api/v1/bindings
func (h *RegistryHandler) Bind(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("registry-handler").Start(r.Context(), "registry_handler.bind")
	defer span.End()
	r = r.WithContext(ctx)

	var req domain.BindRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	key := normalizeKey(req.Key)
	span.SetAttributes(attribute.String("license.key", maskKey(key)))

	if err := h.source.Bind(ctx, key, req.HWID); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(ctx, "binding recorded", slog.String("key", maskKey(key)))
	w.WriteHeader(http.StatusNoContent)
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func normalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// maskKey keeps the first and last four characters of a key for logs
func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "****" + key[len(key)-4:]
}
