package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"axiscli/pkg/contracts/domain"
)

// KeyService is the key lifecycle surface exposed over the admin API.
type KeyService interface {
	Issue(ctx context.Context, key string, durationDays int, hwid *string) (domain.KeyRecord, error)
	Revoke(ctx context.Context, key string) (bool, error)
	ResetHWID(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
	Extend(ctx context.Context, key string, days int) (domain.KeyRecord, error)
	Get(ctx context.Context, key string) (domain.KeyRecord, error)
	List(ctx context.Context) ([]domain.KeyRecord, error)
	Token(ctx context.Context, key string) (string, error)
}

// RevokeResponse reports the outcome of a revoke call.
type RevokeResponse struct {
	Key            string `json:"key"`
	AlreadyRevoked bool   `json:"already_revoked"`
}

// KeysHandler serves the key management API
type KeysHandler struct {
	service KeyService
	logger  *slog.Logger
}

// NewKeysHandler creates a new keys handler
func NewKeysHandler(service KeyService, logger *slog.Logger) *KeysHandler {
	return &KeysHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "keys")),
	}
}

// Routes returns a chi router for key management. Authentication is applied
// by the caller.
func (h *KeysHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Issue)
	r.Route("/{key}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/revoke", h.Revoke)
		r.Post("/reset-hwid", h.ResetHWID)
		r.Post("/extend", h.Extend)
		r.Get("/token", h.Token)
	})
	return r
}

// List handles GET /api/v1/keys
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, records)
}

// Issue handles POST /api/v1/keys
func (h *KeysHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueKeyRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	var hwid *string
	if req.HWID != "" {
		hwid = &req.HWID
	}

	rec, err := h.service.Issue(r.Context(), normalizeKey(req.Key), req.Days, hwid)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rec)
}

// Get handles GET /api/v1/keys/{key}
func (h *KeysHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), keyParam(r))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, rec)
}

// Delete handles DELETE /api/v1/keys/{key}
func (h *KeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), keyParam(r)); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Revoke handles POST /api/v1/keys/{key}/revoke
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	already, err := h.service.Revoke(r.Context(), key)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, RevokeResponse{Key: key, AlreadyRevoked: already})
}

// ResetHWID handles POST /api/v1/keys/{key}/reset-hwid
func (h *KeysHandler) ResetHWID(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	if err := h.service.ResetHWID(r.Context(), key); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.Get(w, r)
}

// Extend handles POST /api/v1/keys/{key}/extend
func (h *KeysHandler) Extend(w http.ResponseWriter, r *http.Request) {
	var req domain.ExtendKeyRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	rec, err := h.service.Extend(r.Context(), keyParam(r), req.Days)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, rec)
}

// Token handles GET /api/v1/keys/{key}/token
func (h *KeysHandler) Token(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	token, err := h.service.Token(r.Context(), key)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, domain.KeyTokenResponse{Key: key, Token: token})
}

func keyParam(r *http.Request) string {
	return normalizeKey(chi.URLParam(r, "key"))
}
