package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"axiscli/internal/license"
	"axiscli/pkg/contracts/domain"
)

// SessionInfo describes the running protected session.
type SessionInfo struct {
	StartedAt time.Time                `json:"started_at"`
	Uptime    string                   `json:"uptime"`
	License   *domain.ValidationResult `json:"license,omitempty"`
}

// SessionHandler serves the protected macro session endpoints. It is mounted
// behind the license gate.
type SessionHandler struct {
	results   interface{ LastResult() (license.Result, bool) }
	startedAt time.Time
	now       func() time.Time
}

// NewSessionHandler creates a session handler for a session started now.
func NewSessionHandler(results interface{ LastResult() (license.Result, bool) }) *SessionHandler {
	return &SessionHandler{
		results:   results,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Routes returns a chi router for session endpoints
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/session", h.GetSession)
	return r
}

// GetSession handles GET /api/macro/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	info := SessionInfo{
		StartedAt: h.startedAt,
		Uptime:    h.now().Sub(h.startedAt).Round(time.Second).String(),
	}
	if result, ok := h.results.LastResult(); ok {
		view := result.ToDomain()
		info.License = &view
	}
	render.JSON(w, r, info)
}
