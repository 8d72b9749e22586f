package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	apierrors "axiscli/internal/errors"
	"axiscli/internal/infrastructure"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
	Error:           upgradeError,
}

// upgradeError writes a handshake failure as problem details
func upgradeError(w http.ResponseWriter, r *http.Request, status int, reason error) {
	apiErr := apierrors.ErrWebSocketUpgrade.WithStatus(status).With(reason.Error(), nil)
	render.Render(w, r, apierrors.MapLicenseError(apiErr, infrastructure.GetTraceID(r.Context())))
}

// checkOrigin admits same-host and loopback origins. Requests without an
// Origin header come from native clients and are allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ServeWS upgrades the request and attaches the connection to hub
func ServeWS(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.handler"))

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		traceID := infrastructure.GetTraceID(ctx)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// upgradeError has already written the response
			logger.WarnContext(ctx, "websocket upgrade failed",
				slog.String("error_code", apierrors.ErrWebSocketUpgrade.ErrorCode),
				slog.String("error", err.Error()),
				slog.String("origin", r.Header.Get("Origin")),
				slog.String("remote_addr", r.RemoteAddr))
			return
		}

		client := NewClient(hub, conn, traceID, logger)
		hub.Register(client)

		logger.InfoContext(ctx, "websocket client connected",
			slog.String("client_id", client.id),
			slog.String("remote_addr", r.RemoteAddr))

		go client.WritePump()
		go client.ReadPump()
	}
}
