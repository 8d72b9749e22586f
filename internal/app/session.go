package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"axiscli/internal/config"
	"axiscli/internal/infrastructure"
	"axiscli/internal/license"
	"axiscli/internal/middleware"
	handlers "axiscli/internal/transport/http"
	ws "axiscli/internal/websocket"
)

// ErrNotLicensed is returned when a session is started without a valid
// activation.
var ErrNotLicensed = errors.New("no valid license")

// Session is the protected macro session host.
type Session struct {
	Config  *config.Config
	Client  *Client
	Router  *chi.Mux
	Server  *http.Server
	Hub     *ws.Hub
	Monitor *license.Monitor
	Logger  *slog.Logger

	runtime *Runtime
}

// NewSession creates the session host over client
func NewSession(rt *Runtime, client *Client) (*Session, error) {
	s := &Session{
		Config:  rt.Config,
		Client:  client,
		Logger:  infrastructure.WithComponent(rt.logger(), "session"),
		runtime: rt,
	}

	s.Hub = ws.NewHub(s.Logger)
	if meter := rt.meter(); meter != nil {
		metrics, err := ws.NewHubMetrics(meter)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize websocket metrics: %w", err)
		}
		s.Hub.SetMetrics(metrics)
	}

	client.License.Subscribe(func(result license.Result) {
		s.Hub.BroadcastStatus(context.Background(), result.ToDomain())
	})
	s.Monitor = license.NewMonitor(client.License, rt.Config.License.RevalidateInterval, func(result license.Result) {
		s.Hub.BroadcastTermination(context.Background(), result.ToDomain())
	})

	if err := s.setupRouter(); err != nil {
		return nil, err
	}
	s.Server = newHTTPServer(rt.Config.Server, s.Router)
	return s, nil
}

// setupRouter configures the HTTP router with all routes
func (s *Session) setupRouter() error {
	// The websocket route gets only a request id; the full chain wraps the
	// ResponseWriter.
	root := chi.NewRouter()
	root.Use(middleware.RequestID)
	root.Get("/ws", ws.ServeWS(s.Hub, s.Logger))

	r, err := newRouter("macro", s.runtime)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(s.Config.License.ActivationRPS, s.Config.License.ActivationBurst, s.Logger)
	r.Mount("/api/license", handlers.NewLicenseHandler(s.Client.License, s.Client.Device, limiter, s.Logger).Routes())

	gate := middleware.NewLicenseValidator(s.Client.License, s.Logger)
	gate.SetCacheTTL(s.Config.License.RevalidateInterval)
	if meter := s.runtime.meter(); meter != nil {
		metrics, err := middleware.InitializeMiddlewareMetrics(meter)
		if err != nil {
			return fmt.Errorf("failed to initialize license gate metrics: %w", err)
		}
		gate.SetMetrics(metrics)
	}
	r.With(gate.Handler).Mount("/api/macro", handlers.NewSessionHandler(s.Client.License).Routes())

	health := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"license": func(ctx context.Context) error {
			result, ok := s.Client.License.LastResult()
			if !ok {
				return ErrNotLicensed
			}
			if !result.Valid {
				return fmt.Errorf("%w: %s", ErrNotLicensed, result.Reason)
			}
			return nil
		},
	}, s.Logger)
	r.Get("/healthz", health.HealthCheck)

	root.Mount("/", r)
	s.Router = root
	return nil
}

// Run listens on the configured address and runs the session until ctx is
// done or the license becomes invalid.
func (s *Session) Run(ctx context.Context) error {
	ln, err := listen(s.Config.Server)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the session on ln. The activation is checked first; an invalid
// license refuses the session. Afterwards the HTTP server, the status hub and
// the revalidation monitor run together, and the first of them to fail stops
// the others.
func (s *Session) Serve(ctx context.Context, ln net.Listener) error {
	ctx = infrastructure.EnsureTraceID(ctx)

	result := s.Client.License.IsCurrentlyValid(ctx)
	if !result.Valid {
		ln.Close()
		return fmt.Errorf("%w: %s", ErrNotLicensed, result.Reason)
	}
	s.Logger.InfoContext(ctx, "session started",
		slog.Int("days_left", result.DaysLeft),
		slog.Duration("revalidate_interval", s.Config.License.RevalidateInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Hub.Run(gctx)
	})
	g.Go(func() error {
		return s.Monitor.Run(gctx)
	})
	g.Go(func() error {
		return serveHTTP(gctx, s.Server, ln, s.Config.Server.ShutdownTimeout, s.Logger)
	})

	err := g.Wait()
	if errors.Is(err, license.ErrSessionTerminated) {
		s.Logger.WarnContext(ctx, "session terminated", slog.String("reason", err.Error()))
	}
	return err
}
