package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"axiscli/internal/config"
	"axiscli/internal/infrastructure"
	"axiscli/internal/keys"
	"axiscli/internal/keystore"
	"axiscli/internal/middleware"
	handlers "axiscli/internal/transport/http"
)

// KeyServer hosts the registry and the key management API on the issuing
// side.
type KeyServer struct {
	Config *config.Config
	Keys   *keys.Manager
	Router *chi.Mux
	Server *http.Server
	Logger *slog.Logger

	// WatchRecords rebuilds the aggregate when record files are edited by
	// hand while the server runs.
	WatchRecords bool

	runtime *Runtime
}

// NewKeyServer creates the key server for manager
func NewKeyServer(rt *Runtime, manager *keys.Manager) (*KeyServer, error) {
	s := &KeyServer{
		Config:  rt.Config,
		Keys:    manager,
		Logger:  infrastructure.WithComponent(rt.logger(), "keyserver"),
		runtime: rt,
	}

	if err := s.setupRouter(); err != nil {
		return nil, err
	}
	s.Server = newHTTPServer(rt.Config.Server, s.Router)
	return s, nil
}

// setupRouter configures the HTTP router with all routes
func (s *KeyServer) setupRouter() error {
	r, err := newRouter("keyserver", s.runtime)
	if err != nil {
		return err
	}

	registryHandler := handlers.NewRegistryHandler(s.Keys, s.Logger)
	r.Get(handlers.RegistryPath, registryHandler.GetRegistry)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/bindings", registryHandler.Bind)
		r.With(middleware.AdminAuth(s.Config.Admin.Token, s.Logger)).
			Mount("/keys", handlers.NewKeysHandler(s.Keys, s.Logger).Routes())
	})

	store := s.Keys.Store()
	health := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"keystore": func(ctx context.Context) error {
			if _, err := os.Stat(store.RecordsDir()); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		},
		"registry": func(ctx context.Context) error {
			_, err := s.Keys.Aggregate(ctx)
			return err
		},
	}, s.Logger)
	r.Get("/healthz", health.HealthCheck)

	var exporter http.Handler
	if s.runtime.OTelProviders != nil {
		exporter = s.runtime.OTelProviders.PrometheusHTTP
	}
	r.Method(http.MethodGet, "/metrics", handlers.NewMetricsHandler(exporter))

	if s.Config.Admin.Token == "" {
		s.Logger.Warn("admin token not configured, key management API is disabled")
	}

	s.Router = r
	return nil
}

// Run listens on the configured address and serves until ctx is done.
func (s *KeyServer) Run(ctx context.Context) error {
	ln, err := listen(s.Config.Server)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *KeyServer) Serve(ctx context.Context, ln net.Listener) error {
	if _, err := s.Keys.Rebuild(ctx); err != nil {
		ln.Close()
		return fmt.Errorf("failed to build registry: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, s.Server, ln, s.Config.Server.ShutdownTimeout, s.Logger)
	})
	if s.WatchRecords {
		g.Go(func() error {
			return s.Keys.Store().Watch(gctx, keystore.DefaultSettle, func(_ []byte, err error) {
				if err != nil {
					s.Logger.ErrorContext(gctx, "registry rebuild failed", slog.String("error", err.Error()))
				}
			})
		})
	}
	return g.Wait()
}
