package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"axiscli/internal/config"
	apierrors "axiscli/internal/errors"
	"axiscli/internal/middleware"
)

// newHTTPServer creates the HTTP server for handler
func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// newRouter creates a router with the common middleware chain:
// RequestID → RealIP → OTel → Logger → Recoverer → SecurityHeaders.
func newRouter(service string, rt *Runtime) (*chi.Mux, error) {
	logger := rt.logger()
	errorHandler := apierrors.NewErrorHandler(logger, false)

	var metrics *middleware.HTTPMetrics
	if meter := rt.meter(); meter != nil {
		m, err := middleware.NewHTTPMetrics(meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		metrics = m
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.OTel(service, metrics))
	r.Use(middleware.StructuredLogger(logger))
	r.Use(errorHandler.Recoverer)
	r.Use(middleware.SecurityHeaders)

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)
	return r, nil
}

// listen opens the configured listen address
func listen(cfg config.ServerConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}
	return ln, nil
}

// serveHTTP serves on ln until ctx is done, then shuts the server down
// gracefully within shutdownTimeout.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.InfoContext(ctx, "HTTP server started", slog.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	<-errCh
	logger.InfoContext(ctx, "HTTP server stopped")
	return nil
}
