// Package admin serves the operator surface on its own HTTP listener:
// liveness, proxy status, and Prometheus metrics. It is separate from
// the data path, which speaks raw TCP and never passes through here.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prefix-proxy-go/internal/config"
	"prefix-proxy-go/internal/metrics"
	"prefix-proxy-go/internal/middleware"
)

// Version is a string type for dependency injection of the build version.
type Version string

// StatusSource exposes the proxy counters shown on /statusz.
type StatusSource interface {
	ActiveConnections() int
	QueuedConnections() int
}

// Server is the admin HTTP server.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	echo    *echo.Echo
	version Version
	status  StatusSource
}

// NewServer creates the admin server and registers its routes. The
// metrics parameter may be nil when metrics are disabled.
func NewServer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, v Version, src StatusSource) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	s := &Server{
		cfg:     cfg,
		logger:  logger.With("component", "admin_server"),
		echo:    e,
		version: v,
		status:  src,
	}

	e.Use(middleware.RequestLogger(s.logger))
	e.Use(middleware.SecurityHeaders())

	e.GET("/healthz", s.handleHealthz)
	e.GET("/statusz", s.handleStatusz)
	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(
			promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	return s
}

// Start binds the admin listener and serves in the background.
func (s *Server) Start() error {
	addr := s.cfg.Admin.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind admin %s: %w", addr, err)
	}
	s.logger.Info("admin listening", "addr", ln.Addr().String())

	go func() {
		if err := s.echo.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin server error", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// handleHealthz returns a simple OK response for liveness probes.
func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatusz returns proxy status information.
func (s *Server) handleStatusz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "ok",
		"version":            string(s.version),
		"prefix":             s.cfg.Server.Prefix,
		"max_conns":          s.cfg.Server.MaxConns,
		"active_connections": s.status.ActiveConnections(),
		"queued_connections": s.status.QueuedConnections(),
	})
}
