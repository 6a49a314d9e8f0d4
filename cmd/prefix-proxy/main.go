package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"go.uber.org/fx"

	"prefix-proxy-go/internal/admin"
	"prefix-proxy-go/internal/config"
	"prefix-proxy-go/internal/metrics"
	"prefix-proxy-go/internal/proxy"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("prefix-proxy"),
		kong.Description("Forwarding HTTP proxy that strips a path prefix and relays to the origin."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() admin.Version { return admin.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			proxy.NewServer,
			newAdminServer,
		),
		fx.Invoke(startProxy, startAdmin),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newAdminServer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, v admin.Version, p *proxy.Server) *admin.Server {
	return admin.NewServer(cfg, logger, m, v, p)
}

func startProxy(lc fx.Lifecycle, s *proxy.Server, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := s.Listen(); err != nil {
				return err
			}
			go func() {
				if err := s.Serve(); err != nil {
					logger.Error("proxy server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down proxy")
			return s.Shutdown(ctx)
		},
	})
}

func startAdmin(lc fx.Lifecycle, s *admin.Server, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Admin.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down admin server")
			return s.Shutdown(ctx)
		},
	})
}
