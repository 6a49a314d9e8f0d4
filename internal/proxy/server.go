// Package proxy implements the forwarding proxy: a TCP accept loop
// gated by the admission controller, and the per-connection pipeline
// that frames, parses, forwards, and relays each request.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"prefix-proxy-go/internal/admission"
	"prefix-proxy-go/internal/config"
	"prefix-proxy-go/internal/metrics"
	"prefix-proxy-go/internal/origin"
)

// Server accepts client connections and services each one on its own
// goroutine. Connections share nothing but the immutable config and the
// admission pool.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	admission *admission.Controller
	connector *origin.Connector
	limiter   *rate.Limiter

	baseCtx context.Context
	cancel  context.CancelFunc

	ln net.Listener
	wg sync.WaitGroup

	mu     sync.Mutex
	active map[net.Conn]struct{}
}

// NewServer creates a proxy server. The metrics parameter is optional;
// pass nil to disable metrics recording.
func NewServer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	queueSize := cfg.Server.QueueSize
	if queueSize < 0 {
		queueSize = 0 // -1 in config: reject as soon as all slots are taken
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:       cfg,
		logger:    logger.With("component", "proxy_server"),
		metrics:   m,
		admission: admission.New(cfg.Server.MaxConns, queueSize, cfg.Server.QueueTimeout()),
		connector: origin.NewConnector(cfg.Server.ConnectTimeout(), logger, m),
		baseCtx:   ctx,
		cancel:    cancel,
		active:    make(map[net.Conn]struct{}),
	}

	if rl := cfg.Server.RateLimit; rl.Enabled {
		burst := int(rl.AcceptsPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rl.AcceptsPerSecond), burst)
		s.logger.Info("accept rate limiter enabled", "accepts_per_second", rl.AcceptsPerSecond)
	}

	return s
}

// Listen binds the proxy listener. A bind failure is the one fatal
// startup condition; there is no retry.
func (s *Server) Listen() error {
	addr := s.cfg.Server.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	s.ln = ln
	s.logger.Info("proxy listening", "addr", ln.Addr().String(), "prefix", s.cfg.Server.Prefix,
		"max_conns", s.cfg.Server.MaxConns)
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve runs the accept loop until the listener is closed. Accept
// errors on individual connections never stop the loop.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.logger.Info("connection rejected by rate limiter", "remote", conn.RemoteAddr().String())
			s.countConn(metrics.OutcomeRejected)
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Shutdown closes the listener and every active connection, then waits
// for the connection handlers to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.ln != nil {
		s.ln.Close()
	}

	s.mu.Lock()
	for conn := range s.active {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("proxy shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("proxy shutdown: %w", ctx.Err())
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.active[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()
}

// ActiveConnections reports how many connections currently hold an
// admission slot.
func (s *Server) ActiveConnections() int {
	return s.admission.Active()
}

// QueuedConnections reports how many accepted connections are waiting
// for an admission slot.
func (s *Server) QueuedConnections() int {
	return s.admission.Waiting()
}

func (s *Server) countConn(outcome string) {
	if s.metrics != nil {
		s.metrics.ConnectionsTotal.WithLabelValues(outcome).Inc()
	}
}
