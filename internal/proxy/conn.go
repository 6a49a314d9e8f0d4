package proxy

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"prefix-proxy-go/internal/admission"
	"prefix-proxy-go/internal/httphead"
	"prefix-proxy-go/internal/metrics"
	"prefix-proxy-go/internal/origin"
	"prefix-proxy-go/internal/relay"
)

// handle runs one connection through admission and the pipeline. The
// admission slot is released when this function returns, whatever the
// exit path.
func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()

	logger := s.logger.With("remote", conn.RemoteAddr().String())

	if err := s.admission.Acquire(s.baseCtx); err != nil {
		if errors.Is(err, admission.ErrQueueFull) {
			logger.Info("connection rejected, admission queue full")
			s.countConn(metrics.OutcomeRejected)
		}
		conn.Close()
		return
	}
	defer s.admission.Release()

	s.track(conn)
	defer s.untrack(conn)

	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
		defer s.metrics.ConnectionsActive.Dec()
	}

	start := time.Now()
	outcome := s.serveConn(conn, logger)

	s.countConn(outcome)
	if s.metrics != nil {
		s.metrics.ConnectionDuration.Observe(time.Since(start).Seconds())
	}
	logger.Info("connection done", "outcome", outcome, "duration_ms", time.Since(start).Milliseconds())
}

// serveConn runs the pipeline on an admitted connection: frame the
// head, parse and rewrite it, dial the origin, forward head plus any
// residual body bytes, then relay. All errors are terminal for the
// connection and recovered here; none escape to the accept loop.
func (s *Server) serveConn(conn net.Conn, logger *slog.Logger) string {
	defer conn.Close()
	srv := &s.cfg.Server

	// The whole head must arrive within the idle bound.
	if t := srv.IdleTimeout(); t > 0 {
		conn.SetReadDeadline(time.Now().Add(t))
	}

	buf, headEnd, err := httphead.ReadHead(conn, srv.ReadSize, srv.MaxHeadBytes)
	if err != nil {
		return s.headError(conn, logger, err)
	}
	conn.SetReadDeadline(time.Time{})
	logger.Debug("request head framed", "head_bytes", headEnd, "residual_bytes", len(buf)-headEnd)

	req, err := httphead.Parse(buf[:headEnd], srv.Prefix)
	if err != nil {
		logger.Info("rejecting request", "err", err)
		s.writeError(conn, 400)
		return metrics.OutcomeBadRequest
	}
	logger.Debug("request parsed",
		"method", req.Method,
		"origin", req.Addr(),
		"forward_target", req.ForwardTarget,
	)

	oconn, err := s.connector.Dial(s.baseCtx, req.Addr())
	if err != nil {
		logger.Info("origin dial failed", "origin", req.Addr(), "err", err)
		if origin.IsTimeout(err) {
			s.writeError(conn, 504)
		} else {
			s.writeError(conn, 502)
		}
		return metrics.OutcomeUnreachable
	}
	defer oconn.Close()

	if _, err := oconn.Write(req.Rewritten()); err != nil {
		logger.Debug("writing rewritten head failed", "err", err)
		s.writeError(conn, 502)
		return metrics.OutcomeRelayError
	}
	if headEnd < len(buf) {
		if _, err := oconn.Write(buf[headEnd:]); err != nil {
			logger.Debug("writing buffered body bytes failed", "err", err)
			return metrics.OutcomeRelayError
		}
	}

	res, err := relay.Run(conn, oconn, srv.ReadSize, srv.IdleTimeout())
	if s.metrics != nil {
		s.metrics.RelayBytesTotal.WithLabelValues(metrics.DirectionToOrigin).Add(float64(res.ToOrigin))
		s.metrics.RelayBytesTotal.WithLabelValues(metrics.DirectionToClient).Add(float64(res.ToClient))
	}
	logger.Debug("relay finished",
		"bytes_to_origin", res.ToOrigin,
		"bytes_to_client", res.ToClient,
		"err", err,
	)
	if err != nil {
		return metrics.OutcomeRelayError
	}
	return metrics.OutcomeProxied
}

// headError classifies framing failures. A half-sent head gets no
// response (the client is gone or misbehaving); an oversized head gets a
// 400 so the client learns why it was cut off.
func (s *Server) headError(conn net.Conn, logger *slog.Logger, err error) string {
	switch {
	case errors.Is(err, httphead.ErrHeadTooLarge):
		logger.Info("rejecting request", "err", err)
		s.writeError(conn, 400)
		return metrics.OutcomeBadRequest
	case errors.Is(err, httphead.ErrConnectionClosedEarly):
		logger.Debug("client closed before full head", "err", err)
	default:
		logger.Debug("reading request head failed", "err", err)
	}
	return metrics.OutcomeClosedEarly
}
