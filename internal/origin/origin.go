// Package origin opens outbound TCP connections to the servers named by
// proxied requests.
package origin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"prefix-proxy-go/internal/metrics"
)

// ErrUnreachable wraps every dial failure: DNS errors, refused
// connections, and connect timeouts. Callers that need to distinguish a
// timeout (504 rather than 502) can errors.As into net.Error.
var ErrUnreachable = errors.New("origin unreachable")

// Connector dials origins with a bounded connection timeout.
type Connector struct {
	dialer  net.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewConnector creates a Connector. The metrics parameter is optional;
// pass nil to disable dial metrics recording.
func NewConnector(timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Connector {
	return &Connector{
		dialer:  net.Dialer{Timeout: timeout},
		logger:  logger.With("component", "origin_connector"),
		metrics: m,
	}
}

// Dial opens a TCP connection to addr (host:port). The returned conn is
// ready for the rewritten request head and any buffered body bytes.
func (c *Connector) Dial(ctx context.Context, addr string) (net.Conn, error) {
	c.logger.Debug("dialing origin", "addr", addr)

	start := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		c.metrics.OriginDialDuration.Observe(duration)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrUnreachable, addr, err)
	}
	return conn, nil
}

// IsTimeout reports whether a Dial failure was a connect timeout.
func IsTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
