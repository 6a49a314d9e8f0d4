// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Connection outcomes used as the "outcome" label value. The set is
// fixed to keep label cardinality bounded.
const (
	OutcomeProxied     = "proxied"
	OutcomeBadRequest  = "bad_request"
	OutcomeUnreachable = "unreachable"
	OutcomeRejected    = "rejected"
	OutcomeClosedEarly = "closed_early"
	OutcomeRelayError  = "relay_error"
)

// Relay directions used as the "direction" label value.
const (
	DirectionToOrigin = "to_origin"
	DirectionToClient = "to_client"
)

// Default histogram buckets for dial and connection latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal   *prometheus.CounterVec
	ConnectionsActive  prometheus.Gauge
	ConnectionDuration prometheus.Histogram

	RelayBytesTotal    *prometheus.CounterVec
	OriginDialDuration prometheus.Histogram
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefix_proxy_connections_total",
			Help: "Total client connections by outcome.",
		}, []string{"outcome"}),

		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prefix_proxy_connections_active",
			Help: "Number of client connections currently admitted.",
		}),

		ConnectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prefix_proxy_connection_duration_seconds",
			Help:    "Full connection lifecycle duration in seconds.",
			Buckets: defaultBuckets,
		}),

		RelayBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefix_proxy_relay_bytes_total",
			Help: "Bytes relayed between client and origin by direction.",
		}, []string{"direction"}),

		OriginDialDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prefix_proxy_origin_dial_duration_seconds",
			Help:    "Origin TCP dial latency in seconds.",
			Buckets: defaultBuckets,
		}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.ConnectionDuration,
		m.RelayBytesTotal,
		m.OriginDialDuration,
	)

	return m
}
