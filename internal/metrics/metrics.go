// Package metrics provides Prometheus instrumentation for the proxy
// engine: active connections, bytes transferred, salt-filter rejections,
// and handshake latency, each labeled by handler type where useful.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "proxyd"

// Metrics holds every counter/gauge/histogram this engine records.
// Components always record against a non-nil Metrics instance — the
// registry is simply never exposed over HTTP when metrics are disabled
// in configuration (see SPEC_FULL.md §4.8).
type Metrics struct {
	ActiveConnections *prometheus.GaugeVec
	BytesTransferred  *prometheus.CounterVec
	SaltRejections    prometheus.Counter
	HandshakeDuration *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide Metrics instance, registered against
// prometheus.DefaultRegisterer.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetricsWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetricsWithRegistry builds a Metrics instance registered against
// reg; tests pass a fresh prometheus.NewRegistry() for isolation.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of currently active connections by handler type",
		}, []string{"handler"}),
		BytesTransferred: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_transferred_total",
			Help:      "Total bytes relayed, by direction",
		}, []string{"direction"}),
		SaltRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "salt_rejections_total",
			Help:      "Total Shadowsocks handshakes rejected for a duplicate or forged salt",
		}),
		HandshakeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Histogram of handler handshake duration, by handler type",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"handler"}),
	}
}

// ConnectionOpened increments the active-connection gauge for handler.
func (m *Metrics) ConnectionOpened(handler string) {
	m.ActiveConnections.WithLabelValues(handler).Inc()
}

// ConnectionClosed decrements the active-connection gauge for handler.
func (m *Metrics) ConnectionClosed(handler string) {
	m.ActiveConnections.WithLabelValues(handler).Dec()
}

// RecordForwardBytes records n bytes relayed client-to-remote.
func (m *Metrics) RecordForwardBytes(n int) {
	m.BytesTransferred.WithLabelValues("forward").Add(float64(n))
}

// RecordBackwardBytes records n bytes relayed remote-to-client.
func (m *Metrics) RecordBackwardBytes(n int) {
	m.BytesTransferred.WithLabelValues("backward").Add(float64(n))
}

// RecordSaltRejection records one handshake rejected for a duplicate or
// forged salt.
func (m *Metrics) RecordSaltRejection() {
	m.SaltRejections.Inc()
}

// RecordHandshake records how long handler's handshake took.
func (m *Metrics) RecordHandshake(handler string, seconds float64) {
	m.HandshakeDuration.WithLabelValues(handler).Observe(seconds)
}
