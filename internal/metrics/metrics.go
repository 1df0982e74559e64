// Package metrics provides Prometheus metrics for the client: session
// connection state, Mercury request latency, audio-key exchange, and CDN
// chunk fetch throughput/errors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gosptok"

// Metrics holds every Prometheus collector the client registers.
type Metrics struct {
	// Session metrics
	SessionsConnected  prometheus.Gauge
	SessionsTotal      prometheus.Counter
	SessionDisconnects *prometheus.CounterVec
	HandshakeLatency   prometheus.Histogram
	HandshakeErrors    *prometheus.CounterVec

	// Mercury metrics
	MercuryRequests      *prometheus.CounterVec
	MercuryRequestErrors *prometheus.CounterVec
	MercuryRequestLatency prometheus.Histogram
	MercurySubscriptions prometheus.Gauge
	MercuryEventsDispatched prometheus.Counter

	// Audio-key metrics
	AudioKeyRequests      prometheus.Counter
	AudioKeyErrors        *prometheus.CounterVec
	AudioKeyRequestLatency prometheus.Histogram

	// CDN metrics
	CDNChunksFetched prometheus.Counter
	CDNChunkErrors   *prometheus.CounterVec
	CDNBytesFetched  prometheus.Counter
	CDNChunkLatency  prometheus.Histogram

	// Stream metrics
	StreamsOpened     prometheus.Counter
	StreamsActive     prometheus.Gauge
	StreamOpenLatency prometheus.Histogram
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide default metrics instance, registered
// against prometheus.DefaultRegisterer.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a Metrics instance registered against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance registered against reg,
// so tests and multiple client instances can use independent registries.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_connected",
			Help:      "Number of currently connected access-point sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of access-point sessions established",
		}),
		SessionDisconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_disconnects_total",
			Help:      "Total session disconnections by reason",
		}, []string{"reason"}),
		HandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Histogram of access-point handshake + login latency",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		HandshakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_errors_total",
			Help:      "Total handshake/login errors by type",
		}, []string{"error_type"}),

		MercuryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mercury_requests_total",
			Help:      "Total Mercury requests by method",
		}, []string{"method"}),
		MercuryRequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mercury_request_errors_total",
			Help:      "Total Mercury request errors by method",
		}, []string{"method"}),
		MercuryRequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mercury_request_latency_seconds",
			Help:      "Histogram of Mercury SendSync round-trip latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		MercurySubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mercury_subscriptions_active",
			Help:      "Number of active Mercury prefix subscriptions",
		}),
		MercuryEventsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mercury_events_dispatched_total",
			Help:      "Total Mercury events dispatched to subscription handlers",
		}),

		AudioKeyRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_key_requests_total",
			Help:      "Total audio-key requests issued",
		}),
		AudioKeyErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_key_errors_total",
			Help:      "Total audio-key errors by type",
		}, []string{"error_type"}),
		AudioKeyRequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_key_request_latency_seconds",
			Help:      "Histogram of audio-key request round-trip latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}),

		CDNChunksFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cdn_chunks_fetched_total",
			Help:      "Total CDN chunks fetched and installed",
		}),
		CDNChunkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cdn_chunk_errors_total",
			Help:      "Total CDN chunk fetch errors by reason",
		}, []string{"reason"}),
		CDNBytesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cdn_bytes_fetched_total",
			Help:      "Total bytes fetched from the storage CDN",
		}),
		CDNChunkLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cdn_chunk_fetch_latency_seconds",
			Help:      "Histogram of per-chunk CDN fetch latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		StreamsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_opened_total",
			Help:      "Total playback streams opened",
		}),
		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently open playback streams",
		}),
		StreamOpenLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_open_latency_seconds",
			Help:      "Histogram of end-to-end LoadTrack/LoadEpisode latency",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
		}),
	}
}

// RecordSessionConnect records a newly established access-point session.
func (m *Metrics) RecordSessionConnect() {
	m.SessionsConnected.Inc()
	m.SessionsTotal.Inc()
}

// RecordSessionDisconnect records a session teardown.
func (m *Metrics) RecordSessionDisconnect(reason string) {
	m.SessionsConnected.Dec()
	m.SessionDisconnects.WithLabelValues(reason).Inc()
}

// RecordHandshake records a successful handshake/login.
func (m *Metrics) RecordHandshake(latencySeconds float64) {
	m.HandshakeLatency.Observe(latencySeconds)
}

// RecordHandshakeError records a handshake or login failure.
func (m *Metrics) RecordHandshakeError(errorType string) {
	m.HandshakeErrors.WithLabelValues(errorType).Inc()
}

// RecordMercuryRequest records a completed Mercury SendSync call.
func (m *Metrics) RecordMercuryRequest(method string, latencySeconds float64) {
	m.MercuryRequests.WithLabelValues(method).Inc()
	m.MercuryRequestLatency.Observe(latencySeconds)
}

// RecordMercuryRequestError records a failed Mercury SendSync call.
func (m *Metrics) RecordMercuryRequestError(method string) {
	m.MercuryRequestErrors.WithLabelValues(method).Inc()
}

// SetMercurySubscriptions sets the current subscription count.
func (m *Metrics) SetMercurySubscriptions(count int) {
	m.MercurySubscriptions.Set(float64(count))
}

// RecordMercuryEventDispatched records one event handed to a subscriber.
func (m *Metrics) RecordMercuryEventDispatched() {
	m.MercuryEventsDispatched.Inc()
}

// RecordAudioKeyRequest records a completed audio-key request.
func (m *Metrics) RecordAudioKeyRequest(latencySeconds float64) {
	m.AudioKeyRequests.Inc()
	m.AudioKeyRequestLatency.Observe(latencySeconds)
}

// RecordAudioKeyError records a failed audio-key request.
func (m *Metrics) RecordAudioKeyError(errorType string) {
	m.AudioKeyErrors.WithLabelValues(errorType).Inc()
}

// RecordCDNChunkFetched records one successfully fetched and decrypted
// chunk of the given byte size.
func (m *Metrics) RecordCDNChunkFetched(bytes int, latencySeconds float64) {
	m.CDNChunksFetched.Inc()
	m.CDNBytesFetched.Add(float64(bytes))
	m.CDNChunkLatency.Observe(latencySeconds)
}

// RecordCDNChunkError records a failed chunk fetch.
func (m *Metrics) RecordCDNChunkError(reason string) {
	m.CDNChunkErrors.WithLabelValues(reason).Inc()
}

// RecordStreamOpen records a stream being opened.
func (m *Metrics) RecordStreamOpen(latencySeconds float64) {
	m.StreamsActive.Inc()
	m.StreamsOpened.Inc()
	m.StreamOpenLatency.Observe(latencySeconds)
}

// RecordStreamClose records a stream being closed.
func (m *Metrics) RecordStreamClose() {
	m.StreamsActive.Dec()
}
