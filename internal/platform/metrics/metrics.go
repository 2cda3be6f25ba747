package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the live chunk pipeline
// and the relay.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter

	chunksProducedTotal     prometheus.Counter
	chunksUploadedTotal     prometheus.Counter
	chunkUploadsFailedTotal prometheus.Counter
	chunksPlayedTotal       prometheus.Counter
	chunksSkippedTotal      prometheus.Counter
	staleNotificationsTotal prometheus.Counter
	sessionsEndedTotal      prometheus.Counter
	activeSessions          prometheus.Gauge
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	chunksProducedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_chunks_produced_total",
		Help: "Total number of chunks produced by the encoder",
	})
	chunksUploadedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_chunks_uploaded_total",
		Help: "Total number of chunks successfully published",
	})
	chunkUploadsFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_chunk_uploads_failed_total",
		Help: "Total number of chunk uploads that failed and were dropped",
	})
	chunksPlayedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_chunks_played_total",
		Help: "Total number of chunks played by sequencers",
	})
	chunksSkippedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_chunks_skipped_total",
		Help: "Total number of chunks skipped after fetch failure or gap timeout",
	})
	staleNotificationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_stale_notifications_total",
		Help: "Total number of duplicate or stale change notifications dropped",
	})
	sessionsEndedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_sessions_ended_total",
		Help: "Total number of sessions ended",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livecast_active_sessions",
		Help: "Number of sessions that are live",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		chunksProducedTotal,
		chunksUploadedTotal,
		chunkUploadsFailedTotal,
		chunksPlayedTotal,
		chunksSkippedTotal,
		staleNotificationsTotal,
		sessionsEndedTotal,
		activeSessions,
	)

	return &Metrics{
		registry:                registry,
		requestsTotal:           requestsTotal,
		errorsTotal:             errorsTotal,
		chunksProducedTotal:     chunksProducedTotal,
		chunksUploadedTotal:     chunksUploadedTotal,
		chunkUploadsFailedTotal: chunkUploadsFailedTotal,
		chunksPlayedTotal:       chunksPlayedTotal,
		chunksSkippedTotal:      chunksSkippedTotal,
		staleNotificationsTotal: staleNotificationsTotal,
		sessionsEndedTotal:      sessionsEndedTotal,
		activeSessions:          activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncChunksProduced increments the produced chunk counter.
func (m *Metrics) IncChunksProduced() {
	m.chunksProducedTotal.Inc()
}

// IncChunksUploaded increments the uploaded chunk counter.
func (m *Metrics) IncChunksUploaded() {
	m.chunksUploadedTotal.Inc()
}

// IncChunkUploadsFailed increments the dropped-upload counter.
func (m *Metrics) IncChunkUploadsFailed() {
	m.chunkUploadsFailedTotal.Inc()
}

// IncChunksPlayed increments the played chunk counter.
func (m *Metrics) IncChunksPlayed() {
	m.chunksPlayedTotal.Inc()
}

// IncChunksSkipped increments the skipped chunk counter.
func (m *Metrics) IncChunksSkipped() {
	m.chunksSkippedTotal.Inc()
}

// IncStaleNotifications increments the stale notification counter.
func (m *Metrics) IncStaleNotifications() {
	m.staleNotificationsTotal.Inc()
}

// IncSessionsEnded increments the sessions ended counter.
func (m *Metrics) IncSessionsEnded() {
	m.sessionsEndedTotal.Inc()
}

// SetActiveSessions sets the live sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
