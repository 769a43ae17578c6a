package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Perception counters
	FramesSubmitted atomic.Uint64
	FramesAnalyzed  atomic.Uint64
	FramesSkipped   atomic.Uint64 // Returned cached result (analysis busy)
	AnalysisErrors  atomic.Uint64
	Observations    atomic.Uint64

	// Emitter counters
	FastFires atomic.Uint64
	SlowFires atomic.Uint64

	// Generation counters
	RequestsEnqueued     atomic.Uint64
	RequestsCoalesced    atomic.Uint64 // Pending slot overwritten before dispatch
	GenerationsStarted   atomic.Uint64
	GenerationsCompleted atomic.Uint64
	GenerationsFailed    atomic.Uint64
	KeepAliveReplays     atomic.Uint64

	// Latency tracking
	AnalysisLatencyMs   atomic.Uint64 // Last analysis call duration in ms
	GenerationLatencyMs atomic.Uint64 // Last generation call duration in ms

	// Delivery counters
	ArtifactsStored   atomic.Uint64
	ArtifactsFetched  atomic.Uint64
	ArtifactsMissing  atomic.Uint64
	PushEventsSent    atomic.Uint64
	PushEventsDropped atomic.Uint64
	DispatchErrors    atomic.Uint64

	// Session tracking
	ActiveSessions atomic.Uint64
	TotalSessions  atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"emostream_frames_submitted_total", "Total frames submitted for analysis", m.FramesSubmitted.Load},
		{"emostream_frames_analyzed_total", "Total frames actually analyzed", m.FramesAnalyzed.Load},
		{"emostream_frames_skipped_total", "Total frames answered from the cached result", m.FramesSkipped.Load},
		{"emostream_analysis_errors_total", "Total analysis capability failures", m.AnalysisErrors.Load},
		{"emostream_observations_total", "Total observations appended to smoothing windows", m.Observations.Load},
		{"emostream_emitter_fast_fires_total", "Total fast-cadence emitter fires", m.FastFires.Load},
		{"emostream_emitter_slow_fires_total", "Total slow-cadence emitter fires", m.SlowFires.Load},
		{"emostream_requests_enqueued_total", "Total generation requests enqueued", m.RequestsEnqueued.Load},
		{"emostream_requests_coalesced_total", "Total pending requests replaced before dispatch", m.RequestsCoalesced.Load},
		{"emostream_generations_started_total", "Total generation calls started", m.GenerationsStarted.Load},
		{"emostream_generations_completed_total", "Total generation calls completed", m.GenerationsCompleted.Load},
		{"emostream_generations_failed_total", "Total generation calls failed", m.GenerationsFailed.Load},
		{"emostream_keepalive_replays_total", "Total keep-alive replays of the last high-priority request", m.KeepAliveReplays.Load},
		{"emostream_analysis_latency_ms", "Last analysis call duration in milliseconds", m.AnalysisLatencyMs.Load},
		{"emostream_generation_latency_ms", "Last generation call duration in milliseconds", m.GenerationLatencyMs.Load},
		{"emostream_artifacts_stored_total", "Total artifacts stored in the registry", m.ArtifactsStored.Load},
		{"emostream_artifacts_fetched_total", "Total artifacts consumed from the registry", m.ArtifactsFetched.Load},
		{"emostream_artifacts_missing_total", "Total artifact fetches that found nothing", m.ArtifactsMissing.Load},
		{"emostream_push_events_sent_total", "Total events pushed to live sessions", m.PushEventsSent.Load},
		{"emostream_push_events_dropped_total", "Total push events dropped (slow or gone client)", m.PushEventsDropped.Load},
		{"emostream_dispatch_errors_total", "Total dispatch failures", m.DispatchErrors.Load},
		{"emostream_active_sessions", "Number of attached sessions", m.ActiveSessions.Load},
		{"emostream_total_sessions", "Total sessions attached since start", m.TotalSessions.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: g.name,
				Help: g.help,
			},
			func() float64 { return float64(load()) },
		))
	}
}

// UpdateAnalysisLatency records the duration of an analysis call
func (m *Metrics) UpdateAnalysisLatency(d time.Duration) {
	m.AnalysisLatencyMs.Store(uint64(d.Milliseconds()))
}

// UpdateGenerationLatency records the duration of a generation call
func (m *Metrics) UpdateGenerationLatency(d time.Duration) {
	m.GenerationLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
