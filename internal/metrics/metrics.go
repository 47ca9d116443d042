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
	// Capture and streaming counters
	FramesRead       atomic.Uint64
	FramesStreamed   atomic.Uint64
	ReadFailures     atomic.Uint64
	InferenceErrors  atomic.Uint64
	EncodeErrors     atomic.Uint64
	StreamClients    atomic.Int64
	SessionActive    atomic.Uint64 // 0 = idle, 1 = streaming
	SessionStarts    atomic.Uint64
	DetectionsRaw    atomic.Uint64
	DetectionsPassed atomic.Uint64

	// Speech counters
	Announcements        atomic.Uint64
	AnnouncementsDropped atomic.Uint64
	SpeechErrors         atomic.Uint64

	// Latency tracking (last observed value)
	InferenceLatencyMs atomic.Uint64
	EncodeLatencyMs    atomic.Uint64

	// Event fanout
	EventClients atomic.Int64

	inferenceHist prometheus.Histogram
	registry      *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.counter("voicecam_frames_read_total", "Total frames read from the capture device", &m.FramesRead)
	m.counter("voicecam_frames_streamed_total", "Total MJPEG chunks written to clients", &m.FramesStreamed)
	m.counter("voicecam_capture_read_failures_total", "Capture reads that ended a stream", &m.ReadFailures)
	m.counter("voicecam_inference_errors_total", "Model inference failures", &m.InferenceErrors)
	m.counter("voicecam_encode_errors_total", "JPEG encode failures", &m.EncodeErrors)
	m.counter("voicecam_session_starts_total", "Capture device opens", &m.SessionStarts)
	m.counter("voicecam_detections_total", "Detections reported by the model", &m.DetectionsRaw)
	m.counter("voicecam_detections_accepted_total", "Detections that passed the allow-list and threshold", &m.DetectionsPassed)
	m.counter("voicecam_announcements_total", "Announcements submitted to the voice engine", &m.Announcements)
	m.counter("voicecam_announcements_dropped_total", "Announcements dropped because the speech queue was full", &m.AnnouncementsDropped)
	m.counter("voicecam_speech_errors_total", "Voice engine failures", &m.SpeechErrors)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "voicecam_session_active",
			Help: "Capture session active (0=idle, 1=streaming)",
		},
		func() float64 { return float64(m.SessionActive.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "voicecam_stream_clients",
			Help: "Number of connected MJPEG clients",
		},
		func() float64 { return float64(m.StreamClients.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "voicecam_event_clients",
			Help: "Number of detection event subscribers (SSE and WebRTC)",
		},
		func() float64 { return float64(m.EventClients.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "voicecam_inference_latency_ms",
			Help: "Last model inference latency in milliseconds",
		},
		func() float64 { return float64(m.InferenceLatencyMs.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "voicecam_encode_latency_ms",
			Help: "Last JPEG encode latency in milliseconds",
		},
		func() float64 { return float64(m.EncodeLatencyMs.Load()) },
	))

	m.inferenceHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicecam_inference_seconds",
		Help:    "Model inference duration",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})
	m.registry.MustRegister(m.inferenceHist)
}

// ObserveInference records one inference duration.
func (m *Metrics) ObserveInference(d time.Duration) {
	m.InferenceLatencyMs.Store(uint64(d.Milliseconds()))
	m.inferenceHist.Observe(d.Seconds())
}

// ObserveEncode records one encode duration.
func (m *Metrics) ObserveEncode(d time.Duration) {
	m.EncodeLatencyMs.Store(uint64(d.Milliseconds()))
}

// SetSessionActive flips the session gauge.
func (m *Metrics) SetSessionActive(active bool) {
	if active {
		m.SessionActive.Store(1)
		return
	}
	m.SessionActive.Store(0)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
