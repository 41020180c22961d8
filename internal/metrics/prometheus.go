package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio mixer service
type Metrics struct {
	// UDP packet metrics
	PacketsReceived prometheus.Counter
	FramesIngested  prometheus.Counter
	TruncatedFrames prometheus.Counter
	QueueSize       prometheus.Gauge

	// Stream metrics
	ActiveStreams    prometheus.Gauge
	StreamsCreated   prometheus.Counter
	StreamsDestroyed prometheus.Counter
	StreamsRejected  prometheus.Counter
	StreamDuration   prometheus.Histogram

	// Ring buffer metrics
	BufferOverruns prometheus.Counter

	// Loopback / spatial metrics
	LoopbackRequests prometheus.Counter

	// Mix loop metrics
	MixCycles  prometheus.Counter
	MixSources prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PacketsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mixer_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		FramesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mixer_frames_ingested_total",
			Help: "Total number of audio frames written into ring buffers",
		}),
		TruncatedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mixer_truncated_frames_total",
			Help: "Total number of packets dropped for carrying less than one frame of audio",
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mixer_packet_queue_size",
			Help: "Current number of packets in the processing queue",
		}),

		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mixer_active_streams",
			Help: "Current number of active audio streams",
		}),
		StreamsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mixer_streams_created_total",
			Help: "Total number of streams created",
		}),
		StreamsDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mixer_streams_destroyed_total",
			Help: "Total number of streams destroyed",
		}),
		StreamsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mixer_streams_rejected_total",
			Help: "Total number of streams rejected at the concurrency cap",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mixer_stream_duration_seconds",
			Help:    "Duration of audio streams in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		BufferOverruns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mixer_buffer_overruns_total",
			Help: "Total number of ring buffer overrun resets",
		}),

		LoopbackRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mixer_loopback_requests_total",
			Help: "Total number of packets carrying a loopback request",
		}),

		MixCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mixer_mix_cycles_total",
			Help: "Total number of mix loop cycles executed",
		}),
		MixSources: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mixer_mix_sources",
			Help:    "Number of sources contributing per mix cycle",
			Buckets: prometheus.LinearBuckets(0, 2, 11), // 0 to 20 sources
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mixer_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mixer_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mixer_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordFrameIngested increments the frames ingested counter
func (m *Metrics) RecordFrameIngested() {
	m.FramesIngested.Inc()
}

// RecordTruncatedFrame increments the truncated frames counter
func (m *Metrics) RecordTruncatedFrame() {
	m.TruncatedFrames.Inc()
}

// SetQueueSize sets the current packet queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// SetActiveStreams sets the current number of active streams
func (m *Metrics) SetActiveStreams(count int) {
	m.ActiveStreams.Set(float64(count))
}

// RecordStreamCreated increments the streams created counter
func (m *Metrics) RecordStreamCreated() {
	m.StreamsCreated.Inc()
}

// RecordStreamDestroyed increments the streams destroyed counter and records duration
func (m *Metrics) RecordStreamDestroyed(durationSeconds float64) {
	m.StreamsDestroyed.Inc()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordStreamRejected increments the rejected streams counter
func (m *Metrics) RecordStreamRejected() {
	m.StreamsRejected.Inc()
}

// RecordBufferOverrun increments the overrun reset counter
func (m *Metrics) RecordBufferOverrun() {
	m.BufferOverruns.Inc()
}

// RecordLoopbackRequest increments the loopback request counter
func (m *Metrics) RecordLoopbackRequest() {
	m.LoopbackRequests.Inc()
}

// RecordMixCycle records one mix loop cycle and its contributing source count
func (m *Metrics) RecordMixCycle(sources int) {
	m.MixCycles.Inc()
	m.MixSources.Observe(float64(sources))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
