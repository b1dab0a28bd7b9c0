package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so wiring metrics stays optional.
type Metrics struct {
	// Frame metrics
	FramesSent      prometheus.Counter
	FramesReceived  prometheus.Counter
	FrameBytes      *prometheus.HistogramVec
	FramesDiscarded prometheus.Counter

	// Segment metrics
	SegmentsSent      prometheus.Counter
	SegmentsReceived  prometheus.Counter
	SegmentFrames     prometheus.Histogram
	TruncatedSegments prometheus.Counter
	ActiveSegments    prometheus.Gauge

	// RPC metrics
	RPCCalls *prometheus.CounterVec

	// Playback metrics
	PlaybackPosition prometheus.Histogram
	PlaybackInterrupts prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests use it to keep
// instruments off the default registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidlink_frames_sent_total",
			Help: "Total number of video frames written to outgoing streams",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidlink_frames_received_total",
			Help: "Total number of video frames decoded from incoming streams",
		}),
		FrameBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidlink_frame_size_bytes",
				Help:    "Size of video frames in bytes",
				Buckets: prometheus.ExponentialBuckets(65536, 2, 8), // 64KB to ~8MB
			},
			[]string{"direction"}, // sent or received
		),
		FramesDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidlink_frames_discarded_total",
			Help: "Total number of frames discarded by clear-buffer requests",
		}),

		SegmentsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidlink_segments_sent_total",
			Help: "Total number of video segments flushed",
		}),
		SegmentsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidlink_segments_received_total",
			Help: "Total number of segment boundaries observed",
		}),
		SegmentFrames: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidlink_segment_frames",
			Help:    "Number of frames per completed segment",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to ~2048 frames
		}),
		TruncatedSegments: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidlink_truncated_segments_total",
			Help: "Total number of streams that ended mid-frame",
		}),
		ActiveSegments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vidlink_active_segments",
			Help: "Number of byte streams currently open",
		}),

		RPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidlink_rpc_calls_total",
				Help: "Total number of RPC calls performed or handled",
			},
			[]string{"method", "outcome"},
		),

		PlaybackPosition: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidlink_playback_position_seconds",
			Help:    "Reported playback positions at segment completion",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~256s
		}),
		PlaybackInterrupts: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidlink_playback_interrupts_total",
			Help: "Total number of interrupted playback reports",
		}),
	}

	return m
}

// RecordFrameSent records an outgoing frame.
func (m *Metrics) RecordFrameSent(size int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.FrameBytes.WithLabelValues("sent").Observe(float64(size))
}

// RecordFrameReceived records a decoded incoming frame.
func (m *Metrics) RecordFrameReceived(size int) {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
	m.FrameBytes.WithLabelValues("received").Observe(float64(size))
}

// RecordFramesDiscarded records frames dropped by a clear-buffer request.
func (m *Metrics) RecordFramesDiscarded(count int) {
	if m == nil {
		return
	}
	m.FramesDiscarded.Add(float64(count))
}

// RecordSegmentSent records a flushed segment.
func (m *Metrics) RecordSegmentSent(frames int) {
	if m == nil {
		return
	}
	m.SegmentsSent.Inc()
	m.SegmentFrames.Observe(float64(frames))
}

// RecordSegmentReceived records an observed segment boundary.
func (m *Metrics) RecordSegmentReceived(frames int) {
	if m == nil {
		return
	}
	m.SegmentsReceived.Inc()
	m.SegmentFrames.Observe(float64(frames))
}

// RecordTruncatedSegment records a stream that ended mid-frame.
func (m *Metrics) RecordTruncatedSegment() {
	if m == nil {
		return
	}
	m.TruncatedSegments.Inc()
}

// SegmentOpened tracks an opened byte stream.
func (m *Metrics) SegmentOpened() {
	if m == nil {
		return
	}
	m.ActiveSegments.Inc()
}

// SegmentClosed tracks a closed byte stream.
func (m *Metrics) SegmentClosed() {
	if m == nil {
		return
	}
	m.ActiveSegments.Dec()
}

// RecordRPC records an RPC call and its outcome.
func (m *Metrics) RecordRPC(method string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RPCCalls.WithLabelValues(method, outcome).Inc()
}

// RecordPlaybackFinished records a playback completion report.
func (m *Metrics) RecordPlaybackFinished(position float64, interrupted bool) {
	if m == nil {
		return
	}
	m.PlaybackPosition.Observe(position)
	if interrupted {
		m.PlaybackInterrupts.Inc()
	}
}
