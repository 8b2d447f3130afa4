package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks relay traffic for the /metrics endpoint. A nil *Metrics is
// valid and records nothing, so tests can construct handlers without one.
type Metrics struct {
	connections     prometheus.Gauge
	framesReceived  *prometheus.CounterVec
	framesForwarded *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	decodeErrors    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_bound_connections",
			Help: "Number of users currently bound to a live connection.",
		}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Inbound frames successfully decoded, by frame type.",
		}, []string{"type"}),
		framesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_forwarded_total",
			Help: "Frames delivered to a recipient connection, by frame type.",
		}, []string{"type"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Frames dropped without delivery, by frame type and reason.",
		}, []string{"type", "reason"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_frame_decode_errors_total",
			Help: "Inbound payloads that failed to decode as a relay frame.",
		}),
	}
}

func (m *Metrics) SetBoundConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) RecordFrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(frameType).Inc()
}

func (m *Metrics) RecordFrameForwarded(frameType string) {
	if m == nil {
		return
	}
	m.framesForwarded.WithLabelValues(frameType).Inc()
}

func (m *Metrics) RecordFrameDropped(frameType, reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(frameType, reason).Inc()
}

func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}
