package prometheus

import (
	"strconv"

	"github.com/droidprobe/droidprobe/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sessionStates enumerates the label values of the state gauge so the
// gauge always exposes exactly one state as 1.
var sessionStates = []string{"connecting", "running", "suspended", "disconnected"}

// sessionMetrics is the Prometheus implementation of metrics.SessionMetrics.
type sessionMetrics struct {
	packetsSent     *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	bytesSent       *prometheus.CounterVec
	bytesReceived   *prometheus.CounterVec
	vmErrors        *prometheus.CounterVec
	events          *prometheus.CounterVec
	state           *prometheus.GaugeVec
}

// NewSessionMetrics creates a new Prometheus-backed session metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSessionMetrics() metrics.SessionMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &sessionMetrics{
		packetsSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "droidprobe_jdwp_packets_sent_total",
				Help: "Total number of JDWP request packets sent by command",
			},
			[]string{"command"},
		),
		packetsReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "droidprobe_jdwp_packets_received_total",
				Help: "Total number of JDWP packets received by kind (reply, event)",
			},
			[]string{"kind"},
		),
		bytesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "droidprobe_jdwp_bytes_sent_total",
				Help: "Total bytes sent to the VM by command",
			},
			[]string{"command"},
		),
		bytesReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "droidprobe_jdwp_bytes_received_total",
				Help: "Total bytes received from the VM by kind",
			},
			[]string{"kind"},
		),
		vmErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "droidprobe_jdwp_vm_errors_total",
				Help: "Total number of replies carrying a nonzero JDWP error code",
			},
			[]string{"code"},
		),
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "droidprobe_jdwp_events_total",
				Help: "Total number of decoded VM events by kind",
			},
			[]string{"kind"},
		),
		state: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "droidprobe_jdwp_session_state",
				Help: "Current session state (one label is 1, the rest 0)",
			},
			[]string{"state"},
		),
	}
}

// RecordPacketSent records an outbound request packet.
func (m *sessionMetrics) RecordPacketSent(command string, bytes int) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(command).Inc()
	m.bytesSent.WithLabelValues(command).Add(float64(bytes))
}

// RecordPacketReceived records an inbound packet.
func (m *sessionMetrics) RecordPacketReceived(kind string, bytes int) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(kind).Inc()
	m.bytesReceived.WithLabelValues(kind).Add(float64(bytes))
}

// RecordVMError records a reply carrying a nonzero error code.
func (m *sessionMetrics) RecordVMError(code uint16) {
	if m == nil {
		return
	}
	m.vmErrors.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

// RecordEvent records a decoded VM event.
func (m *sessionMetrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// SetSessionState records the session state.
func (m *sessionMetrics) SetSessionState(state string) {
	if m == nil {
		return
	}
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.state.WithLabelValues(s).Set(v)
	}
}
