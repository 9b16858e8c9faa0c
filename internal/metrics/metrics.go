// Package metrics exposes relay counters to Prometheus. A nil *Recorder is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UnknownEvent labels events outside the known set, keeping label
// cardinality bounded.
const UnknownEvent = "unknown"

type Recorder struct {
	connections   prometheus.Gauge
	online        prometheus.Gauge
	connTotal     prometheus.Counter
	events        *prometheus.CounterVec
	eventErrors   *prometheus.CounterVec
	eventLatency  *prometheus.HistogramVec
	relayDropped  *prometheus.CounterVec
	messagesSaved prometheus.Counter
}

func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Recorder{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yarelay_connections_active",
			Help: "Current number of open websocket connections.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yarelay_users_online",
			Help: "Current number of users with a presence entry.",
		}),
		connTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yarelay_connections_total",
			Help: "Total number of websocket connections accepted since start.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yarelay_events_total",
			Help: "Inbound events handled, by event name.",
		}, []string{"event"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yarelay_event_errors_total",
			Help: "Inbound events that failed, by error code.",
		}, []string{"code"}),
		eventLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yarelay_event_latency_seconds",
			Help:    "Latency for handling inbound events.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"event"}),
		relayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yarelay_relay_dropped_total",
			Help: "Relayed events dropped because the recipient was offline.",
		}, []string{"event"}),
		messagesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yarelay_messages_persisted_total",
			Help: "Chat messages written to the message store.",
		}),
	}

	reg.MustRegister(
		m.connections,
		m.online,
		m.connTotal,
		m.events,
		m.eventErrors,
		m.eventLatency,
		m.relayDropped,
		m.messagesSaved,
	)
	return m
}

func (m *Recorder) ConnOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.connTotal.Inc()
}

func (m *Recorder) ConnClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Recorder) UserOnline() {
	if m == nil {
		return
	}
	m.online.Inc()
}

func (m *Recorder) UserOffline() {
	if m == nil {
		return
	}
	m.online.Dec()
}

// ObserveEvent records one handled inbound event. code is empty on success.
func (m *Recorder) ObserveEvent(event string, dur time.Duration, code string) {
	if m == nil || event == "" {
		return
	}
	m.events.WithLabelValues(event).Inc()
	m.eventLatency.WithLabelValues(event).Observe(dur.Seconds())
	if code != "" {
		m.eventErrors.WithLabelValues(code).Inc()
	}
}

func (m *Recorder) RelayDropped(event string) {
	if m == nil {
		return
	}
	if event == "" {
		event = UnknownEvent
	}
	m.relayDropped.WithLabelValues(event).Inc()
}

func (m *Recorder) MessageSaved() {
	if m == nil {
		return
	}
	m.messagesSaved.Inc()
}
