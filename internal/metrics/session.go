package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics tracks attendance session lifecycles.
type SessionMetrics struct {
	Started     prometheus.Counter
	Transitions *prometheus.CounterVec
	Active      prometheus.Gauge
}

// NewSessionMetrics creates and registers the session collectors.
func NewSessionMetrics(registry *prometheus.Registry) (*SessionMetrics, error) {
	m := &SessionMetrics{
		Started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_sessions_started_total",
			Help: "Total number of attendance sessions started",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_session_transitions_total",
			Help: "Session state transitions by source and target state",
		}, []string{"from", "to"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rollcall_sessions_active",
			Help: "Number of sessions that are not closed",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

// ObserveStart counts a new session. Safe on a nil receiver.
func (m *SessionMetrics) ObserveStart() {
	if m == nil {
		return
	}
	m.Started.Inc()
	m.Active.Inc()
}

// ObserveTransition counts a state change. Safe on a nil receiver.
func (m *SessionMetrics) ObserveTransition(from, to string, terminal bool) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
	if terminal {
		m.Active.Dec()
	}
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Started.Collect(ch)
	m.Transitions.Collect(ch)
	m.Active.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Started.Describe(ch)
	m.Transitions.Describe(ch)
	m.Active.Describe(ch)
}
