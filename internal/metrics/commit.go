package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CommitMetrics tracks attendance record writes.
type CommitMetrics struct {
	Records  *prometheus.CounterVec
	Retries  prometheus.Counter
	Duration prometheus.Histogram
}

// NewCommitMetrics creates and registers the commit collectors.
func NewCommitMetrics(registry *prometheus.Registry) (*CommitMetrics, error) {
	m := &CommitMetrics{
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_commit_records_total",
			Help: "Attendance record writes by outcome (succeeded, conflict, rejected, unavailable)",
		}, []string{"outcome"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_commit_retries_total",
			Help: "Record writes retried after a write conflict",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_commit_duration_seconds",
			Help:    "Duration of a whole commit in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register commit metrics: %w", err)
	}
	return m, nil
}

// ObserveRecord counts one record outcome. Safe on a nil receiver.
func (m *CommitMetrics) ObserveRecord(outcome string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(outcome).Inc()
}

// ObserveRetry counts a conflict retry. Safe on a nil receiver.
func (m *CommitMetrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// ObserveCommit records the duration of a commit. Safe on a nil receiver.
func (m *CommitMetrics) ObserveCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.Duration.Observe(d.Seconds())
}

// Collect implements the prometheus.Collector interface.
func (m *CommitMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Records.Collect(ch)
	m.Retries.Collect(ch)
	m.Duration.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *CommitMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Records.Describe(ch)
	m.Retries.Describe(ch)
	m.Duration.Describe(ch)
}
