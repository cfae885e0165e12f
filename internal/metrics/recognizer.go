package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RecognizerMetrics tracks calls to the face recognition service.
type RecognizerMetrics struct {
	Requests      *prometheus.CounterVec
	Duration      prometheus.Histogram
	FacesDetected prometheus.Histogram
}

// NewRecognizerMetrics creates and registers the recognizer collectors.
func NewRecognizerMetrics(registry *prometheus.Registry) (*RecognizerMetrics, error) {
	m := &RecognizerMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_recognizer_requests_total",
			Help: "Recognizer calls by outcome (ok, timeout, unavailable, invalid_image)",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_recognizer_duration_seconds",
			Help:    "Duration of recognizer calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		FacesDetected: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_recognizer_faces_detected",
			Help:    "Number of faces detected per photo",
			Buckets: prometheus.LinearBuckets(0, 10, 10),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recognizer metrics: %w", err)
	}
	return m, nil
}

// ObserveCall records one recognizer call. Safe on a nil receiver.
func (m *RecognizerMetrics) ObserveCall(outcome string, d time.Duration, faces int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
	m.Duration.Observe(d.Seconds())
	if outcome == "ok" {
		m.FacesDetected.Observe(float64(faces))
	}
}

// Collect implements the prometheus.Collector interface.
func (m *RecognizerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Requests.Collect(ch)
	m.Duration.Collect(ch)
	m.FacesDetected.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *RecognizerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Requests.Describe(ch)
	m.Duration.Describe(ch)
	m.FacesDetected.Describe(ch)
}
