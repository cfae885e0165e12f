// Package metrics provides the Prometheus collectors of the attendance service.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Sessions   *SessionMetrics
	Recognizer *RecognizerMetrics
	Commit     *CommitMetrics
}

// New creates a registry and registers every collector on it.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	sessions, err := NewSessionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create session metrics: %w", err)
	}

	recognizer, err := NewRecognizerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer metrics: %w", err)
	}

	commit, err := NewCommitMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create commit metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Sessions:   sessions,
		Recognizer: recognizer,
		Commit:     commit,
	}, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler(logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	errLog, _ := zap.NewStdLogAt(logger.Named("metrics"), zap.ErrorLevel)
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      errLog,
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
