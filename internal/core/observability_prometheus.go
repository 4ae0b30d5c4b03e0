package core

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetricsRecorder exports engine operation counts and latencies.
type PrometheusMetricsRecorder struct {
	gatherer prometheus.Gatherer

	Operations *prometheus.CounterVec
	Durations  *prometheus.HistogramVec
	Sessions   prometheus.Gauge
}

// NewPrometheusMetricsRecorder registers the engine collectors against reg,
// defaulting to the global registry when nil. Registering twice against the
// same registry reuses the existing collectors.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "labbench_operations_total",
		Help: "Engine operations handled, labeled by operation and outcome.",
	}, []string{"operation", "status"})
	if err := registerCollector(reg, &ops, "labbench_operations_total"); err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labbench_operation_duration_seconds",
		Help:    "Engine operation latency in seconds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"operation"})
	if err := registerCollector(reg, &durations, "labbench_operation_duration_seconds"); err != nil {
		return nil, err
	}

	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labbench_active_sessions",
		Help: "Experiment sessions currently attached to a transport.",
	})
	if err := registerCollector(reg, &sessions, "labbench_active_sessions"); err != nil {
		return nil, err
	}

	return &PrometheusMetricsRecorder{
		gatherer:   gatherer,
		Operations: ops,
		Durations:  durations,
		Sessions:   sessions,
	}, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, o Outcome) {
	if r == nil || o.Operation == "" {
		return
	}
	r.Operations.WithLabelValues(o.Operation, string(o.Status())).Inc()
	r.Durations.WithLabelValues(o.Operation).Observe(o.Duration.Seconds())
}

// SessionOpened increments the active session gauge.
func (r *PrometheusMetricsRecorder) SessionOpened() {
	if r != nil {
		r.Sessions.Inc()
	}
}

// SessionClosed decrements the active session gauge.
func (r *PrometheusMetricsRecorder) SessionClosed() {
	if r != nil {
		r.Sessions.Dec()
	}
}

// Handler exposes the registry on /metrics.
func (r *PrometheusMetricsRecorder) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if r != nil && r.gatherer != nil {
		gatherer = r.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// registerCollector registers *c, swapping in the already registered collector
// of the same type when one exists.
func registerCollector[C prometheus.Collector](reg prometheus.Registerer, c *C, name string) error {
	if err := reg.Register(*c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		*c = existing
	}
	return nil
}
