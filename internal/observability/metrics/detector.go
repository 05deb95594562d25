package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectorMetrics contains all Prometheus metrics related to the external
// anomaly detector service.
type DetectorMetrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	HealthStatus    prometheus.Gauge
	registry        *prometheus.Registry
}

// NewDetectorMetrics creates a new instance of DetectorMetrics registered
// with the given Prometheus registry.
func NewDetectorMetrics(registry *prometheus.Registry) (*DetectorMetrics, error) {
	m := &DetectorMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detector metrics: %w", err)
	}
	return m, nil
}

func (m *DetectorMetrics) initMetrics() {
	m.Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "detector_requests_total",
		Help: "Total number of detector service calls by operation and outcome",
	}, []string{"operation", "outcome"})

	m.RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "detector_request_duration_seconds",
		Help:    "Duration of detector service round-trips in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	m.HealthStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detector_healthy",
		Help: "Last observed detector health probe result (1 healthy, 0 unhealthy)",
	})
}

// RecordRequest records one detector call by operation and outcome.
func (m *DetectorMetrics) RecordRequest(operation, outcome string, seconds float64) {
	m.Requests.WithLabelValues(operation, outcome).Inc()
	m.RequestDuration.Observe(seconds)
}

// UpdateHealthStatus records the latest health probe result.
func (m *DetectorMetrics) UpdateHealthStatus(healthy bool) {
	if healthy {
		m.HealthStatus.Set(1)
	} else {
		m.HealthStatus.Set(0)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *DetectorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Requests.Collect(ch)
	ch <- m.RequestDuration
	ch <- m.HealthStatus
}

// Describe implements the prometheus.Collector interface.
func (m *DetectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Requests.Describe(ch)
	ch <- m.RequestDuration.Desc()
	ch <- m.HealthStatus.Desc()
}
