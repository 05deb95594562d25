// Package metrics provides custom Prometheus metrics for the EcoSense-Go components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains all Prometheus metrics related to the ingestion pipeline.
type IngestMetrics struct {
	ReadingsIngested *prometheus.CounterVec
	AnomaliesFlagged prometheus.Counter
	PipelineDuration prometheus.Histogram
	RetrainRequests  *prometheus.CounterVec
	registry         *prometheus.Registry
}

// NewIngestMetrics creates a new instance of IngestMetrics registered with
// the given Prometheus registry.
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ingest metrics: %w", err)
	}
	return m, nil
}

func (m *IngestMetrics) initMetrics() {
	m.ReadingsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_readings_total",
		Help: "Total number of ingestion pipeline runs by outcome",
	}, []string{"outcome"})

	m.AnomaliesFlagged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_anomalies_flagged_total",
		Help: "Total number of ingested readings flagged as anomalous",
	})

	m.PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_pipeline_duration_seconds",
		Help:    "Duration of a full ingestion pipeline run in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	m.RetrainRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_retrain_requests_total",
		Help: "Total number of model retrain requests by outcome",
	}, []string{"outcome"})
}

// RecordIngestion records the outcome of one pipeline run.
func (m *IngestMetrics) RecordIngestion(outcome string, seconds float64) {
	m.ReadingsIngested.WithLabelValues(outcome).Inc()
	m.PipelineDuration.Observe(seconds)
}

// RecordAnomaly records one flagged anomaly.
func (m *IngestMetrics) RecordAnomaly() {
	m.AnomaliesFlagged.Inc()
}

// RecordRetrain records the outcome of one retrain request.
func (m *IngestMetrics) RecordRetrain(outcome string) {
	m.RetrainRequests.WithLabelValues(outcome).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ReadingsIngested.Collect(ch)
	ch <- m.AnomaliesFlagged
	ch <- m.PipelineDuration
	m.RetrainRequests.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ReadingsIngested.Describe(ch)
	ch <- m.AnomaliesFlagged.Desc()
	ch <- m.PipelineDuration.Desc()
	m.RetrainRequests.Describe(ch)
}
