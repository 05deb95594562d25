// Package ingest implements the data-ingestion and anomaly-correlation
// pipeline: resolve sensor identity, persist the raw reading, delegate
// scoring to the external detector, and conditionally materialize an anomaly
// record linked back to the originating reading.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ecosense/ecosense-go/internal/conf"
	"github.com/ecosense/ecosense-go/internal/datastore"
	"github.com/ecosense/ecosense-go/internal/detector"
	"github.com/ecosense/ecosense-go/internal/errors"
	"github.com/ecosense/ecosense-go/internal/observability"
	"github.com/patrickmn/go-cache"
)

// DefaultAnomalyCategory is the generic classification assigned to anomalies
// materialized by the pipeline; finer categorization happens downstream.
const DefaultAnomalyCategory = "environmental_imbalance"

const (
	sensorCacheTTL     = 30 * time.Second
	sensorCacheCleanup = 5 * time.Minute
)

// Request is one inbound reading submitted for ingestion. SensorID is the
// external device identifier.
type Request struct {
	SensorID  string
	Timestamp time.Time
	Data      datastore.ChannelValues
}

// Result reports the outcome of a completed pipeline run, returned regardless
// of whether an anomaly was materialized.
type Result struct {
	ReadingID uint
	Anomaly   bool
	Score     float64
}

// Pipeline orchestrates the per-reading ingestion sequence. Instances are
// safe for concurrent use; every run is an independent, unordered invocation
// with no state shared across runs beyond the persistence layer and the
// resolve cache.
type Pipeline struct {
	ds          datastore.Interface
	detector    detector.Interface
	settings    *conf.Settings
	metrics     *observability.Metrics
	log         *slog.Logger
	sensorCache *cache.Cache
}

// New creates an ingestion pipeline. metrics may be nil when telemetry is
// disabled.
func New(ds datastore.Interface, det detector.Interface, settings *conf.Settings, metrics *observability.Metrics, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		ds:          ds,
		detector:    det,
		settings:    settings,
		metrics:     metrics,
		log:         log.With("service", "ingest"),
		sensorCache: cache.New(sensorCacheTTL, sensorCacheCleanup),
	}
}

// ProcessReading runs the ingestion state machine for one reading, strictly
// sequential:
//
//	RECEIVED -> SENSOR_RESOLVED -> READING_PERSISTED -> SCORED -> (ANOMALY_PERSISTED |) -> COMPLETE
//
// Validation failures reject before anything is persisted. Once the reading
// is persisted, a detector failure aborts the run but the reading is kept; a
// reading with no scoring attempt is an accepted, recoverable inconsistency.
// The pipeline is deliberately not idempotent: the same logical reading
// submitted twice produces two reading rows.
func (p *Pipeline) ProcessReading(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	if err := p.validate(req); err != nil {
		p.recordIngestion("invalid", start)
		return nil, err
	}

	sensor, err := p.resolveSensor(req.SensorID)
	if err != nil {
		p.recordIngestion("unknown_sensor", start)
		return nil, err
	}

	reading := &datastore.SensorReading{
		SensorID:  sensor.ID,
		Timestamp: req.Timestamp,
		Channels:  req.Data,
	}
	if err := p.ds.SaveReading(reading); err != nil {
		p.recordIngestion("storage_error", start)
		return nil, err
	}

	// Best effort, a failed last-seen update never fails the run.
	if err := p.ds.TouchSensor(sensor.ID, req.Timestamp); err != nil {
		p.log.Warn("failed to update sensor last communication time",
			"sensor_id", sensor.ID, "error", err)
	}

	// The detector is addressed by the external identifier; it is decoupled
	// from the internal identifier space.
	detectStart := time.Now()
	verdict, err := p.detector.Score(ctx, sensor.ExternalID, req.Timestamp, req.Data)
	p.recordDetectorCall("score", err, detectStart)
	if err != nil {
		// The reading persisted above is retained; detection can be retried
		// out-of-band later.
		p.log.Error("anomaly detection failed after reading was persisted",
			"reading_id", reading.ID,
			"sensor", sensor.ExternalID,
			"cause", errors.CategoryOf(err),
			"error", err)
		p.recordIngestion("detection_failed", start)
		return nil, err
	}

	if verdict.IsAnomaly {
		anomaly := &datastore.Anomaly{
			ReadingID:            &reading.ID,
			SensorID:             sensor.ID,
			DetectedAt:           req.Timestamp,
			Score:                verdict.Score,
			Category:             DefaultAnomalyCategory,
			ContributingChannels: verdict.ContributingChannels,
			RawSnapshot:          req.Data,
			Status:               datastore.AnomalyStatusNew,
		}
		if err := p.ds.SaveAnomaly(anomaly); err != nil {
			p.recordIngestion("storage_error", start)
			return nil, err
		}
		if p.metrics != nil {
			p.metrics.Ingest.RecordAnomaly()
		}
		p.log.Info("anomaly flagged",
			"anomaly_id", anomaly.ID,
			"reading_id", reading.ID,
			"sensor", sensor.ExternalID,
			"score", verdict.Score)
	}

	p.recordIngestion("ok", start)
	return &Result{
		ReadingID: reading.ID,
		Anomaly:   verdict.IsAnomaly,
		Score:     verdict.Score,
	}, nil
}

// Retrain assembles all readings whose event timestamp falls within the
// configured trailing window and forwards their channel value maps to the
// detector's training endpoint. Identifiers and timestamps are discarded.
// Fails without calling the detector when the window yields no readings.
func (p *Pipeline) Retrain(ctx context.Context) (map[string]any, error) {
	windowDays := p.settings.Retrain.WindowDays
	cutoff := time.Now().AddDate(0, 0, -windowDays)

	readings, err := p.ds.ReadingsSince(cutoff)
	if err != nil {
		p.recordRetrain("storage_error")
		return nil, err
	}
	if len(readings) == 0 {
		p.recordRetrain("insufficient_data")
		return nil, errors.Newf("no readings within the last %d days to train on", windowDays).
			Component("ingest").
			Category(errors.CategoryInsufficientData).
			Build()
	}

	batch := make([]datastore.ChannelValues, 0, len(readings))
	for i := range readings {
		batch = append(batch, readings[i].Channels)
	}

	detectStart := time.Now()
	ack, err := p.detector.Retrain(ctx, batch)
	p.recordDetectorCall("retrain", err, detectStart)
	if err != nil {
		p.recordRetrain("detector_error")
		return nil, err
	}

	p.log.Info("model retrain requested", "samples", len(batch), "window_days", windowDays)
	p.recordRetrain("ok")
	return ack, nil
}

func (p *Pipeline) validate(req *Request) error {
	if strings.TrimSpace(req.SensorID) == "" {
		return errors.Newf("sensor_id is required").
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	if req.Timestamp.IsZero() {
		return errors.Newf("timestamp is required").
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := req.Data.Validate(); err != nil {
		return errors.New(err).
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// resolveSensor resolves the external identifier against the sensor registry,
// consulting a short-lived cache first. Ingestion deliberately refuses to
// auto-register unknown sensors; registration is an explicit operation.
func (p *Pipeline) resolveSensor(externalID string) (datastore.Sensor, error) {
	if cached, found := p.sensorCache.Get(externalID); found {
		if sensor, ok := cached.(datastore.Sensor); ok {
			return sensor, nil
		}
	}

	sensor, err := p.ds.ResolveSensor(externalID)
	if err != nil {
		if errors.Is(err, datastore.ErrSensorNotFound) {
			return datastore.Sensor{}, errors.Newf("sensor %q is not registered", externalID).
				Component("ingest").
				Category(errors.CategoryNotFound).
				Context("sensor_id", externalID).
				Build()
		}
		return datastore.Sensor{}, err
	}

	p.sensorCache.Set(externalID, sensor, cache.DefaultExpiration)
	return sensor, nil
}

func (p *Pipeline) recordIngestion(outcome string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.Ingest.RecordIngestion(outcome, time.Since(start).Seconds())
}

func (p *Pipeline) recordRetrain(outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.Ingest.RecordRetrain(outcome)
}

func (p *Pipeline) recordDetectorCall(operation string, err error, start time.Time) {
	if p.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(errors.CategoryOf(err))
	}
	p.metrics.Detector.RecordRequest(operation, outcome, time.Since(start).Seconds())
}
