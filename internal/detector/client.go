// Package detector is the boundary adapter to the external ML anomaly
// scoring service. Failures are never retried here; they propagate to the
// caller with the transport, status and decoding causes distinguished for
// precise logging.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ecosense/ecosense-go/internal/conf"
	"github.com/ecosense/ecosense-go/internal/datastore"
	"github.com/ecosense/ecosense-go/internal/errors"
)

const userAgent = "EcoSense-Go"

// Verdict is the scoring outcome for a single reading.
type Verdict struct {
	IsAnomaly            bool
	Score                float64
	ContributingChannels []string
}

// Interface is the detector contract consumed by the ingestion pipeline and
// the health endpoint.
type Interface interface {
	Score(ctx context.Context, externalSensorID string, timestamp time.Time, channels datastore.ChannelValues) (*Verdict, error)
	Retrain(ctx context.Context, batch []datastore.ChannelValues) (map[string]any, error)
	HealthCheck(ctx context.Context) bool
}

// Client talks to the detector service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a detector client from the configured base URL and timeout.
func NewClient(settings *conf.DetectorSettings) *Client {
	return &Client{
		baseURL: settings.BaseURL,
		httpClient: &http.Client{
			Timeout: settings.Timeout,
		},
	}
}

// scoreRequest is the wire format of the detect-anomaly endpoint. The sensor
// is addressed by its external identifier; the detector service is decoupled
// from the internal identifier space.
type scoreRequest struct {
	SensorID  string                  `json:"sensor_id"`
	Timestamp string                  `json:"timestamp"`
	Data      datastore.ChannelValues `json:"data"`
}

type scoreResponse struct {
	IsAnomaly         *bool    `json:"is_anomaly"`
	AnomalyScore      *float64 `json:"anomaly_score"`
	MonitoredFeatures []string `json:"monitored_features"`
}

// Score submits one reading for scoring and returns the verdict. Transport
// failures, non-success statuses and malformed responses are each surfaced as
// distinguished hard failures.
func (c *Client) Score(ctx context.Context, externalSensorID string, timestamp time.Time, channels datastore.ChannelValues) (*Verdict, error) {
	payload := scoreRequest{
		SensorID:  externalSensorID,
		Timestamp: timestamp.UTC().Format(time.RFC3339),
		Data:      channels,
	}

	body, err := c.postJSON(ctx, "/detect-anomaly", payload)
	if err != nil {
		return nil, err
	}

	var result scoreResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, c.malformedError(err, "/detect-anomaly")
	}
	if result.IsAnomaly == nil || result.AnomalyScore == nil {
		return nil, c.malformedError(fmt.Errorf("response missing is_anomaly or anomaly_score"), "/detect-anomaly")
	}

	return &Verdict{
		IsAnomaly:            *result.IsAnomaly,
		Score:                *result.AnomalyScore,
		ContributingChannels: result.MonitoredFeatures,
	}, nil
}

// Retrain forwards a batch of historical channel value maps to the training
// endpoint and returns the acknowledgement payload opaquely. The caller is
// responsible for selecting the batch; no filtering happens here.
func (c *Client) Retrain(ctx context.Context, batch []datastore.ChannelValues) (map[string]any, error) {
	payload := map[string]any{"historical_data": batch}

	body, err := c.postJSON(ctx, "/train-model", payload)
	if err != nil {
		return nil, err
	}

	var ack map[string]any
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, c.malformedError(err, "/train-model")
	}
	return ack, nil
}

// HealthCheck reports whether the detector service answers its health probe.
// Best effort: transport or protocol failures mean "unhealthy", never an error.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "ok"
}

// postJSON performs a POST with a JSON body and returns the raw response body
// of a successful call.
func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryDetection).
			Context("endpoint", path).
			Context("cause", "request encoding").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryDetection).
			Context("endpoint", path).
			Context("cause", "request construction").
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure, includes timeouts
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryNetwork).
			Context("endpoint", path).
			Build()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryNetwork).
			Context("endpoint", path).
			Context("cause", "reading response body").
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("detector returned non-success status %d", resp.StatusCode).
			Component("detector").
			Category(errors.CategoryDetection).
			Context("endpoint", path).
			Context("status", resp.StatusCode).
			Build()
	}

	if len(body) == 0 {
		return nil, c.malformedError(fmt.Errorf("empty response body"), path)
	}

	return body, nil
}

func (c *Client) malformedError(err error, path string) error {
	return errors.New(err).
		Component("detector").
		Category(errors.CategoryDetection).
		Context("endpoint", path).
		Context("cause", "malformed response").
		Build()
}
