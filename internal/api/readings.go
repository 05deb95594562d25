// internal/api/readings.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ecosense/ecosense-go/internal/datastore"
	"github.com/ecosense/ecosense-go/internal/errors"
	"github.com/ecosense/ecosense-go/internal/ingest"
	"github.com/labstack/echo/v4"
)

// initReadingRoutes registers the ingestion and reading query endpoints
func (c *Controller) initReadingRoutes() {
	c.Group.POST("/data/sensor-data", c.IngestReading)
	c.Group.GET("/data/all", c.QueryReadings)
	c.Group.POST("/data/retrain-model", c.RetrainModel)
}

// IngestRequestBody is the body of POST /api/data/sensor-data. The sensor is
// addressed by its external device identifier.
type IngestRequestBody struct {
	SensorID  string                  `json:"sensor_id"`
	Timestamp string                  `json:"timestamp"`
	Data      datastore.ChannelValues `json:"data"`
}

// IngestResponse reports the pipeline outcome, returned whether or not an
// anomaly was flagged.
type IngestResponse struct {
	SensorDataID  uint    `json:"sensorDataId"`
	AnomalyStatus bool    `json:"anomalyStatus"`
	AnomalyScore  float64 `json:"anomalyScore"`
}

// ReadingResponse represents a reading enriched with its owning sensor snapshot.
type ReadingResponse struct {
	ID        uint                    `json:"id"`
	Sensor    sensorSnapshot          `json:"sensor"`
	Timestamp time.Time               `json:"timestamp"`
	Data      datastore.ChannelValues `json:"data"`
	CreatedAt time.Time               `json:"createdAt"`
}

// IngestReading handles POST /api/data/sensor-data
func (c *Controller) IngestReading(ctx echo.Context) error {
	var body IngestRequestBody
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, badRequest("malformed request body"), "Invalid request body")
	}
	if body.SensorID == "" {
		return c.HandleError(ctx, badRequest("sensor_id is required"), "sensor_id is required")
	}
	if body.Timestamp == "" {
		return c.HandleError(ctx, badRequest("timestamp is required"), "timestamp is required")
	}
	timestamp, err := time.Parse(time.RFC3339, body.Timestamp)
	if err != nil {
		return c.HandleError(ctx, badRequest("timestamp must be RFC3339"), "timestamp must be an RFC3339 datetime")
	}
	if len(body.Data) == 0 {
		return c.HandleError(ctx, badRequest("data must not be empty"), "data must contain at least one channel value")
	}

	result, err := c.Pipeline.ProcessReading(ctx.Request().Context(), &ingest.Request{
		SensorID:  body.SensorID,
		Timestamp: timestamp,
		Data:      body.Data,
	})
	if err != nil {
		switch errors.CategoryOf(err) {
		case errors.CategoryNotFound:
			return c.HandleError(ctx, err, "Sensor is not registered, register it before sending data")
		case errors.CategoryValidation:
			return c.HandleError(ctx, err, err.Error())
		case errors.CategoryDetection, errors.CategoryNetwork:
			return c.HandleError(ctx, err, "Anomaly detection failed, the reading was stored")
		default:
			return c.HandleError(ctx, err, "Failed to store sensor data")
		}
	}

	return ctx.JSON(http.StatusOK, IngestResponse{
		SensorDataID:  result.ReadingID,
		AnomalyStatus: result.Anomaly,
		AnomalyScore:  result.Score,
	})
}

// QueryReadings handles GET /api/data/all with optional sensorId, startTime,
// endTime, limit and offset query parameters. Time bounds are inclusive.
func (c *Controller) QueryReadings(ctx echo.Context) error {
	filter := datastore.ReadingFilter{}

	if sensorParam := ctx.QueryParam("sensorId"); sensorParam != "" {
		sensor, err := c.DS.ResolveSensor(sensorParam)
		if err != nil {
			return c.HandleError(ctx, err, "Unknown sensor in sensorId filter")
		}
		filter.SensorID = &sensor.ID
	}

	startTime, endTime, err := parseTimeRange(ctx)
	if err != nil {
		return c.HandleError(ctx, err, err.Error())
	}
	filter.StartTime = startTime
	filter.EndTime = endTime

	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 0 {
			return c.HandleError(ctx, badRequest("limit must be a non-negative integer"), "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	if offsetParam := ctx.QueryParam("offset"); offsetParam != "" {
		offset, err := strconv.Atoi(offsetParam)
		if err != nil || offset < 0 {
			return c.HandleError(ctx, badRequest("offset must be a non-negative integer"), "offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	readings, err := c.DS.SearchReadings(filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query readings")
	}

	responses := make([]ReadingResponse, 0, len(readings))
	for i := range readings {
		r := &readings[i]
		responses = append(responses, ReadingResponse{
			ID:        r.ID,
			Sensor:    snapshotOf(&r.Sensor),
			Timestamp: r.Timestamp,
			Data:      r.Channels,
			CreatedAt: r.CreatedAt,
		})
	}
	return ctx.JSON(http.StatusOK, responses)
}

// RetrainModel handles POST /api/data/retrain-model
func (c *Controller) RetrainModel(ctx echo.Context) error {
	ack, err := c.Pipeline.Retrain(ctx.Request().Context())
	if err != nil {
		if errors.CategoryOf(err) == errors.CategoryInsufficientData {
			return c.HandleError(ctx, err, "No recent readings available to train on")
		}
		return c.HandleError(ctx, err, "Failed to trigger model retraining")
	}
	return ctx.JSON(http.StatusOK, ack)
}

// parseTimeRange parses the optional startTime and endTime query parameters.
func parseTimeRange(ctx echo.Context) (start, end *time.Time, err error) {
	if startParam := ctx.QueryParam("startTime"); startParam != "" {
		t, parseErr := time.Parse(time.RFC3339, startParam)
		if parseErr != nil {
			return nil, nil, badRequest("startTime must be an RFC3339 datetime")
		}
		start = &t
	}
	if endParam := ctx.QueryParam("endTime"); endParam != "" {
		t, parseErr := time.Parse(time.RFC3339, endParam)
		if parseErr != nil {
			return nil, nil, badRequest("endTime must be an RFC3339 datetime")
		}
		end = &t
	}
	return start, end, nil
}
