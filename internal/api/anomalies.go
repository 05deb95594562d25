// internal/api/anomalies.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ecosense/ecosense-go/internal/datastore"
	"github.com/labstack/echo/v4"
)

// initAnomalyRoutes registers the anomaly store endpoints
func (c *Controller) initAnomalyRoutes() {
	c.Group.GET("/anomalies", c.QueryAnomalies)
	c.Group.GET("/anomalies/:id", c.GetAnomaly)
	c.Group.PATCH("/anomalies/:id/status", c.UpdateAnomalyStatus)
}

// AnomalyResponse represents an anomaly enriched with its owning sensor snapshot.
type AnomalyResponse struct {
	ID                   uint                    `json:"id"`
	ReadingID            *uint                   `json:"readingId,omitempty"`
	Sensor               sensorSnapshot          `json:"sensor"`
	DetectedAt           time.Time               `json:"detectedAt"`
	Score                float64                 `json:"score"`
	Category             string                  `json:"category,omitempty"`
	ContributingChannels []string                `json:"contributingChannels,omitempty"`
	RawSnapshot          datastore.ChannelValues `json:"rawSnapshot,omitempty"`
	Status               string                  `json:"status"`
	Notes                string                  `json:"notes,omitempty"`
	CreatedAt            time.Time               `json:"createdAt"`
	UpdatedAt            time.Time               `json:"updatedAt"`
}

func anomalyToResponse(a *datastore.Anomaly) AnomalyResponse {
	return AnomalyResponse{
		ID:                   a.ID,
		ReadingID:            a.ReadingID,
		Sensor:               snapshotOf(&a.Sensor),
		DetectedAt:           a.DetectedAt,
		Score:                a.Score,
		Category:             a.Category,
		ContributingChannels: a.ContributingChannels,
		RawSnapshot:          a.RawSnapshot,
		Status:               a.Status,
		Notes:                a.Notes,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

// UpdateAnomalyStatusRequest is the body of PATCH /api/anomalies/:id/status.
// Notes set to the empty string explicitly clear the stored notes; an absent
// notes field leaves them unchanged.
type UpdateAnomalyStatusRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

// QueryAnomalies handles GET /api/anomalies with optional status, sensorId,
// startTime and endTime query parameters.
func (c *Controller) QueryAnomalies(ctx echo.Context) error {
	filter := datastore.AnomalyFilter{}

	if statusParam := ctx.QueryParam("status"); statusParam != "" {
		if !datastore.ValidAnomalyStatus(statusParam) {
			return c.HandleError(ctx, badRequest("invalid status filter"), "status must be one of new, investigating, resolved, false_positive")
		}
		filter.Status = &statusParam
	}

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

	anomalies, err := c.DS.SearchAnomalies(filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query anomalies")
	}

	responses := make([]AnomalyResponse, 0, len(anomalies))
	for i := range anomalies {
		responses = append(responses, anomalyToResponse(&anomalies[i]))
	}
	return ctx.JSON(http.StatusOK, responses)
}

// GetAnomaly handles GET /api/anomalies/:id
func (c *Controller) GetAnomaly(ctx echo.Context) error {
	id, err := parseAnomalyID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid anomaly id")
	}

	anomaly, err := c.DS.GetAnomaly(id)
	if err != nil {
		return c.HandleError(ctx, err, "Anomaly not found")
	}
	return ctx.JSON(http.StatusOK, anomalyToResponse(&anomaly))
}

// UpdateAnomalyStatus handles PATCH /api/anomalies/:id/status. The status, if
// present, must be one of the defined lifecycle values; validation happens
// before storage is touched.
func (c *Controller) UpdateAnomalyStatus(ctx echo.Context) error {
	id, err := parseAnomalyID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid anomaly id")
	}

	var req UpdateAnomalyStatusRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, badRequest("malformed request body"), "Invalid request body")
	}
	if req.Status == nil && req.Notes == nil {
		return c.HandleError(ctx, badRequest("either status or notes must be supplied"), "Either status or notes must be supplied")
	}
	if req.Status != nil && !datastore.ValidAnomalyStatus(*req.Status) {
		return c.HandleError(ctx, badRequest("invalid anomaly status"), "status must be one of new, investigating, resolved, false_positive")
	}

	anomaly, err := c.DS.UpdateAnomalyStatus(id, req.Status, req.Notes)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to update anomaly")
	}
	return ctx.JSON(http.StatusOK, anomalyToResponse(&anomaly))
}

func parseAnomalyID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, badRequest("anomaly id must be a positive integer")
	}
	return uint(id), nil
}
