// internal/api/sensors.go
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ecosense/ecosense-go/internal/datastore"
	"github.com/ecosense/ecosense-go/internal/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// initSensorRoutes registers all sensor registry endpoints
func (c *Controller) initSensorRoutes() {
	c.Group.POST("/sensors", c.RegisterSensor)
	c.Group.GET("/sensors", c.ListSensors)
	c.Group.GET("/sensors/:id", c.GetSensor)
	c.Group.PUT("/sensors/:id", c.UpdateSensor)
	c.Group.DELETE("/sensors/:id", c.DeleteSensor)
}

// LocationPayload is the structured geolocation of a sensor.
type LocationPayload struct {
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Description string   `json:"description,omitempty"`
}

// SensorResponse represents a sensor in API responses.
type SensorResponse struct {
	ID         uint             `json:"id"`
	ExternalID string           `json:"externalId"`
	Name       string           `json:"name"`
	Type       string           `json:"type"`
	Location   *LocationPayload `json:"location,omitempty"`
	Status     string           `json:"status"`
	LastSeenAt *time.Time       `json:"lastSeenAt,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

func sensorToResponse(s *datastore.Sensor) SensorResponse {
	resp := SensorResponse{
		ID:         s.ID,
		ExternalID: s.ExternalID,
		Name:       s.Name,
		Type:       s.Type,
		Status:     s.Status,
		LastSeenAt: s.LastSeenAt,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.Latitude != nil || s.Longitude != nil || s.LocationDescription != "" {
		resp.Location = &LocationPayload{
			Latitude:    s.Latitude,
			Longitude:   s.Longitude,
			Description: s.LocationDescription,
		}
	}
	return resp
}

// sensorSnapshot is the read-only owning-sensor view embedded in reading and
// anomaly responses.
type sensorSnapshot struct {
	ExternalID string           `json:"externalId"`
	Name       string           `json:"name"`
	Type       string           `json:"type"`
	Location   *LocationPayload `json:"location,omitempty"`
}

func snapshotOf(s *datastore.Sensor) sensorSnapshot {
	snap := sensorSnapshot{
		ExternalID: s.ExternalID,
		Name:       s.Name,
		Type:       s.Type,
	}
	if s.Latitude != nil || s.Longitude != nil || s.LocationDescription != "" {
		snap.Location = &LocationPayload{
			Latitude:    s.Latitude,
			Longitude:   s.Longitude,
			Description: s.LocationDescription,
		}
	}
	return snap
}

// RegisterSensorRequest is the body of POST /api/sensors.
type RegisterSensorRequest struct {
	ExternalID string           `json:"externalId"`
	Type       string           `json:"type"`
	Name       string           `json:"name"`
	Location   *LocationPayload `json:"location"`
}

// UpdateSensorRequest is the body of PUT /api/sensors/:id. Absent fields are
// left unchanged.
type UpdateSensorRequest struct {
	Name     *string          `json:"name"`
	Type     *string          `json:"type"`
	Location *LocationPayload `json:"location"`
	Status   *string          `json:"status"`
}

// RegisterSensor handles POST /api/sensors
func (c *Controller) RegisterSensor(ctx echo.Context) error {
	var req RegisterSensorRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, badRequest("malformed request body"), "Invalid request body")
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		return c.HandleError(ctx, badRequest("externalId is required"), "externalId is required")
	}
	if strings.TrimSpace(req.Type) == "" {
		return c.HandleError(ctx, badRequest("type is required"), "type is required")
	}

	name := req.Name
	if strings.TrimSpace(name) == "" {
		// Generated placeholder combining the sensor type
		name = fmt.Sprintf("%s-sensor-%s", req.Type, uuid.New().String()[:8])
	}

	sensor := datastore.Sensor{
		ExternalID: strings.TrimSpace(req.ExternalID),
		Name:       name,
		Type:       strings.TrimSpace(req.Type),
		Status:     datastore.SensorStatusActive,
	}
	if req.Location != nil {
		sensor.Latitude = req.Location.Latitude
		sensor.Longitude = req.Location.Longitude
		sensor.LocationDescription = req.Location.Description
	}

	if err := c.DS.CreateSensor(&sensor); err != nil {
		if errors.Is(err, datastore.ErrDuplicateSensor) {
			return c.HandleError(ctx, err, fmt.Sprintf("Sensor %q is already registered", sensor.ExternalID))
		}
		return c.HandleError(ctx, err, "Failed to register sensor")
	}

	return ctx.JSON(http.StatusCreated, sensorToResponse(&sensor))
}

// ListSensors handles GET /api/sensors
func (c *Controller) ListSensors(ctx echo.Context) error {
	sensors, err := c.DS.ListSensors()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list sensors")
	}

	responses := make([]SensorResponse, 0, len(sensors))
	for i := range sensors {
		responses = append(responses, sensorToResponse(&sensors[i]))
	}
	return ctx.JSON(http.StatusOK, responses)
}

// GetSensor handles GET /api/sensors/:id. The identifier may be the internal
// or the external one; both endpoints of the identifier duality resolve
// through the same registry function.
func (c *Controller) GetSensor(ctx echo.Context) error {
	sensor, err := c.resolveSensorParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Sensor not found")
	}
	return ctx.JSON(http.StatusOK, sensorToResponse(&sensor))
}

// UpdateSensor handles PUT /api/sensors/:id, applying a partial update.
func (c *Controller) UpdateSensor(ctx echo.Context) error {
	sensor, err := c.resolveSensorParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Sensor not found")
	}

	var req UpdateSensorRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, badRequest("malformed request body"), "Invalid request body")
	}

	update := datastore.SensorUpdate{
		Name:   req.Name,
		Type:   req.Type,
		Status: req.Status,
	}
	if req.Location != nil {
		update.Latitude = req.Location.Latitude
		update.Longitude = req.Location.Longitude
		update.LocationDescription = &req.Location.Description
	}

	updated, err := c.DS.UpdateSensor(sensor.ID, update)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to update sensor")
	}
	return ctx.JSON(http.StatusOK, sensorToResponse(&updated))
}

// DeleteSensor handles DELETE /api/sensors/:id
func (c *Controller) DeleteSensor(ctx echo.Context) error {
	sensor, err := c.resolveSensorParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Sensor not found")
	}

	if err := c.DS.DeleteSensor(sensor.ID); err != nil {
		return c.HandleError(ctx, err, "Failed to delete sensor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// resolveSensorParam resolves the :id path parameter against the registry.
func (c *Controller) resolveSensorParam(ctx echo.Context) (datastore.Sensor, error) {
	return c.DS.ResolveSensor(ctx.Param("id"))
}

// badRequest wraps a message into a validation-categorized error.
func badRequest(message string) error {
	return errors.Newf("%s", message).
		Component("api").
		Category(errors.CategoryValidation).
		Build()
}
