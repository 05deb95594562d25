// internal/api/health.go
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// initHealthRoutes registers the health endpoint
func (c *Controller) initHealthRoutes() {
	c.Group.GET("/health", c.HealthCheck)
}

// HealthCheck handles GET /api/health. The detector probe is best effort; a
// degraded detector does not fail the endpoint, it is reported in the body.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	detectorHealthy := c.Detector.HealthCheck(ctx.Request().Context())
	if c.metrics != nil {
		c.metrics.Detector.UpdateHealthStatus(detectorHealthy)
	}

	databaseStatus := "connected"
	if _, err := c.DS.ListSensors(); err != nil {
		databaseStatus = "unavailable"
	}

	status := "healthy"
	code := http.StatusOK
	if databaseStatus != "connected" {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	return ctx.JSON(code, map[string]any{
		"status":          status,
		"database_status": databaseStatus,
		"detector":        detectorHealthy,
		"uptime_seconds":  int64(time.Since(c.startTime).Seconds()),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}
