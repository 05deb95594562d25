// internal/api/api.go
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecosense/ecosense-go/internal/conf"
	"github.com/ecosense/ecosense-go/internal/datastore"
	"github.com/ecosense/ecosense-go/internal/detector"
	"github.com/ecosense/ecosense-go/internal/errors"
	"github.com/ecosense/ecosense-go/internal/ingest"
	"github.com/ecosense/ecosense-go/internal/observability"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	DS        datastore.Interface
	Settings  *conf.Settings
	Pipeline  *ingest.Pipeline
	Detector  detector.Interface
	logger    *slog.Logger
	metrics   *observability.Metrics
	startTime time.Time
}

// New creates a new API controller and registers all routes under /api.
// metrics may be nil when telemetry is disabled.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings, pipeline *ingest.Pipeline, det detector.Interface, metrics *observability.Metrics, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		Echo:      e,
		DS:        ds,
		Settings:  settings,
		Pipeline:  pipeline,
		Detector:  det,
		logger:    logger.With("service", "api"),
		metrics:   metrics,
		startTime: time.Now(),
	}

	e.HideBanner = true
	e.HTTPErrorHandler = c.errorEnvelopeHandler

	e.Use(middleware.Recover())
	e.Use(c.loggingMiddleware())
	if metrics != nil {
		e.Use(c.metricsMiddleware())
	}

	c.Group = e.Group("/api")
	c.initRoutes()

	return c, nil
}

func (c *Controller) initRoutes() {
	c.initSensorRoutes()
	c.initReadingRoutes()
	c.initAnomalyRoutes()
	c.initHealthRoutes()
}

// ErrorResponse is the uniform JSON error envelope. Internal diagnostic
// detail stays in the server-side log, keyed by the correlation id.
type ErrorResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response envelope.
func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{
		Success:       false,
		Message:       message,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a unique identifier for error tracking using
// cryptographic randomness.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "corrfail"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err with full context and writes the uniform error
// envelope with the status derived from the error's category.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	code := errors.HTTPStatus(err)
	errorResp := NewErrorResponse(message)

	attrs := []any{
		"correlation_id", errorResp.CorrelationID,
		"message", message,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error(), "category", string(errors.CategoryOf(err)))
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			if ctxMap := ee.GetContext(); ctxMap != nil {
				attrs = append(attrs, "context", ctxMap)
			}
		}
	}
	c.logger.Error("API error", attrs...)

	return ctx.JSON(code, errorResp)
}

// errorEnvelopeHandler funnels unmatched routes and unhandled failures into
// the uniform JSON envelope.
func (c *Controller) errorEnvelopeHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if code == http.StatusNotFound {
			message = "resource not found"
		} else if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	resp := NewErrorResponse(message)
	c.logger.Error("unhandled API error",
		"correlation_id", resp.CorrelationID,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"error", err.Error())

	if writeErr := ctx.JSON(code, resp); writeErr != nil {
		c.logger.Error("failed to write error envelope", "error", writeErr)
	}
}

// Debug logs debug messages when API debug mode is enabled
func (c *Controller) Debug(msg string, args ...any) {
	if c.Settings.WebServer.Debug {
		c.logger.Debug(msg, args...)
	}
}
