// internal/api/middleware.go
package api

import (
	"time"

	"github.com/labstack/echo/v4"
)

// loggingMiddleware logs every request through the structured logger.
func (c *Controller) loggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			req := ctx.Request()
			res := ctx.Response()
			c.logger.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", ctx.RealIP(),
			)
			return err
		}
	}
}

// metricsMiddleware records request counts and latencies. The route template
// is used as the path label to keep cardinality bounded.
func (c *Controller) metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			c.metrics.HTTP.RecordRequest(ctx.Request().Method, path, ctx.Response().Status, time.Since(start).Seconds())
			return err
		}
	}
}
