// internal/api/server.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ecosense/ecosense-go/internal/errors"
)

// Start runs the HTTP server on the configured port, blocking until the
// listener fails or is shut down.
func (c *Controller) Start() error {
	addr := ":" + c.Settings.WebServer.Port
	c.logger.Info("starting HTTP server", "addr", addr)

	if err := c.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully, allowing in-flight pipeline
// runs to finish.
func (c *Controller) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Echo.Shutdown(ctx)
}
