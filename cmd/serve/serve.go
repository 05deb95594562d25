// Package serve implements the serve command which runs the EcoSense HTTP API.
package serve

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ecosense/ecosense-go/internal/api"
	"github.com/ecosense/ecosense-go/internal/conf"
	"github.com/ecosense/ecosense-go/internal/datastore"
	"github.com/ecosense/ecosense-go/internal/detector"
	"github.com/ecosense/ecosense-go/internal/ingest"
	"github.com/ecosense/ecosense-go/internal/logging"
	"github.com/ecosense/ecosense-go/internal/observability"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command creates the serve command for running the API server.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the EcoSense API server",
		Long:  "Starts the HTTP API, connects to the configured database and anomaly detector, and serves until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunServer(settings)
		},
	}

	setupFlags(cmd, settings)

	return cmd
}

// setupFlags configures serve command specific flags.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable the Prometheus metrics endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "telemetry-listen", viper.GetString("telemetry.listen"), "Listen address for the metrics endpoint")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}

// RunServer wires together the datastore, detector client, ingestion
// pipeline and HTTP API, then blocks until a shutdown signal arrives.
func RunServer(settings *conf.Settings) error {
	log := logging.ForService("server")
	if settings.Main.Log.Enabled {
		fileLog, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "server", slog.LevelInfo)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() {
			if err := closeLog(); err != nil {
				slog.Error("failed to close log file", "error", err)
			}
		}()
		log = fileLog
	}

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			log.Error("failed to close datastore", "error", err)
		}
	}()

	det := detector.NewClient(&settings.Detector)

	var metrics *observability.Metrics
	var wg sync.WaitGroup
	quitChan := make(chan struct{})

	if settings.Telemetry.Enabled {
		var err error
		metrics, err = observability.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		endpoint, err := observability.NewEndpoint(settings, metrics)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry endpoint: %w", err)
		}
		endpoint.Start(&wg, quitChan)
	}

	pipeline := ingest.New(ds, det, settings, metrics, logging.ForService("ingest"))

	e := echo.New()
	controller, err := api.New(e, ds, settings, pipeline, det, metrics, logging.ForService("api"))
	if err != nil {
		return fmt.Errorf("failed to initialize API: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := controller.Start(); err != nil {
			errChan <- err
		}
	}()

	log.Info("server started", "port", settings.WebServer.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errChan:
		log.Error("server error", "error", err)
		close(quitChan)
		wg.Wait()
		return err
	}

	close(quitChan)

	if err := controller.Shutdown(); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	wg.Wait()
	slog.Info("shutdown complete")
	return nil
}
