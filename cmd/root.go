package cmd

import (
	"fmt"

	"github.com/ecosense/ecosense-go/cmd/serve"
	"github.com/ecosense/ecosense-go/internal/conf"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ecosense",
		Short: "EcoSense-Go CLI",
		Long:  "REST API backend for environmental sensor registration, reading ingestion and ML-flagged anomaly records.",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(serve.Command(settings))

	return rootCmd
}

// setupFlags configures the global flags for the root command.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVar(&settings.Debug, "debug", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the HTTP API")
	rootCmd.PersistentFlags().StringVar(&settings.Detector.BaseURL, "detector", viper.GetString("detector.baseurl"), "Base URL of the anomaly detector service")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
