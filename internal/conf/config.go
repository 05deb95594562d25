// config.go: loads and holds the application settings
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ecosense/ecosense-go/internal/errors"
	"github.com/spf13/viper"
)

// Settings holds the full application configuration, populated from
// config.yaml, environment variables and command line flags.
type Settings struct {
	Debug bool // true enables debug mode

	Main struct {
		Name string // node name, used in logging
		Log  LogConfig
	}

	WebServer struct {
		Port  string // port for the HTTP API
		Debug bool   // true enables verbose API logging
	}

	Database DatabaseSettings

	Detector DetectorSettings

	Retrain struct {
		WindowDays int // trailing window of readings used for retraining
	}

	Telemetry struct {
		Enabled bool   // true enables the Prometheus endpoint
		Listen  string // IP address and port to listen on
	}
}

// LogConfig contains settings for the rotating service log file.
type LogConfig struct {
	Enabled    bool   // true enables file logging
	Path       string // path to the log file
	MaxSize    int    // maximum size in megabytes before rotation
	MaxBackups int    // maximum number of rotated files to retain
	MaxAge     int    // maximum age in days of a rotated file
}

// DatabaseSettings selects and configures the persistence backend.
type DatabaseSettings struct {
	SQLite struct {
		Enabled bool   // true to use SQLite
		Path    string // path to the SQLite database file
	}
	MySQL struct {
		Enabled  bool   // true to use MySQL
		Username string
		Password string
		Host     string
		Port     string
		Database string
	}
}

// DetectorSettings configures the external anomaly detection service.
type DetectorSettings struct {
	BaseURL string        // base URL of the ML detector service
	Timeout time.Duration // per-request timeout for detector calls
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration and returns the populated Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ValidateSettings rejects configurations the server cannot start with.
func ValidateSettings(settings *Settings) error {
	if !settings.Database.SQLite.Enabled && !settings.Database.MySQL.Enabled {
		return errors.Newf("no database backend enabled, enable either sqlite or mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Database.SQLite.Enabled && settings.Database.MySQL.Enabled {
		return errors.Newf("both sqlite and mysql enabled, pick one").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if strings.TrimSpace(settings.Detector.BaseURL) == "" {
		return errors.Newf("detector.baseurl must be set").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Detector.Timeout <= 0 {
		return errors.Newf("detector.timeout must be positive, got %v", settings.Detector.Timeout).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Retrain.WindowDays <= 0 {
		return errors.Newf("retrain.windowdays must be positive, got %d", settings.Retrain.WindowDays).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("ECOSENSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values for each configuration parameter,
	// function defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file found, defaults and environment apply
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the config file search paths in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "ecosense-go"))
	}
	paths = append(paths, "/etc/ecosense-go")

	return paths, nil
}
