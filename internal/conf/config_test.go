package conf

import (
	"testing"
	"time"

	"github.com/ecosense/ecosense-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSettings returns a configuration the server can start with.
func validSettings() *Settings {
	settings := &Settings{}
	settings.Database.SQLite.Enabled = true
	settings.Database.SQLite.Path = "ecosense.db"
	settings.Detector.BaseURL = "http://localhost:5000"
	settings.Detector.Timeout = 5 * time.Second
	settings.Retrain.WindowDays = 30
	return settings
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validSettings()))

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"no_backend", func(s *Settings) {
			s.Database.SQLite.Enabled = false
		}},
		{"both_backends", func(s *Settings) {
			s.Database.MySQL.Enabled = true
		}},
		{"blank_detector_url", func(s *Settings) {
			s.Detector.BaseURL = "  "
		}},
		{"zero_detector_timeout", func(s *Settings) {
			s.Detector.Timeout = 0
		}},
		{"negative_retrain_window", func(s *Settings) {
			s.Retrain.WindowDays = -1
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			settings := validSettings()
			tt.mutate(settings)

			err := ValidateSettings(settings)
			require.Error(t, err)
			assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
		})
	}
}

func TestGetDefaultConfigPaths(t *testing.T) {
	t.Parallel()

	paths, err := GetDefaultConfigPaths()
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, ".", paths[0], "Working directory has highest priority")
	assert.Contains(t, paths, "/etc/ecosense-go")
}
