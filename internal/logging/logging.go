// Package logging sets up the application's structured loggers.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ecosense/ecosense-go/internal/conf"
	"gopkg.in/natefinch/lumberjack.v2"
)

var structuredLogger *slog.Logger

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Add trace and fatal level names.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

func newHandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize level names
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				levelLabel, exists := levelNames[level]
				if !exists {
					levelLabel = level.String()
				}
				a.Value = slog.StringValue(levelLabel)
			}
			return a
		},
	}
}

// Init initializes the logging system with a structured JSON logger on stdout
// and sets it as the process default.
func Init(level slog.Level) {
	structuredLogger = slog.New(slog.NewJSONHandler(os.Stdout, newHandlerOptions(level)))
	slog.SetDefault(structuredLogger)
}

// Logger returns the structured logger, initializing with defaults if needed.
func Logger() *slog.Logger {
	if structuredLogger == nil {
		Init(slog.LevelInfo)
	}
	return structuredLogger
}

// ForService returns the structured logger with a 'service' attribute attached.
func ForService(serviceName string) *slog.Logger {
	return Logger().With("service", serviceName)
}

// NewFileLogger creates a slog logger writing JSON lines to the specified file
// path using lumberjack for size-based rotation, configured from main.log
// settings. It includes a 'service' attribute in all logs and returns the
// logger together with a function that closes the underlying writer.
func NewFileLogger(filePath, serviceName string, level slog.Level) (*slog.Logger, func() error, error) {
	// Ensure the directory exists (lumberjack doesn't create directories)
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logConf := conf.Setting().Main.Log

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    logConf.MaxSize, // megabytes
		MaxBackups: logConf.MaxBackups,
		MaxAge:     logConf.MaxAge, // days
		Compress:   false,
	}

	fileHandler := slog.NewJSONHandler(logWriter, newHandlerOptions(level))
	logger := slog.New(fileHandler).With("service", serviceName)

	return logger, logWriter.Close, nil
}
