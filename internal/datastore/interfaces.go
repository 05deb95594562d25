// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"log"
	"os"
	"time"

	"github.com/ecosense/ecosense-go/internal/conf"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Interface abstracts the underlying database implementation and defines the
// persistence operations of the sensor registry, reading store and anomaly store.
type Interface interface {
	Open() error
	Close() error

	// sensor registry
	CreateSensor(sensor *Sensor) error
	GetSensor(id uint) (Sensor, error)
	GetSensorByExternalID(externalID string) (Sensor, error)
	ResolveSensor(candidate string) (Sensor, error)
	ListSensors() ([]Sensor, error)
	UpdateSensor(id uint, update SensorUpdate) (Sensor, error)
	DeleteSensor(id uint) error
	TouchSensor(id uint, seenAt time.Time) error

	// reading store
	SaveReading(reading *SensorReading) error
	SearchReadings(filter ReadingFilter) ([]SensorReading, error)
	CountReadings(filter ReadingFilter) (int64, error)
	ReadingsSince(cutoff time.Time) ([]SensorReading, error)
	DeleteReading(id uint) error

	// anomaly store
	SaveAnomaly(anomaly *Anomaly) error
	SearchAnomalies(filter AnomalyFilter) ([]Anomaly, error)
	GetAnomaly(id uint) (Anomaly, error)
	UpdateAnomalyStatus(id uint, status, notes *string) (Anomaly, error)
}

// SensorUpdate carries the partial fields of a sensor update; nil pointers
// leave the corresponding column unchanged.
type SensorUpdate struct {
	Name                *string
	Type                *string
	Latitude            *float64
	Longitude           *float64
	LocationDescription *string
	Status              *string
}

// ReadingFilter bounds a reading query. Time bounds are inclusive.
type ReadingFilter struct {
	SensorID  *uint
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Reading query pagination bounds.
const (
	DefaultReadingLimit = 20
	MaxReadingLimit     = 100
)

// AnomalyFilter bounds an anomaly query. Time bounds are inclusive and apply
// to the detection timestamp. No default limit is applied.
type AnomalyFilter struct {
	Status    *string
	SensorID  *uint
	StartTime *time.Time
	EndTime   *time.Time
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the configured backend.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// Close releases the underlying SQL connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
