// model.go this code defines the data model for the application
package datastore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Sensor operational statuses.
const (
	SensorStatusActive      = "active"
	SensorStatusInactive    = "inactive"
	SensorStatusMaintenance = "maintenance"
	SensorStatusFaulty      = "faulty"
)

// Anomaly lifecycle statuses.
const (
	AnomalyStatusNew           = "new"
	AnomalyStatusInvestigating = "investigating"
	AnomalyStatusResolved      = "resolved"
	AnomalyStatusFalsePositive = "false_positive"
)

// ValidSensorStatus reports whether s is one of the defined sensor statuses.
func ValidSensorStatus(s string) bool {
	switch s {
	case SensorStatusActive, SensorStatusInactive, SensorStatusMaintenance, SensorStatusFaulty:
		return true
	}
	return false
}

// ValidAnomalyStatus reports whether s is one of the defined lifecycle statuses.
func ValidAnomalyStatus(s string) bool {
	switch s {
	case AnomalyStatusNew, AnomalyStatusInvestigating, AnomalyStatusResolved, AnomalyStatusFalsePositive:
		return true
	}
	return false
}

// ChannelValues is a schema-less mapping of reading-channel name to scalar
// value (number, string or boolean), persisted as a JSON text column.
// Channel sets vary per sensor type so no fixed struct can represent them.
type ChannelValues map[string]any

// Value implements driver.Valuer, serializing the map to JSON for storage.
func (cv ChannelValues) Value() (driver.Value, error) {
	if cv == nil {
		return nil, nil
	}
	return json.Marshal(cv)
}

// Scan implements sql.Scanner, deserializing a JSON column into the map.
func (cv *ChannelValues) Scan(value any) error {
	if value == nil {
		*cv = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, cv)
	case string:
		return json.Unmarshal([]byte(v), cv)
	default:
		return fmt.Errorf("unsupported type %T for ChannelValues", value)
	}
}

// Validate rejects empty channel maps and non-scalar channel values.
func (cv ChannelValues) Validate() error {
	if len(cv) == 0 {
		return fmt.Errorf("channel value map must not be empty")
	}
	for name, value := range cv {
		switch value.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64, string, bool, json.Number:
			// scalar, ok
		default:
			return fmt.Errorf("channel %q has unsupported value type %T", name, value)
		}
	}
	return nil
}

// StringList is a []string persisted as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (sl StringList) Value() (driver.Value, error) {
	if sl == nil {
		return nil, nil
	}
	return json.Marshal(sl)
}

// Scan implements sql.Scanner.
func (sl *StringList) Scan(value any) error {
	if value == nil {
		*sl = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, sl)
	case string:
		return json.Unmarshal([]byte(v), sl)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
}

// Sensor represents a registered environmental sensor. ExternalID is the
// caller-supplied device identifier and is immutable after registration;
// ID is the internal identifier used for all foreign key references.
type Sensor struct {
	ID                  uint   `gorm:"primaryKey"`
	ExternalID          string `gorm:"uniqueIndex:idx_sensors_external_id;not null"`
	Name                string
	Type                string `gorm:"index:idx_sensors_type;not null"`
	Latitude            *float64
	Longitude           *float64
	LocationDescription string
	Status              string `gorm:"type:varchar(20);default:active"`
	LastSeenAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SensorReading represents one timestamped batch of channel measurements
// from a sensor. Readings are immutable once persisted.
type SensorReading struct {
	ID        uint          `gorm:"primaryKey"`
	SensorID  uint          `gorm:"index:idx_readings_sensor;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:SensorID;references:ID"`
	Sensor    Sensor        `gorm:"foreignKey:SensorID"`
	Timestamp time.Time     `gorm:"index:idx_readings_timestamp;not null"` // event time, caller-supplied
	Channels  ChannelValues `gorm:"type:text;not null"`
	CreatedAt time.Time
}

// Anomaly represents a detection verdict flagged by the ML service. The
// sensor reference is always present; the reading reference is nullable and
// set to NULL if the triggering reading is later removed, so the anomaly
// outlives the raw reading.
type Anomaly struct {
	ID                   uint           `gorm:"primaryKey"`
	ReadingID            *uint          `gorm:"index:idx_anomalies_reading;constraint:OnDelete:SET NULL,OnUpdate:CASCADE;foreignKey:ReadingID;references:ID"`
	Reading              *SensorReading `gorm:"foreignKey:ReadingID"`
	SensorID             uint           `gorm:"index:idx_anomalies_sensor;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:SensorID;references:ID"`
	Sensor               Sensor         `gorm:"foreignKey:SensorID"`
	DetectedAt           time.Time      `gorm:"index:idx_anomalies_detected_at;not null"`
	Score                float64
	Category             string
	ContributingChannels StringList    `gorm:"type:text"`
	RawSnapshot          ChannelValues `gorm:"type:text"`
	Status               string        `gorm:"type:varchar(20);default:new"`
	Notes                string        `gorm:"type:text"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
