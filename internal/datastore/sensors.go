// sensors.go: sensor registry operations, the identity resolution authority
package datastore

import (
	"strconv"
	"strings"
	"time"

	"github.com/ecosense/ecosense-go/internal/errors"
	"gorm.io/gorm"
)

// CreateSensor persists a new sensor. The external device identifier must be
// unique; a duplicate registration fails with ErrDuplicateSensor without
// mutating state.
func (ds *DataStore) CreateSensor(sensor *Sensor) error {
	if strings.TrimSpace(sensor.ExternalID) == "" {
		return validationError("external id must not be blank", "external_id", sensor.ExternalID)
	}
	if strings.TrimSpace(sensor.Type) == "" {
		return validationError("sensor type must not be blank", "type", sensor.Type)
	}
	if sensor.Status == "" {
		sensor.Status = SensorStatusActive
	}
	if !ValidSensorStatus(sensor.Status) {
		return validationError("invalid sensor status", "status", sensor.Status)
	}

	if err := ds.DB.Create(sensor).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.New(ErrDuplicateSensor).
				Component("datastore").
				Category(errors.CategoryConflict).
				Context("external_id", sensor.ExternalID).
				Build()
		}
		return dbError(err, "create_sensor", "external_id", sensor.ExternalID)
	}
	return nil
}

// GetSensor retrieves a sensor by its internal identifier.
func (ds *DataStore) GetSensor(id uint) (Sensor, error) {
	var sensor Sensor
	if err := ds.DB.First(&sensor, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Sensor{}, notFoundError(ErrSensorNotFound, "get_sensor", id)
		}
		return Sensor{}, dbError(err, "get_sensor", "id", id)
	}
	return sensor, nil
}

// GetSensorByExternalID retrieves a sensor by its external device identifier.
func (ds *DataStore) GetSensorByExternalID(externalID string) (Sensor, error) {
	var sensor Sensor
	if err := ds.DB.Where("external_id = ?", externalID).First(&sensor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Sensor{}, notFoundError(ErrSensorNotFound, "get_sensor_by_external_id", externalID)
		}
		return Sensor{}, dbError(err, "get_sensor_by_external_id", "external_id", externalID)
	}
	return sensor, nil
}

// ResolveSensor resolves a caller-supplied identifier that may be either the
// internal or the external identifier. Numeric candidates are tried against
// the internal identifier space first; everything else goes straight to the
// external identifier.
func (ds *DataStore) ResolveSensor(candidate string) (Sensor, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return Sensor{}, validationError("sensor identifier must not be blank", "identifier", candidate)
	}

	if id, err := strconv.ParseUint(candidate, 10, 32); err == nil {
		sensor, err := ds.GetSensor(uint(id))
		if err == nil {
			return sensor, nil
		}
		if !errors.Is(err, ErrSensorNotFound) {
			return Sensor{}, err
		}
	}

	return ds.GetSensorByExternalID(candidate)
}

// ListSensors retrieves all registered sensors.
func (ds *DataStore) ListSensors() ([]Sensor, error) {
	var sensors []Sensor
	if err := ds.DB.Order("id ASC").Find(&sensors).Error; err != nil {
		return nil, dbError(err, "list_sensors")
	}
	return sensors, nil
}

// UpdateSensor applies a partial update to a sensor. Unset fields are left
// unchanged. Fails with ErrSensorNotFound if no sensor matches.
func (ds *DataStore) UpdateSensor(id uint, update SensorUpdate) (Sensor, error) {
	fields := map[string]any{}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.Type != nil {
		if strings.TrimSpace(*update.Type) == "" {
			return Sensor{}, validationError("sensor type must not be blank", "type", *update.Type)
		}
		fields["type"] = *update.Type
	}
	if update.Latitude != nil {
		fields["latitude"] = *update.Latitude
	}
	if update.Longitude != nil {
		fields["longitude"] = *update.Longitude
	}
	if update.LocationDescription != nil {
		fields["location_description"] = *update.LocationDescription
	}
	if update.Status != nil {
		if !ValidSensorStatus(*update.Status) {
			return Sensor{}, validationError("invalid sensor status", "status", *update.Status)
		}
		fields["status"] = *update.Status
	}
	if len(fields) == 0 {
		return Sensor{}, validationError("no updatable fields supplied", "fields", nil)
	}

	var sensor Sensor
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sensor, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError(ErrSensorNotFound, "update_sensor", id)
			}
			return dbError(err, "update_sensor", "id", id)
		}
		if err := tx.Model(&sensor).Updates(fields).Error; err != nil {
			return dbError(err, "update_sensor", "id", id)
		}
		return nil
	})
	if err != nil {
		return Sensor{}, err
	}
	return sensor, nil
}

// DeleteSensor removes a sensor and its dependent readings and anomalies in a
// single transaction so no orphaned foreign key references remain.
func (ds *DataStore) DeleteSensor(id uint) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var sensor Sensor
		if err := tx.First(&sensor, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError(ErrSensorNotFound, "delete_sensor", id)
			}
			return dbError(err, "delete_sensor", "id", id)
		}
		if err := tx.Where("sensor_id = ?", id).Delete(&Anomaly{}).Error; err != nil {
			return dbError(err, "delete_sensor_anomalies", "sensor_id", id)
		}
		if err := tx.Where("sensor_id = ?", id).Delete(&SensorReading{}).Error; err != nil {
			return dbError(err, "delete_sensor_readings", "sensor_id", id)
		}
		if err := tx.Delete(&Sensor{}, id).Error; err != nil {
			return dbError(err, "delete_sensor", "id", id)
		}
		return nil
	})
}

// TouchSensor records the last communication timestamp of a sensor.
func (ds *DataStore) TouchSensor(id uint, seenAt time.Time) error {
	if err := ds.DB.Model(&Sensor{}).Where("id = ?", id).Update("last_seen_at", seenAt).Error; err != nil {
		return dbError(err, "touch_sensor", "id", id)
	}
	return nil
}
