// readings.go: reading store operations
package datastore

import (
	"time"

	"github.com/ecosense/ecosense-go/internal/errors"
	"gorm.io/gorm"
)

// SaveReading persists a raw timestamped reading. The foreign key invariant
// is enforced at the storage boundary: the referenced sensor must exist
// inside the same transaction the reading is inserted in, independent of any
// validation the caller performed.
func (ds *DataStore) SaveReading(reading *SensorReading) error {
	if err := reading.Channels.Validate(); err != nil {
		return validationError(err.Error(), "channels", nil)
	}
	if reading.Timestamp.IsZero() {
		return validationError("reading timestamp must be set", "timestamp", reading.Timestamp)
	}

	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Sensor{}).Where("id = ?", reading.SensorID).Count(&count).Error; err != nil {
			return dbError(err, "save_reading", "sensor_id", reading.SensorID)
		}
		if count == 0 {
			return errors.New(ErrSensorMissing).
				Component("datastore").
				Category(errors.CategoryReferential).
				Context("sensor_id", reading.SensorID).
				Build()
		}
		if err := tx.Omit("Sensor").Create(reading).Error; err != nil {
			if isForeignKeyViolation(err) {
				return errors.New(ErrSensorMissing).
					Component("datastore").
					Category(errors.CategoryReferential).
					Context("sensor_id", reading.SensorID).
					Build()
			}
			return dbError(err, "save_reading", "sensor_id", reading.SensorID)
		}
		return nil
	})
}

// SearchReadings retrieves readings matching the filter, most recent event
// timestamp first, each enriched with its owning sensor. Time bounds are
// inclusive. The limit defaults to DefaultReadingLimit and is capped at
// MaxReadingLimit.
func (ds *DataStore) SearchReadings(filter ReadingFilter) ([]SensorReading, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultReadingLimit
	} else if limit > MaxReadingLimit {
		limit = MaxReadingLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := ds.readingFilterQuery(filter).
		Preload("Sensor").
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset)

	var readings []SensorReading
	if err := query.Find(&readings).Error; err != nil {
		return nil, dbError(err, "search_readings")
	}
	return readings, nil
}

// CountReadings returns the number of readings matching the filter,
// disregarding limit and offset.
func (ds *DataStore) CountReadings(filter ReadingFilter) (int64, error) {
	var count int64
	if err := ds.readingFilterQuery(filter).Count(&count).Error; err != nil {
		return 0, dbError(err, "count_readings")
	}
	return count, nil
}

func (ds *DataStore) readingFilterQuery(filter ReadingFilter) *gorm.DB {
	query := ds.DB.Model(&SensorReading{})
	if filter.SensorID != nil {
		query = query.Where("sensor_id = ?", *filter.SensorID)
	}
	if filter.StartTime != nil {
		query = query.Where("timestamp >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("timestamp <= ?", *filter.EndTime)
	}
	return query
}

// ReadingsSince retrieves all readings with an event timestamp at or after
// the cutoff, across all sensors, oldest first. Used to assemble retraining
// batches.
func (ds *DataStore) ReadingsSince(cutoff time.Time) ([]SensorReading, error) {
	var readings []SensorReading
	err := ds.DB.Where("timestamp >= ?", cutoff).
		Order("timestamp ASC").
		Find(&readings).Error
	if err != nil {
		return nil, dbError(err, "readings_since", "cutoff", cutoff)
	}
	return readings, nil
}

// DeleteReading removes a reading. Anomalies referencing it keep their row
// with the reading reference cleared, so the anomaly outlives the raw data.
func (ds *DataStore) DeleteReading(id uint) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Anomaly{}).Where("reading_id = ?", id).Update("reading_id", nil).Error; err != nil {
			return dbError(err, "unlink_anomalies", "reading_id", id)
		}
		result := tx.Delete(&SensorReading{}, id)
		if result.Error != nil {
			return dbError(result.Error, "delete_reading", "id", id)
		}
		if result.RowsAffected == 0 {
			return notFoundError(ErrReadingNotFound, "delete_reading", id)
		}
		return nil
	})
}
