// anomalies.go: anomaly store operations
package datastore

import (
	"github.com/ecosense/ecosense-go/internal/errors"
	"gorm.io/gorm"
)

// SaveAnomaly persists a detection outcome. The sensor reference is required
// even when a reading reference is present; both are checked at the storage
// boundary inside the insert transaction.
func (ds *DataStore) SaveAnomaly(anomaly *Anomaly) error {
	if anomaly.Status == "" {
		anomaly.Status = AnomalyStatusNew
	}
	if !ValidAnomalyStatus(anomaly.Status) {
		return validationError("invalid anomaly status", "status", anomaly.Status)
	}
	if anomaly.DetectedAt.IsZero() {
		return validationError("detection timestamp must be set", "detected_at", anomaly.DetectedAt)
	}

	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Sensor{}).Where("id = ?", anomaly.SensorID).Count(&count).Error; err != nil {
			return dbError(err, "save_anomaly", "sensor_id", anomaly.SensorID)
		}
		if count == 0 {
			return errors.New(ErrSensorMissing).
				Component("datastore").
				Category(errors.CategoryReferential).
				Context("sensor_id", anomaly.SensorID).
				Build()
		}
		if anomaly.ReadingID != nil {
			if err := tx.Model(&SensorReading{}).Where("id = ?", *anomaly.ReadingID).Count(&count).Error; err != nil {
				return dbError(err, "save_anomaly", "reading_id", *anomaly.ReadingID)
			}
			if count == 0 {
				return errors.New(ErrReadingNotFound).
					Component("datastore").
					Category(errors.CategoryReferential).
					Context("reading_id", *anomaly.ReadingID).
					Build()
			}
		}
		if err := tx.Omit("Sensor", "Reading").Create(anomaly).Error; err != nil {
			return dbError(err, "save_anomaly", "sensor_id", anomaly.SensorID)
		}
		return nil
	})
}

// SearchAnomalies retrieves anomalies matching the filter, most recent
// detection first, each enriched with its owning sensor. No default limit is
// applied; callers may bound the result themselves.
func (ds *DataStore) SearchAnomalies(filter AnomalyFilter) ([]Anomaly, error) {
	query := ds.DB.Model(&Anomaly{}).Preload("Sensor")
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SensorID != nil {
		query = query.Where("sensor_id = ?", *filter.SensorID)
	}
	if filter.StartTime != nil {
		query = query.Where("detected_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("detected_at <= ?", *filter.EndTime)
	}

	var anomalies []Anomaly
	if err := query.Order("detected_at DESC").Find(&anomalies).Error; err != nil {
		return nil, dbError(err, "search_anomalies")
	}
	return anomalies, nil
}

// GetAnomaly retrieves a single anomaly by id, enriched with its owning sensor.
func (ds *DataStore) GetAnomaly(id uint) (Anomaly, error) {
	var anomaly Anomaly
	if err := ds.DB.Preload("Sensor").First(&anomaly, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Anomaly{}, notFoundError(ErrAnomalyNotFound, "get_anomaly", id)
		}
		return Anomaly{}, dbError(err, "get_anomaly", "id", id)
	}
	return anomaly, nil
}

// UpdateAnomalyStatus updates the lifecycle status and/or the investigation
// notes of an anomaly. A status outside the defined lifecycle values is
// rejected before storage is touched. Notes may be set to the empty string to
// explicitly clear them. At least one of the two must be supplied.
func (ds *DataStore) UpdateAnomalyStatus(id uint, status, notes *string) (Anomaly, error) {
	if status == nil && notes == nil {
		return Anomaly{}, validationError("either status or notes must be supplied", "fields", nil)
	}
	fields := map[string]any{}
	if status != nil {
		if !ValidAnomalyStatus(*status) {
			return Anomaly{}, validationError("invalid anomaly status", "status", *status)
		}
		fields["status"] = *status
	}
	if notes != nil {
		fields["notes"] = *notes
	}

	result := ds.DB.Model(&Anomaly{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return Anomaly{}, dbError(result.Error, "update_anomaly_status", "id", id)
	}
	if result.RowsAffected == 0 {
		return Anomaly{}, notFoundError(ErrAnomalyNotFound, "update_anomaly_status", id)
	}

	return ds.GetAnomaly(id)
}
