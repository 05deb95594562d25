// manage.go: database schema management
package datastore

import (
	"fmt"

	"gorm.io/gorm"
)

// performAutoMigration automates database schema sync with error handling.
func performAutoMigration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Sensor{}, &SensorReading{}, &Anomaly{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
