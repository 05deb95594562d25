package datastore

import (
	"fmt"
	"log/slog"

	"github.com/ecosense/ecosense-go/internal/conf"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the SQLite database connection and performs schema sync.
// Foreign key enforcement is switched on through the DSN; SQLite leaves it
// off by default and the referential invariants depend on it.
func (store *SQLiteStore) Open() error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on", store.Settings.Database.SQLite.Path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store.DB = db
	if err := performAutoMigration(db); err != nil {
		return err
	}

	if store.Settings.Debug {
		slog.Debug("SQLite database connection initialized", "path", store.Settings.Database.SQLite.Path)
	}
	return nil
}
