package datastore

import (
	"fmt"
	"log/slog"

	"github.com/ecosense/ecosense-go/internal/conf"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the MySQL database connection and performs schema sync.
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Database.MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db
	if err := performAutoMigration(db); err != nil {
		return err
	}

	if store.Settings.Debug {
		slog.Debug("MySQL database connection initialized",
			"host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	}
	return nil
}
