package database

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"inventario-backend/internal/config"
	"inventario-backend/internal/models"
)

const sqlitePrefix = "sqlite://"

// Open connects to the database named by cfg.DatabaseDSN and installs the
// tracing plugin. A "sqlite://<path>" DSN runs on a local SQLite file,
// anything else is handed to Postgres.
func Open(cfg *config.Config) (*gorm.DB, error) {
	if path, ok := strings.CutPrefix(cfg.DatabaseDSN, sqlitePrefix); ok {
		return OpenSQLite(path)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if sqlDB, derr := db.DB(); derr == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}
	installPlugins(db)
	return db, nil
}

// OpenSQLite opens a single-writer SQLite database at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if sqlDB, derr := db.DB(); derr == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	installPlugins(db)
	return db, nil
}

func installPlugins(db *gorm.DB) {
	if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
		config.LogError(config.GetLogger(), "database", "Open", "failed to install otelgorm plugin", nil, pluginErr)
	}
}

// Migrate creates or updates every table of the server of record.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Tenant{},
		&models.User{},
		&models.ScanRecord{},
		&models.MasterProduct{},
		&models.VerificationRecord{},
		&models.SessionStats{},
		&models.LifetimeStats{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func gormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}
