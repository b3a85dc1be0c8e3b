// Package database opens the configured store and keeps its schema current.
package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the driver and connection string.
type Config struct {
	Driver string
	DSN    string
	Logger *zap.Logger
}

// Open connects to the store and migrates the schema.
func Open(cfg Config) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, cfg.Logger); err != nil {
		return nil, err
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("database initialized", zap.String("driver", driverName(cfg.Driver)))
	}
	return db, nil
}

// Connect opens a connection without touching the schema. SQLite is limited to a
// single open connection so writers serialize.
func Connect(cfg Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	gormConfig := &gorm.Config{TranslateError: true}
	switch driverName(cfg.Driver) {
	case DriverSQLite:
		db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case DriverPostgres:
		return gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate creates missing tables and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	models := append([]any{}, notes.Models()...)
	models = append(models, &ledger.ActionProofRecord{}, &users.WalletUser{}, &migrationRecord{})
	if err := db.AutoMigrate(models...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func driverName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return DriverSQLite
	}
	return name
}
