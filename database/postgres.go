package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AndrewCorlett/errolian-club-sub000/config"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
)

// Connect opens the configured database and migrates the schema when
// AutoMigrate is set.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseURL)
	default:
		sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewGormLogger(cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	slog.Info("Database connected", "driver", cfg.DatabaseDriver)

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		slog.Info("Database migrated")
	}
	return db, nil
}

// Migrate creates or updates every table the ledger uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.EventParticipant{},
		&models.Expense{},
		&models.ExpenseParticipant{},
		&models.Settlement{},
		&models.Activity{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// NewGormLogger routes gorm's logging through the default slog handler.
func NewGormLogger(level string) logger.Interface {
	lvl := logger.Warn
	switch level {
	case "debug":
		lvl = logger.Info
	case "error":
		lvl = logger.Error
	}
	return logger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  lvl,
			IgnoreRecordNotFoundError: true,
		},
	)
}
