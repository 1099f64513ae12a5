// Package gorm provides GORM-based database operations for storyline.
package gorm

import (
	"database/sql"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Driver names accepted by Config.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store represents the database connection.
type Store struct {
	DB     *gorm.DB
	driver string
	sqlDB  *sql.DB
}

// Config holds database configuration.
type Config struct {
	Driver   string          // "postgres" (production) or "sqlite" (tests)
	DSN      string          // Connection string or SQLite path
	MaxConns int             // Maximum number of open connections (default: 8)
	LogLevel logger.LogLevel // GORM log level (logger.Silent for production)
}

// NewStore opens the database and runs migrations. TranslateError is enabled
// so unique-constraint violations surface as gorm.ErrDuplicatedKey on both
// dialects; the fingerprint reservation depends on that.
func NewStore(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres, "":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 8
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	store := &Store{DB: db, driver: driver, sqlDB: sqlDB}

	if err := runMigrations(db, driver); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}
