package db

import (
	"fmt"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds database connection configuration
type Config struct {
	// URL is the database connection URL (defaults to DATABASE_URL env var)
	URL string
}

// Connect establishes a database connection.
// If no URL is provided, it reads from DATABASE_URL environment variable.
func Connect(cfg Config) (*gorm.DB, error) {
	dbURL := cfg.URL
	if dbURL == "" {
		dbURL = URL()
	}
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := gorm.Open(
		postgres.New(postgres.Config{
			DSN:                  dbURL,
			PreferSimpleProtocol: true, // disables implicit prepared statement usage
		}),
		&gorm.Config{
			Logger: logger.Default.LogMode(LogMode()),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// LogMode maps PHIVAULT_LOG_LEVEL onto a gorm log level. SQL logging is
// silent unless debug is requested since statements carry ciphertext.
func LogMode() logger.LogLevel {
	switch strings.ToLower(os.Getenv("PHIVAULT_LOG_LEVEL")) {
	case "debug":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

// URL returns the database URL from environment.
// Returns empty string if DATABASE_URL is not set.
func URL() string {
	return os.Getenv("DATABASE_URL")
}

// URLWithMigrationsTable returns url with golang-migrate pointed at its own
// version table, so the schema_migrations name stays free.
func URLWithMigrationsTable(url string) string {
	if url == "" {
		return ""
	}
	if strings.Contains(url, "?") {
		return url + "&x-migrations-table=phivault_schema_migrations"
	}
	return url + "?x-migrations-table=phivault_schema_migrations"
}
