package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func TestLogMode(t *testing.T) {
	tests := []struct {
		level string
		want  logger.LogLevel
	}{
		{"", logger.Silent},
		{"debug", logger.Info},
		{"DEBUG", logger.Info},
		{"warn", logger.Warn},
		{"error", logger.Error},
		{"trace", logger.Silent},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Setenv("PHIVAULT_LOG_LEVEL", tt.level)
			assert.Equal(t, tt.want, LogMode())
		})
	}
}

func TestConnect_RequiresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Connect(Config{})
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestURLWithMigrationsTable(t *testing.T) {
	assert.Equal(t, "", URLWithMigrationsTable(""))
	assert.Equal(t,
		"postgres://db/phivault?x-migrations-table=phivault_schema_migrations",
		URLWithMigrationsTable("postgres://db/phivault"))
	assert.Equal(t,
		"postgres://db/phivault?sslmode=disable&x-migrations-table=phivault_schema_migrations",
		URLWithMigrationsTable("postgres://db/phivault?sslmode=disable"))
}
