package testutil

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethaccount/userop/src/utils"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var migrationPath = "file://" + filepath.Join(utils.FindProjectRoot(), "migrations")

// SetupTestDB connects to TEST_DB_URL and applies the migrations. The test is skipped
// when TEST_DB_URL is unset.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := RequireEnv(t, "TEST_DB_URL")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	migration, err := migrate.New(migrationPath, dsn)
	if err != nil {
		t.Fatalf("failed to create migrate: %v", err)
	}
	if err := migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("failed to run migration up: %v", err)
	}

	return db
}

func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	dsn := RequireEnv(t, "TEST_DB_URL")

	migration, err := migrate.New(migrationPath, dsn)
	if err != nil {
		t.Fatalf("failed to create migrate: %v", err)
	}
	if err := migration.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Logf("Warning: failed to run migration down: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
