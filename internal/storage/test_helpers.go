package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/app-directory-tracker/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// setupTestDB connects to the test database, applies migrations and empties
// every table. The test is skipped when Postgres is not reachable.
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(testContext(t), cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL(), cfg.MigrationsPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	_, err = db.Pool().Exec(testContext(t), `TRUNCATE applications, stat_entries, scan_logs RESTART IDENTITY`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
	return db
}

// testPostgresConfig points at the local development database. POSTGRES_TEST_*
// variables override the defaults.
func testPostgresConfig() *config.PostgresConfig {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	return &config.PostgresConfig{
		Host:           get("POSTGRES_TEST_HOST", "localhost"),
		Port:           get("POSTGRES_TEST_PORT", "5432"),
		Database:       get("POSTGRES_TEST_DB", "app_directory_test"),
		User:           get("POSTGRES_TEST_USER", "directory"),
		Password:       get("POSTGRES_TEST_PASSWORD", "directory_dev_password"),
		MaxConnections: 5,
		MigrationsPath: "../../migrations/postgres",
	}
}
