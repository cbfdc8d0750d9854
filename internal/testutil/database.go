package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"testing"

	_ "github.com/lib/pq"

	"github.com/slimedodge/server/internal/config"
)

// journalTables are dropped between tests
var journalTables = []string{"chunk_records"}

// TestDatabaseConfig reads TEST_DB_* variables into the server's database
// settings so tests connect the same way the journal does
func TestDatabaseConfig() config.DatabaseConfig {
	port, err := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if err != nil {
		port = 5432
	}
	return config.DatabaseConfig{
		Enabled:        true,
		Host:           envOr("TEST_DB_HOST", "localhost"),
		Port:           port,
		User:           envOr("TEST_DB_USER", "postgres"),
		Password:       envOr("TEST_DB_PASSWORD", "postgres"),
		Database:       envOr("TEST_DB_NAME", "slimedodge_test"),
		SSLMode:        envOr("TEST_DB_SSLMODE", "disable"),
		MaxConnections: 4,
		MaxIdleConns:   1,
	}
}

// SetupTestDB connects to the journal test database, creating it on first
// use. The test is skipped when no PostgreSQL server answers.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := TestDatabaseConfig()

	maintenance := cfg
	maintenance.Database = "postgres"
	admin, err := sql.Open("postgres", maintenance.DatabaseURL())
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	defer admin.Close()
	if err := admin.Ping(); err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	// fails harmlessly when the database already exists
	_, _ = admin.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Database))

	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		t.Fatalf("open %s: %v", cfg.Database, err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("journal database %s not reachable: %v", cfg.Database, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// CleanupTestDB drops the journal tables so each test starts from an empty schema
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range journalTables {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + table + " CASCADE"); err != nil {
			t.Logf("drop %s: %v", table, err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
