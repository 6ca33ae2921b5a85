// Package pgtest connects integration tests to a throwaway PostgreSQL
// database. Connection settings come from TEST_POSTGRES_* variables.
//
// Run with:
//
//	go test -v -tags=integration ./internal/...
package pgtest

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/postgres"
)

// Open returns a migrated client, or skips the test when PostgreSQL is
// unavailable.
func Open(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := Config()
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := postgres.Migrate(cfg.URL()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func Config() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "embeddings_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "embeddings"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
