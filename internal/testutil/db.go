// Package testutil holds fixtures shared by package tests: Postgres databases with the job
// schema applied, an in-process Redis, and request builders.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/target/mmk-dataport/internal/migrate"
)

// TestDBConfig locates the Postgres instance integration tests run against.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_* variables. The port defaults to 55432, the compose test
// profile; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "dataport"),
		Password: envOr("TEST_DB_PASSWORD", "dataport"),
		DBName:   envOr("TEST_DB_NAME", "dataport"),
	}
}

// DSN returns the connection URL, optionally pinned to schema.
func (c TestDBConfig) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{"sslmode": {envOr("DB_SSL_MODE", "disable")}}
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SkipIfNoTestDB skips t when Postgres is unreachable, or fails it when TEST_REQUIRE_DB or
// TEST_REQUIRE_INFRA is set.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()

	db, err := open(DefaultTestDBConfig().DSN(""), 2*time.Second)
	if err != nil {
		if envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") {
			t.Fatalf("test database not available: %v", err)
		}
		t.Skipf("test database not available: %v", err)
	}
	closeQuietly(t, db)
}

// WithAutoDB runs fn against a migrated database. With TEST_DB_EPHEMERAL set each test gets
// its own schema; otherwise the shared database is emptied before and after fn.
func WithAutoDB(t *testing.T, fn func(*sql.DB)) {
	t.Helper()
	if envBool("TEST_DB_EPHEMERAL") {
		fn(SetupEphemeralSchemaDB(t))
		return
	}

	SkipIfNoTestDB(t)
	db, err := open(DefaultTestDBConfig().DSN(""), 5*time.Second)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		truncateJobs(t, db)
		closeQuietly(t, db)
	})
	applyMigrations(t, db)
	truncateJobs(t, db)
	fn(db)
}

// WithEphemeralDB runs fn against a fresh migrated schema.
func WithEphemeralDB(t *testing.T, fn func(*sql.DB)) {
	t.Helper()
	fn(SetupEphemeralSchemaDB(t))
}

// SetupEphemeralSchemaDB creates a throwaway schema, applies migrations inside it and drops it
// when t finishes.
func SetupEphemeralSchemaDB(t *testing.T) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	cfg := DefaultTestDBConfig()
	admin, err := open(cfg.DSN(""), 5*time.Second)
	if err != nil {
		t.Fatalf("open admin connection: %v", err)
	}

	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		closeQuietly(t, admin)
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := open(cfg.DSN(schema), 10*time.Second)
	if err != nil {
		closeQuietly(t, admin)
		t.Fatalf("open schema %s: %v", schema, err)
	}
	db.SetMaxOpenConns(10)

	t.Logf("using schema %s", schema)
	t.Cleanup(func() {
		closeQuietly(t, db)
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, dropErr := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); dropErr != nil {
			t.Logf("drop schema %s: %v", schema, dropErr)
		}
		closeQuietly(t, admin)
	})

	applyMigrations(t, db)
	return db
}

// TestTime is the instant repository tests start their clocks at.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func open(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func applyMigrations(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
}

func truncateJobs(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DELETE FROM transfer_jobs"); err != nil {
		t.Fatalf("empty transfer_jobs: %v", err)
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "t_" + strings.ReplaceAll(time.Now().Format("150405.000000"), ".", "")
	}
	return "t_" + hex.EncodeToString(b)
}

func closeQuietly(t testing.TB, db *sql.DB) {
	if err := db.Close(); err != nil {
		t.Logf("close database: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
