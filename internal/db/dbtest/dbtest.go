// Package dbtest opens migrated databases for repository tests.
package dbtest

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"identity-service/internal/db"
	"identity-service/internal/db/migrate"
)

// OpenSQLite returns a migrated SQLite database in a temp dir, closed when t finishes.
func OpenSQLite(t testing.TB) (*sql.DB, db.Dialect) {
	t.Helper()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "test.db")
	return open(t, dsn)
}

// OpenPostgres returns the migrated database named by DATABASE_URL, skipping t when it is
// unset, unreachable or not Postgres.
func OpenPostgres(t testing.TB) (*sql.DB, db.Dialect) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if d, err := db.DialectOf(dsn); err != nil || d != db.Postgres {
		t.Skip("DATABASE_URL is not a postgres url, skipping integration test")
	}
	conn, _, err := db.Open(dsn)
	if err != nil {
		t.Skipf("Database connection failed (expected in test environment): %v", err)
	}
	_ = conn.Close()
	return open(t, dsn)
}

func open(t testing.TB, dsn string) (*sql.DB, db.Dialect) {
	t.Helper()
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	conn, dialect, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open %s: %v", dsn, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, dialect
}

// InsertUser writes a minimal active user row so sessions can reference it.
func InsertUser(t testing.TB, conn *sql.DB, dialect db.Dialect, id, email string) {
	t.Helper()
	q := dialect.Rebind(`INSERT INTO users (id, email, password_hash, role, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := conn.Exec(q, id, email, "x", "USER", true, dialect.Arg(time.Now())); err != nil {
		t.Fatalf("insert user %s: %v", id, err)
	}
}
