// Package db opens the relational store backing users and sessions. Postgres (pgx) is the
// production backend; SQLite (modernc) serves local development and tests.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax and error classification for a backend.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Rebind rewrites ? placeholders to $1..$n for Postgres. Queries must not contain literal
// question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

const sqlitePragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// DialectOf reports the dialect selected by dsn's scheme.
func DialectOf(dsn string) (Dialect, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return SQLite, nil
	case strings.TrimSpace(dsn) == "":
		return 0, errors.New("database url is empty")
	default:
		return 0, fmt.Errorf("unsupported database url scheme in %q", redact(dsn))
	}
}

// Open opens the database named by dsn (postgres://, postgresql:// or sqlite://path) and pings
// it. Caller must call Close when done.
func Open(dsn string) (*sql.DB, Dialect, error) {
	dialect, err := DialectOf(dsn)
	if err != nil {
		return nil, 0, err
	}
	var db *sql.DB
	switch dialect {
	case Postgres:
		db, err = sql.Open("pgx", dsn)
	case SQLite:
		path := strings.TrimPrefix(dsn, "sqlite://")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if path == "" {
			return nil, 0, errors.New("sqlite url has no path")
		}
		db, err = sql.Open("sqlite", path+sqlitePragmas)
		if err == nil {
			// One writer at a time; WAL still allows concurrent readers.
			db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, 0, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, 0, err
	}
	return db, dialect, nil
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}
