package db

import "embed"

// MigrationFS embeds the SQL migrations for both backends, one directory per dialect.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS

// MigrationDir is the MigrationFS directory holding d's migrations.
func (d Dialect) MigrationDir() string {
	return "migrations/" + d.String()
}
