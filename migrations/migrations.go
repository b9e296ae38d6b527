// Package migrations embeds the schema files applied by internal/core/db.
package migrations

import "embed"

// SqliteMigrations holds the SQLite schema, applied in filename order.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds the PostgreSQL schema, applied in filename order.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
