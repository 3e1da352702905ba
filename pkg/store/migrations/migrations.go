// Package migrations embeds the PostgreSQL schema migrations.
package migrations

import "embed"

// FS holds the versioned migration files consumed by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
