// Package migrations embeds the ClickHouse schema applied by cmd/migrate.
package migrations

import "embed"

// FS holds the goose SQL migrations.
//
//go:embed *.sql
var FS embed.FS
