// Package migrations embeds the SQLite schema for chat messages.
package migrations

import "embed"

// FS holds the ordered migration files.
//
//go:embed *.sql
var FS embed.FS
