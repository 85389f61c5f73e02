package migrations

import "embed"

// FS contains embedded SQLite migrations for registration storage.
//
//go:embed *.sql
var FS embed.FS
