// Package migrations embeds the chatd schema migration files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
