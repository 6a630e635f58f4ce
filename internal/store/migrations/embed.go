// Package migrations embeds the SQL schema migrations for bico.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
