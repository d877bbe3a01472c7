// Package migrations embeds the SQL that prepares a database for AGE.
package migrations

import "embed"

// FS embeds all .sql migration files in this directory.
//
//go:embed *.sql
var FS embed.FS
