// Package migrations embeds the bridge's SQL schema so the binary can
// migrate its database without the files on disk.
package migrations

import "embed"

// FS holds every *.up.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
