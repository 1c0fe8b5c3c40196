// Package sql embeds the schema files applied at startup.
package sql

import "embed"

// Schema holds the numbered DDL files under schema/.
//
//go:embed schema/*.sql
var Schema embed.FS
