// Package migrations embeds the numbered schema files for the profile,
// attribute, circle, connection, message and qrcode tables. Integration
// tests apply them in lexical order against a fresh database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
