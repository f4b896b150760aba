// Package migrations embeds the goose SQL migrations for the issuing server.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
