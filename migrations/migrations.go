// Package migrations embeds the goose SQL migrations so the server binary
// and integration tests can apply the schema without a filesystem checkout.
package migrations

import "embed"

// FS contains every SQL migration in this directory.
//
//go:embed *.sql
var FS embed.FS
