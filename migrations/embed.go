// Package migrations holds the goose SQL migrations for the deliverability schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
