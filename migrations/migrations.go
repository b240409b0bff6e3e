// Package migrations embeds the reservation service schema, applied at
// startup by database.RunMigrations.
package migrations

import "embed"

// FS holds the SQL migration files in apply order.
//
//go:embed *.sql
var FS embed.FS
