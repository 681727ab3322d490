// Package iconload embeds the assets shared by the commands.
package iconload

import "embed"

// Migrations holds the goose migrations of the run history database.
//
//go:embed migrations/*.sql
var Migrations embed.FS
