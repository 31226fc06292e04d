// Package db holds the SQL migrations applied by `phivaultctl db migrate`.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
