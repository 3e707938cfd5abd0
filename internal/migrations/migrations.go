package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry consumed by the `tuleapi db` commands.
var Migrations = migrate.NewMigrations()
