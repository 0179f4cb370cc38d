package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations collects every schema change; each versioned file registers itself.
var Migrations = migrate.NewMigrations()

// exec runs a SQL script, which may hold several statements.
func exec(script string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, script)
		return err
	}
}
