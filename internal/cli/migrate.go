package cli

import (
	"context"
	"database/sql"
	"fmt"

	"quiz-attempt-service/internal/config"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	"quiz-attempt-service/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return runMigrationsWithConfig(ctx, cfg, logging.New(serviceName, cfg.Log.Level))
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	return Migrate(ctx, cfg.Postgres.URL, log)
}

// Migrate applies every pending migration to the database at dsn.
func Migrate(ctx context.Context, dsn string, log logrus.FieldLogger) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.WithField("group", group.String()).Info("migrations applied")
	return nil
}
