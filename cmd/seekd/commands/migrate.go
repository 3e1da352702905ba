package commands

import (
	"context"
	"fmt"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the transfer and search databases.

This command applies pending schema migrations to the configured databases
(SQLite or PostgreSQL). It is required after upgrading seekd when the daemon
refuses to start with a schema version mismatch.

Examples:
  # Run migrations with default config
  seekd migrate

  # Run migrations with custom config
  seekd migrate --config /etc/seekd/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations", "type", cfg.Database.Type)

	switch cfg.Database.Type {
	case "postgres":
		if err := store.MigratePostgres(context.Background(), cfg.Database.Postgres); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	default:
		if err := store.MigrateSQLite(cfg.Database.SQLite); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	fmt.Println("Migrations completed successfully")
	return nil
}
