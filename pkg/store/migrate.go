package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for golang-migrate

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/store/migrations"
)

// MigrateSQLite brings both SQLite files up to the current schema and
// stamps the version row, overriding whatever stamp they carried. Unlike
// Open it never refuses on a mismatch; it is the recovery path.
func MigrateSQLite(cfg config.SQLiteConfig) error {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	for _, name := range []string{"transfers.db", "search.db"} {
		db, err := openSQLiteFile(filepath.Join(cfg.Directory, name))
		if err != nil {
			return err
		}
		if name == "transfers.db" {
			err = db.AutoMigrate(&TransferRecord{}, &MetaRecord{})
		} else {
			err = db.AutoMigrate(&SearchRecord{}, &SearchResponseRecord{}, &SearchFileRecord{}, &MetaRecord{})
		}
		if err != nil {
			return fmt.Errorf("failed to migrate %s: %w", name, err)
		}
		if err := StampSchemaVersion(db); err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	logger.Info("sqlite migrations applied")
	return nil
}

// MigratePostgres brings a PostgreSQL database up to the current schema.
//
// golang-migrate takes a PostgreSQL advisory lock, so concurrent invocations
// against the same database serialize safely.
func MigratePostgres(ctx context.Context, cfg config.PostgresConfig) error {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    cfg.Database,
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	switch err {
	case nil:
		logger.Info("database migrations applied")
	case migrate.ErrNoChange:
		logger.Info("database schema is up to date")
	default:
		return fmt.Errorf("migration failed: %w", err)
	}

	// Stamp the version row the daemon checks at startup.
	if _, err := db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', $1)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		fmt.Sprint(SchemaVersion)); err != nil {
		return fmt.Errorf("failed to stamp schema version: %w", err)
	}

	return nil
}
