// Package store persists transfers and searches.
//
// Two logical databases exist: transfers.db and search.db. With the SQLite
// backend each is its own file; with PostgreSQL both table sets share one
// database. Either way the schema carries a version row in a meta table and
// the daemon refuses to start on a mismatch until a migration is run.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/seekerr"
)

// SchemaVersion is the schema this build understands. Bump together with a
// migration in migrations/.
const SchemaVersion = 1

// Databases bundles the two opened stores.
type Databases struct {
	Transfers *TransferStore
	Searches  *SearchStore

	transfersDB *gorm.DB
	searchDB    *gorm.DB
}

// Open connects both stores per the database configuration, creates missing
// schema, and verifies the schema version.
func Open(cfg config.DatabaseConfig) (*Databases, error) {
	switch cfg.Type {
	case "sqlite":
		return openSQLite(cfg.SQLite)
	case "postgres":
		return openPostgres(cfg.Postgres)
	default:
		return nil, seekerr.Newf(seekerr.KindConfiguration, "unsupported database type: %s", cfg.Type)
	}
}

func openSQLite(cfg config.SQLiteConfig) (*Databases, error) {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	transfersDB, err := openSQLiteFile(filepath.Join(cfg.Directory, "transfers.db"))
	if err != nil {
		return nil, err
	}
	searchDB, err := openSQLiteFile(filepath.Join(cfg.Directory, "search.db"))
	if err != nil {
		return nil, err
	}

	return finishOpen(transfersDB, searchDB)
}

func openSQLiteFile(path string) (*gorm.DB, error) {
	// WAL keeps readers unblocked during the synchronous per-transition
	// writes; busy_timeout waits out the single writer instead of failing.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	return db, nil
}

func openPostgres(cfg config.PostgresConfig) (*Databases, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	// Both table sets live in the one database.
	return finishOpen(db, db)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

func finishOpen(transfersDB, searchDB *gorm.DB) (*Databases, error) {
	if err := transfersDB.AutoMigrate(&TransferRecord{}, &MetaRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate transfers schema: %w", err)
	}
	if err := searchDB.AutoMigrate(&SearchRecord{}, &SearchResponseRecord{}, &SearchFileRecord{}, &MetaRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate search schema: %w", err)
	}

	if err := checkSchemaVersion(transfersDB, "transfers"); err != nil {
		return nil, err
	}
	if err := checkSchemaVersion(searchDB, "search"); err != nil {
		return nil, err
	}

	return &Databases{
		Transfers:   &TransferStore{db: transfersDB},
		Searches:    &SearchStore{db: searchDB},
		transfersDB: transfersDB,
		searchDB:    searchDB,
	}, nil
}

// Close releases both database connections.
func (d *Databases) Close() error {
	var errs []error
	seen := map[*gorm.DB]bool{}
	for _, db := range []*gorm.DB{d.transfersDB, d.searchDB} {
		if db == nil || seen[db] {
			continue
		}
		seen[db] = true
		sqlDB, err := db.DB()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// isUniqueConstraintError reports whether err is a unique constraint
// violation from either backend.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE constraint failed") ||
		strings.Contains(s, "duplicate key value violates unique constraint")
}

// convertError maps driver errors to the shared taxonomy at the store
// boundary.
func convertError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return seekerr.New(seekerr.KindNotFound, op)
	case isUniqueConstraintError(err):
		return seekerr.New(seekerr.KindAlreadyExists, op)
	default:
		return seekerr.Wrap(seekerr.KindInternal, op, err)
	}
}
