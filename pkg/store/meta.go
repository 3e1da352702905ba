package store

import (
	"errors"
	"strconv"

	"gorm.io/gorm"

	"github.com/seekd/seekd/pkg/seekerr"
)

const schemaVersionKey = "schema_version"

// checkSchemaVersion verifies the meta table's schema_version row. A fresh
// database is stamped with the current version; an older or newer stamp is a
// Configuration error so the daemon refuses to start on foreign state.
func checkSchemaVersion(db *gorm.DB, name string) error {
	var row MetaRecord
	err := db.Where("key = ?", schemaVersionKey).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = MetaRecord{Key: schemaVersionKey, Value: strconv.Itoa(SchemaVersion)}
		if err := db.Create(&row).Error; err != nil {
			return convertError("stamping schema version", err)
		}
		return nil
	case err != nil:
		return convertError("reading schema version", err)
	}

	have, err := strconv.Atoi(row.Value)
	if err != nil {
		return seekerr.Newf(seekerr.KindConfiguration,
			"%s database carries a malformed schema version %q", name, row.Value)
	}
	if have != SchemaVersion {
		return seekerr.Newf(seekerr.KindConfiguration,
			"%s database schema version %d does not match expected %d; run 'seekd migrate'",
			name, have, SchemaVersion)
	}
	return nil
}

// StampSchemaVersion force-writes the current schema version. Used by the
// migrate command after a successful migration.
func StampSchemaVersion(db *gorm.DB) error {
	row := MetaRecord{Key: schemaVersionKey, Value: strconv.Itoa(SchemaVersion)}
	err := db.Save(&row).Error
	return convertError("stamping schema version", err)
}

// TransfersDB exposes the underlying transfers connection for migrations.
func (d *Databases) TransfersDB() *gorm.DB { return d.transfersDB }

// SearchDB exposes the underlying search connection for migrations.
func (d *Databases) SearchDB() *gorm.DB { return d.searchDB }
