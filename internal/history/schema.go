package history

import (
	"database/sql"

	"codeberg.org/mutker/airqd/internal/errors"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS measurements (
	       timestamp          INTEGER PRIMARY KEY,
	       co2eq_ppm          INTEGER NOT NULL CHECK (typeof(co2eq_ppm) = 'integer'),
	       tvoc_ppb           INTEGER NOT NULL CHECK (typeof(tvoc_ppb) = 'integer'),
	       absolute_humidity  REAL NOT NULL
	   );`

	insertSnapshotSQL = `
    INSERT INTO measurements (
        timestamp, co2eq_ppm, tvoc_ppb, absolute_humidity
    ) VALUES (?, ?, ?, ?)`

	recordVersionSQL = `
    INSERT OR IGNORE INTO schema_versions (version, applied_at)
    VALUES (?, datetime('now'))`
)

// EnsureSchema creates the schema if missing and records the current
// version.
func EnsureSchema(db *sql.DB) error {
	errFactory := errors.New()

	if _, err := db.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if _, err := db.Exec(recordVersionSQL, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	return nil
}
