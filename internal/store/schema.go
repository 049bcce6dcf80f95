package store

import (
	"database/sql"

	"codeberg.org/mutker/cpuctl/internal/errors"
)

const createTablesSQL = `
	CREATE TABLE IF NOT EXISTS history (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp     INTEGER NOT NULL,
		level         TEXT NOT NULL,
		reason        TEXT NOT NULL,
		source        TEXT,
		frequency_mhz REAL
	);
	CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp);
	CREATE TABLE IF NOT EXISTS demand_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp   INTEGER NOT NULL,
		event       TEXT NOT NULL,
		source      TEXT NOT NULL,
		level       TEXT NOT NULL,
		capability  TEXT,
		description TEXT
	);
	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

// initSchema creates the audit and settings tables
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(createTablesSQL); err != nil {
		return errors.New().Wrap(ErrSchemaInit, err)
	}

	return nil
}
