package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/blowerctl/internal/errors"
	"codeberg.org/mutker/blowerctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS snapshots (
	       id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	       recorded_at           INTEGER NOT NULL,
	       update_sequence       INTEGER NOT NULL,
	       fan_pressure_pa       REAL NOT NULL,
	       fan_temperature_c     REAL NOT NULL,
	       fan_valid             INTEGER NOT NULL CHECK (fan_valid IN (0, 1)),
	       envelope_pressure_pa  REAL NOT NULL,
	       envelope_temperature_c REAL NOT NULL,
	       envelope_valid        INTEGER NOT NULL CHECK (envelope_valid IN (0, 1)),
	       fan_speed_units       REAL NOT NULL,
	       air_leakage_units     REAL NOT NULL,
	       calibration_state     TEXT NOT NULL,
	       calibration_progress  INTEGER NOT NULL,
	       fan_offset_pa         REAL NOT NULL,
	       envelope_offset_pa    REAL NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_snapshots_recorded_at ON snapshots (recorded_at);`

	insertSnapshotSQL = `
    INSERT INTO snapshots (
        recorded_at, update_sequence,
        fan_pressure_pa, fan_temperature_c, fan_valid,
        envelope_pressure_pa, envelope_temperature_c, envelope_valid,
        fan_speed_units, air_leakage_units,
        calibration_state, calibration_progress,
        fan_offset_pa, envelope_offset_pa
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates the database schema with the current version
func InitSchema(db *sql.DB) error {
	errFactory := errors.New()

	logger.Debug().Msg("Creating telemetry schema...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	logger.Debug().Int("version", SchemaVersion).Msg("Telemetry schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := tableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	return version, nil
}

func tableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()

	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	return exists, nil
}
