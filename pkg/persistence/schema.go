package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CurrentSchemaVersion defines the current schema version for migration
// support.
const CurrentSchemaVersion = 2

// OpenDatabase creates and initializes a standalone SQLite database. Most
// callers use Initialize and the singleton; this exists for tests and
// tooling that need their own connection.
func OpenDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// initializeSchemaWithMigrations ensures the database schema is at the
// current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion == 0 {
		return createSchema(db)
	}
	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds the sync event journal.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sync_events (
			id TEXT PRIMARY KEY,
			repo_path TEXT NOT NULL,
			direction TEXT NOT NULL,
			status TEXT NOT NULL,
			item_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_sync_events_repo ON sync_events(repo_path, status)",
	}
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}
	return nil
}

// createSchema creates the full current schema on an empty database.
func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			entity_key TEXT NOT NULL,
			version INTEGER NOT NULL,
			state TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '{}',
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (entity_key, version)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_snapshots_key ON snapshots(entity_key, version DESC)",
		`CREATE TABLE IF NOT EXISTS review_outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_key TEXT NOT NULL,
			reviewer TEXT NOT NULL,
			decision TEXT NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_review_outcomes_key ON review_outcomes(entity_key)",
		`CREATE TABLE IF NOT EXISTS sync_events (
			id TEXT PRIMARY KEY,
			repo_path TEXT NOT NULL,
			direction TEXT NOT NULL,
			status TEXT NOT NULL,
			item_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_sync_events_repo ON sync_events(repo_path, status)",
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return setSchemaVersion(db, CurrentSchemaVersion)
}

// GetSchemaVersion returns the schema version of the database, 0 for a fresh
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("querying schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("clearing schema version: %w", err)
	}
	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("writing schema version: %w", err)
	}
	return nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
