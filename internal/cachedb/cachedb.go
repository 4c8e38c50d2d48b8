// Package cachedb persists build-freshness records across a
// cakelisp_cache wipe: the content hash and shared-library path the build
// driver last produced for a compile-time definition, so a rebuild can be
// skipped even when only mtimes, not content, changed.
package cachedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the current cachedb schema.
const SchemaVersion = "1"

// DB is a sqlite-backed freshness index.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cachedb at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cachedb: open: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS builds (
			name TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			shared_path TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		db.Close()

		return nil, fmt.Errorf("cachedb: migrate: %w", err)
	}

	d := &DB{db: db}

	if err := d.checkSchema(); err != nil {
		db.Close()

		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchema() error {
	var version string

	err := d.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		_, err := d.db.Exec(
			"INSERT INTO metadata (key, value) VALUES ('schema_version', ?)", SchemaVersion)

		return err
	case err != nil:
		return fmt.Errorf("cachedb: read schema version: %w", err)
	case version != SchemaVersion:
		return fmt.Errorf("cachedb: unsupported schema version %s (expected %s)", version, SchemaVersion)
	default:
		return nil
	}
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Lookup returns the content hash and shared-library path last recorded for
// name, and whether a record exists.
func (d *DB) Lookup(name string) (contentHash, sharedPath string, ok bool, err error) {
	err = d.db.QueryRow(
		"SELECT content_hash, shared_path FROM builds WHERE name = ?", name,
	).Scan(&contentHash, &sharedPath)

	switch {
	case err == sql.ErrNoRows:
		return "", "", false, nil
	case err != nil:
		return "", "", false, fmt.Errorf("cachedb: lookup %s: %w", name, err)
	default:
		return contentHash, sharedPath, true, nil
	}
}

// Record upserts the content hash and shared-library path for name.
func (d *DB) Record(name, contentHash, sharedPath string) error {
	_, err := d.db.Exec(`
		INSERT INTO builds (name, content_hash, shared_path) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET content_hash = excluded.content_hash, shared_path = excluded.shared_path
	`, name, contentHash, sharedPath)
	if err != nil {
		return fmt.Errorf("cachedb: record %s: %w", name, err)
	}

	return nil
}

// Forget removes name's freshness record, forcing a rebuild next pass.
func (d *DB) Forget(name string) error {
	_, err := d.db.Exec("DELETE FROM builds WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("cachedb: forget %s: %w", name, err)
	}

	return nil
}
