package cachedb

import (
	"path/filepath"
	"testing"
)

func open(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "cakelisp.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestLookupMissingRecordReturnsNotOK(t *testing.T) {
	db := open(t)

	_, _, ok, err := db.Lookup("double-it")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if ok {
		t.Error("Lookup() on an empty db reported ok = true")
	}
}

func TestRecordAndLookupRoundTrip(t *testing.T) {
	db := open(t)

	if err := db.Record("double-it", "deadbeef", "/tmp/cakelisp_cache/double-it.so"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	hash, shared, ok, err := db.Lookup("double-it")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !ok {
		t.Fatal("Lookup() after Record() reported ok = false")
	}
	if hash != "deadbeef" || shared != "/tmp/cakelisp_cache/double-it.so" {
		t.Errorf("Lookup() = (%q, %q), want (deadbeef, /tmp/cakelisp_cache/double-it.so)", hash, shared)
	}
}

func TestRecordUpsertsExistingName(t *testing.T) {
	db := open(t)

	if err := db.Record("double-it", "old-hash", "/old.so"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := db.Record("double-it", "new-hash", "/new.so"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	hash, shared, ok, err := db.Lookup("double-it")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !ok || hash != "new-hash" || shared != "/new.so" {
		t.Errorf("Lookup() after re-Record() = (%v, %q, %q), want (true, new-hash, /new.so)", ok, hash, shared)
	}
}

func TestForgetRemovesRecord(t *testing.T) {
	db := open(t)

	if err := db.Record("double-it", "deadbeef", "/tmp/double-it.so"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := db.Forget("double-it"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}

	_, _, ok, err := db.Lookup("double-it")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if ok {
		t.Error("Lookup() after Forget() still reports ok = true")
	}
}

func TestReopenPersistsRecordsAcrossCacheWipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cakelisp.db")

	db1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db1.Record("double-it", "deadbeef", "/tmp/double-it.so"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open() error = %v", err)
	}
	defer db2.Close()

	hash, _, ok, err := db2.Lookup("double-it")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !ok || hash != "deadbeef" {
		t.Errorf("Lookup() after reopen = (%v, %q), want (true, deadbeef) — freshness record should survive a close/reopen", ok, hash)
	}
}

func TestOpenRejectsMismatchedSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cakelisp.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := db.db.Exec(
		"UPDATE metadata SET value = ? WHERE key = 'schema_version'", "999",
	); err != nil {
		t.Fatalf("failed to corrupt schema version: %v", err)
	}
	db.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open() with a mismatched schema version should fail")
	}
}
