// Package storetest creates VS Code style state databases for tests.
package storetest

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/chatrepair/internal/index"
)

// NewStore creates dir/state.vscdb with an ItemTable. When indexJSON is
// not empty it is stored under the chat session index key.
func NewStore(t testing.TB, dir, indexJSON string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "state.vscdb")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS ItemTable (key TEXT UNIQUE ON CONFLICT REPLACE, value BLOB)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO ItemTable (key, value) VALUES ('workbench.panel.chat', '{"visible":true}')`)
	require.NoError(t, err)
	if indexJSON != "" {
		_, err = db.Exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, index.Key, indexJSON)
		require.NoError(t, err)
	}
	return path
}

// ReadIndex returns the raw stored index value, or "" if there is none.
func ReadIndex(t testing.TB, path string) string {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var value []byte
	err = db.QueryRow(`SELECT value FROM ItemTable WHERE key = ?`, index.Key).Scan(&value)
	if err == sql.ErrNoRows {
		return ""
	}
	require.NoError(t, err)
	return string(value)
}

// HoldLock opens a second connection and starts a transaction with the
// given BEGIN mode ("IMMEDIATE" or "EXCLUSIVE"), simulating VS Code
// holding the database. The returned function releases it.
func HoldLock(t testing.TB, path, mode string) func() {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec("BEGIN " + mode)
	require.NoError(t, err)
	if mode == "EXCLUSIVE" {
		// Take the lock for real; BEGIN EXCLUSIVE in WAL mode is lazy.
		_, err = db.Exec(`UPDATE ItemTable SET value = value WHERE key = 'workbench.panel.chat'`)
		require.NoError(t, err)
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		_, _ = db.Exec("ROLLBACK")
		_ = db.Close()
	}
	t.Cleanup(release)
	return release
}

// WriteIndex replaces the stored index value the way the host would.
func WriteIndex(t testing.TB, path, indexJSON string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	_, err = db.Exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, index.Key, indexJSON)
	require.NoError(t, err)
}

// OpenWAL switches the store to WAL mode and returns a host connection
// with automatic checkpoints disabled, so its commits stay in the -wal
// file. The connection is closed when the test ends.
func OpenWAL(t testing.TB, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode=WAL`).Scan(&mode))
	require.Equal(t, "wal", mode)
	_, err = db.Exec(`PRAGMA wal_autocheckpoint=0`)
	require.NoError(t, err)
	return db
}

// ReadKey returns the value stored under key in the database at path, or
// "" if there is none. A copy of the database without its -wal file shows
// only what is in the main file.
func ReadKey(t testing.TB, path, key string) string {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var value []byte
	err = db.QueryRow(`SELECT value FROM ItemTable WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return ""
	}
	require.NoError(t, err)
	return string(value)
}
