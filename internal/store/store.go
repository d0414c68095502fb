// Package store reads and replaces the chat session index inside a
// workspace's state database.
//
// Write access is exclusive: a sidecar file lock keeps two chatrepair
// processes apart, and every write transaction starts with BEGIN IMMEDIATE
// and a zero busy timeout so a database held by VS Code is refused
// instead of waited on.
package store

import (
	"context"
	"errors"

	"github.com/Aman-CERP/chatrepair/internal/index"
)

// ErrReadOnly is returned when a write is attempted on a read-only store.
var ErrReadOnly = errors.New("store opened read-only")

// IndexStore is the index capability of a state database.
type IndexStore interface {
	// Path returns the database file path.
	Path() string
	// ReadIndex returns the stored index. A missing row yields an empty
	// document with a nil Raw.
	ReadIndex(ctx context.Context) (*index.Document, error)
	// Begin starts a write transaction, failing with a LockError if the
	// database is held by another process.
	Begin(ctx context.Context) (IndexTx, error)
	// Close releases the database and any lock held.
	Close() error
}

// IndexTx is a write transaction on the index row.
// It runs to Commit or Rollback; it is not canceled by the Begin context.
type IndexTx interface {
	ReadIndex(ctx context.Context) (*index.Document, error)
	ReplaceIndex(ctx context.Context, doc *index.Document) error
	Commit() error
	Rollback() error
}
