package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	"modernc.org/sqlite"             // Pure Go SQLite driver (no CGO), registered as "sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/index"
)

const (
	// DriverModernc is the pure Go driver and the default.
	DriverModernc = "sqlite"
	// DriverMattn is the cgo driver.
	DriverMattn = "sqlite3"

	itemTable = "ItemTable"
)

// Options configures how a store is opened.
type Options struct {
	// Driver is DriverModernc or DriverMattn. Empty means DriverModernc.
	Driver string
	// LockDir holds the sidecar lock files for write access.
	LockDir string
}

// SQLiteStore is the IndexStore for a VS Code state database.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	readOnly bool
	wal      bool
	lock     *FileLock
}

var _ IndexStore = (*SQLiteStore)(nil)

// OpenReadOnly opens a state database for reading. No lock is taken and
// the connection cannot write.
func OpenReadOnly(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	return open(ctx, path, opts, true)
}

// OpenWrite opens a state database for repair. It takes the sidecar lock
// and, for WAL databases, checkpoints the log so a file copy of the
// database is complete.
func OpenWrite(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	return open(ctx, path, opts, false)
}

func open(ctx context.Context, path string, opts Options, readOnly bool) (*SQLiteStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, crerrors.New(crerrors.ErrCodeStoreNotFound,
			fmt.Sprintf("state database %s not found", path), err).WithDetail("store", path)
	}
	if info.IsDir() {
		return nil, crerrors.New(crerrors.ErrCodeStoreNotFound,
			fmt.Sprintf("state database %s is a directory", path), nil).WithDetail("store", path)
	}

	driver := opts.Driver
	if driver == "" {
		driver = DriverModernc
	}

	s := &SQLiteStore{path: path, readOnly: readOnly}
	if !readOnly {
		if opts.LockDir == "" {
			return nil, crerrors.InternalError("lock directory not configured", nil)
		}
		s.lock = NewFileLock(opts.LockDir, path)
		acquired, err := s.lock.TryLock()
		if err != nil {
			return nil, crerrors.LockError(path, err)
		}
		if !acquired {
			return nil, crerrors.LockError(path, errors.New("another chatrepair process is repairing this store"))
		}
	}

	db, err := sql.Open(driver, dsn(driver, path, readOnly))
	if err != nil {
		s.unlock()
		return nil, crerrors.Wrap(crerrors.ErrCodeInternal, err)
	}
	// One connection: pragmas and transactions must share it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	slog.Debug("state database opened",
		slog.String("store", path),
		slog.String("driver", driver),
		slog.Bool("read_only", readOnly))
	return s, nil
}

// dsn builds a URI filename for the driver. Both drivers accept SQLite
// URI parameters; transaction locking is driven explicitly by this
// package, so only the access mode and busy timeout are set here.
func dsn(driver, path string, readOnly bool) string {
	mode := "rw"
	if readOnly {
		mode = "ro"
	}
	uri := "file:" + escapePath(path) + "?mode=" + mode
	if driver == DriverMattn {
		return uri + "&_busy_timeout=0"
	}
	return uri + "&_pragma=busy_timeout(0)"
}

func escapePath(path string) string {
	p := filepath.ToSlash(path)
	if filepath.VolumeName(path) != "" {
		p = "/" + p
	}
	return strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(p)
}

// init applies connection pragmas and validates the schema, mirroring
// the integrity checks done before any index is trusted.
func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 0"); err != nil {
		return s.classify(err)
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, itemTable).Scan(&count)
	if err != nil {
		return s.classify(err)
	}
	if count == 0 {
		return crerrors.New(crerrors.ErrCodeCorruptStore,
			fmt.Sprintf("state database %s has no %s table", s.path, itemTable), nil).
			WithDetail("store", s.path)
	}

	if s.readOnly {
		return nil
	}

	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return s.classify(err)
	}
	if strings.EqualFold(mode, "wal") {
		s.wal = true
		return s.checkpoint(ctx, s.db)
	}
	return nil
}

// checkpoint moves every committed WAL frame into the database file and
// truncates the log.
func (s *SQLiteStore) checkpoint(ctx context.Context, q querier) error {
	var busy, logFrames, checkpointed int
	if err := q.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").
		Scan(&busy, &logFrames, &checkpointed); err != nil {
		return s.classify(err)
	}
	if busy != 0 {
		return crerrors.LockError(s.path, errors.New("write-ahead log checkpoint blocked by another connection"))
	}
	return nil
}

// walPending fails when the write-ahead log holds frames, meaning the
// database file alone is not the committed content.
func (s *SQLiteStore) walPending() error {
	info, err := os.Stat(s.path + "-wal")
	if err != nil || info.Size() == 0 {
		return nil
	}
	return crerrors.LockError(s.path,
		fmt.Errorf("write-ahead log %s-wal holds %d bytes not yet in the database file", s.path, info.Size()))
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// ReadOnly reports whether the store was opened without write access.
func (s *SQLiteStore) ReadOnly() bool {
	return s.readOnly
}

// ReadIndex returns the stored index document.
func (s *SQLiteStore) ReadIndex(ctx context.Context) (*index.Document, error) {
	return readIndex(ctx, s.db, s)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readIndex(ctx context.Context, q querier, s *SQLiteStore) (*index.Document, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM ItemTable WHERE key = ?`, index.Key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Decode(nil), nil
	}
	if err != nil {
		return nil, s.classify(err)
	}
	if raw == nil {
		raw = []byte{}
	}
	doc := index.Decode(raw)
	if doc.Corrupt {
		slog.Warn("stored chat session index is not valid JSON; treating as empty",
			slog.String("store", s.path),
			slog.Int("bytes", len(raw)))
	}
	return doc, nil
}

// Begin starts a BEGIN IMMEDIATE transaction on a dedicated connection.
// A database held by another process fails at once with a LockError.
// For WAL databases the log is checkpointed first and must still be
// empty once the write lock is held, so the database file can be copied
// as the complete pre-write content.
func (s *SQLiteStore) Begin(ctx context.Context) (IndexTx, error) {
	if s.readOnly {
		return nil, crerrors.WriteError(s.path, ErrReadOnly)
	}
	// Once started the transaction must end in COMMIT or ROLLBACK, never
	// in a context cancellation.
	txCtx := context.WithoutCancel(ctx)
	conn, err := s.db.Conn(txCtx)
	if err != nil {
		return nil, s.classify(err)
	}
	if s.wal {
		if err := s.checkpoint(txCtx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	if _, err := conn.ExecContext(txCtx, "BEGIN IMMEDIATE"); err != nil {
		_ = conn.Close()
		return nil, s.classify(err)
	}
	if s.wal {
		if err := s.walPending(); err != nil {
			_, _ = conn.ExecContext(txCtx, "ROLLBACK")
			_ = conn.Close()
			return nil, err
		}
	}
	return &sqliteTx{conn: conn, ctx: txCtx, store: s}, nil
}

// Close releases the database and the write lock.
func (s *SQLiteStore) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	s.unlock()
	return err
}

func (s *SQLiteStore) unlock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		slog.Warn("failed to release store lock",
			slog.String("lock", s.lock.Path()),
			slog.String("error", err.Error()))
	}
}

// classify maps driver errors to LockError or CorruptStore.
func (s *SQLiteStore) classify(err error) error {
	if IsBusy(err) {
		return crerrors.LockError(s.path, err)
	}
	return crerrors.New(crerrors.ErrCodeCorruptStore,
		fmt.Sprintf("cannot read state database %s: %v", s.path, err), err).
		WithDetail("store", s.path)
}

// IsBusy reports whether err means the database is locked by another
// connection or process.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	// The cgo driver's error type is only available with cgo enabled, so
	// its lock errors are recognized by message.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

type sqliteTx struct {
	conn  *sql.Conn
	ctx   context.Context
	store *SQLiteStore
	done  bool
}

func (t *sqliteTx) ReadIndex(_ context.Context) (*index.Document, error) {
	return readIndex(t.ctx, t.conn, t.store)
}

// ReplaceIndex deletes and re-inserts the index row.
func (t *sqliteTx) ReplaceIndex(_ context.Context, doc *index.Document) error {
	value := string(doc.Encode())
	if _, err := t.conn.ExecContext(t.ctx, `DELETE FROM ItemTable WHERE key = ?`, index.Key); err != nil {
		return crerrors.WriteError(t.store.path, err)
	}
	if _, err := t.conn.ExecContext(t.ctx,
		`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, index.Key, value); err != nil {
		return crerrors.WriteError(t.store.path, err)
	}
	return nil
}

// Commit commits the transaction. A failed commit is rolled back.
func (t *sqliteTx) Commit() error {
	if t.done {
		return crerrors.WriteError(t.store.path, errors.New("transaction already finished"))
	}
	t.done = true
	defer func() { _ = t.conn.Close() }()

	if _, err := t.conn.ExecContext(t.ctx, "COMMIT"); err != nil {
		if _, rbErr := t.conn.ExecContext(t.ctx, "ROLLBACK"); rbErr != nil {
			slog.Warn("rollback after failed commit",
				slog.String("store", t.store.path),
				slog.String("error", rbErr.Error()))
		}
		return crerrors.WriteError(t.store.path, err)
	}
	return nil
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (t *sqliteTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer func() { _ = t.conn.Close() }()

	if _, err := t.conn.ExecContext(t.ctx, "ROLLBACK"); err != nil {
		return crerrors.WriteError(t.store.path, err)
	}
	return nil
}
