// Package backup takes verified snapshots of a state database before it is
// modified, and lists, prunes and restores them.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
)

const (
	// Infix separates the store name from the capture timestamp.
	Infix = ".backup."

	// TimestampLayout is the capture timestamp format in backup names.
	TimestampLayout = "20060102_150405"

	// maxCollisions bounds the _N suffixes tried within one second.
	maxCollisions = 100
)

// Backup is one snapshot of a store file.
type Backup struct {
	Path       string
	Source     string
	CapturedAt time.Time
	Size       int64
	SHA256     string // empty for listed backups that were not verified
	seq        int
}

// Manager creates and manages store backups.
type Manager struct {
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create copies storePath byte-for-byte next to itself and verifies the
// copy before returning. Existing files are never overwritten. On any
// failure the partial copy is removed and a BackupError is returned.
func (m *Manager) Create(ctx context.Context, storePath string) (*Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, crerrors.BackupError(storePath, err)
	}

	src, err := os.Open(storePath)
	if err != nil {
		return nil, crerrors.BackupError(storePath, err)
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return nil, crerrors.BackupError(storePath, err)
	}

	capturedAt := m.now()
	dst, path, seq, err := createExclusive(storePath, capturedAt, info.Mode().Perm())
	if err != nil {
		return nil, crerrors.BackupError(storePath, err)
	}

	b, err := copyAndVerify(src, dst, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, crerrors.BackupError(storePath, err)
	}
	b.Source = storePath
	b.CapturedAt = capturedAt
	b.seq = seq

	slog.Info("store backup created",
		slog.String("store", storePath),
		slog.String("backup", path),
		slog.Int64("size", b.Size),
		slog.String("sha256", b.SHA256))
	return b, nil
}

// createExclusive opens a new backup file, adding _N on name collisions.
func createExclusive(storePath string, at time.Time, perm os.FileMode) (*os.File, string, int, error) {
	base := storePath + Infix + at.Format(TimestampLayout)
	for seq := 0; seq < maxCollisions; seq++ {
		path := base
		if seq > 0 {
			path = fmt.Sprintf("%s_%d", base, seq)
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return f, path, seq, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", 0, err
		}
	}
	return nil, "", 0, fmt.Errorf("too many backups named %s", base)
}

// copyAndVerify copies src into dst, syncs, then re-reads dst and checks
// that size and SHA-256 match what was read from src.
func copyAndVerify(src io.Reader, dst *os.File, path string) (*Backup, error) {
	srcHash := sha256.New()
	n, err := io.Copy(dst, io.TeeReader(src, srcHash))
	if err != nil {
		_ = dst.Close()
		return nil, fmt.Errorf("copy: %w", err)
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		return nil, fmt.Errorf("sync: %w", err)
	}
	if err := dst.Close(); err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}

	want := hex.EncodeToString(srcHash.Sum(nil))
	gotSize, got, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if gotSize != n || got != want {
		return nil, fmt.Errorf("verify: backup does not match store (size %d/%d)", gotSize, n)
	}
	return &Backup{Path: path, Size: n, SHA256: want}, nil
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes a backup's size and checksum.
func Verify(b *Backup) error {
	size, sum, err := hashFile(b.Path)
	if err != nil {
		return err
	}
	if size != b.Size || (b.SHA256 != "" && sum != b.SHA256) {
		return fmt.Errorf("backup %s changed since it was taken", b.Path)
	}
	return nil
}

// List returns the backups of storePath, newest first.
func (m *Manager) List(storePath string) ([]Backup, error) {
	dir := filepath.Dir(storePath)
	prefix := filepath.Base(storePath) + Infix

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backup directory: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		at, seq, ok := parseSuffix(strings.TrimPrefix(entry.Name(), prefix))
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Backup{
			Path:       filepath.Join(dir, entry.Name()),
			Source:     storePath,
			CapturedAt: at,
			Size:       info.Size(),
			seq:        seq,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CapturedAt.Equal(backups[j].CapturedAt) {
			return backups[i].CapturedAt.After(backups[j].CapturedAt)
		}
		return backups[i].seq > backups[j].seq
	})
	return backups, nil
}

// parseSuffix parses "20060102_150405" or "20060102_150405_N".
func parseSuffix(s string) (time.Time, int, bool) {
	if len(s) < len(TimestampLayout) {
		return time.Time{}, 0, false
	}
	at, err := time.ParseInLocation(TimestampLayout, s[:len(TimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, 0, false
	}
	rest := s[len(TimestampLayout):]
	if rest == "" {
		return at, 0, true
	}
	if !strings.HasPrefix(rest, "_") {
		return time.Time{}, 0, false
	}
	seq, err := strconv.Atoi(rest[1:])
	if err != nil || seq <= 0 {
		return time.Time{}, 0, false
	}
	return at, seq, true
}

// Prune removes all but the newest keep backups of storePath.
// A keep of zero or less keeps everything. Removal is best-effort.
func (m *Manager) Prune(storePath string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	backups, err := m.List(storePath)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	var removed []string
	for _, b := range backups[keep:] {
		if err := os.Remove(b.Path); err != nil {
			slog.Warn("failed to prune backup",
				slog.String("backup", b.Path),
				slog.String("error", err.Error()))
			continue
		}
		removed = append(removed, b.Path)
	}
	return removed, nil
}
