package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
)

// Restore replaces storePath with the contents of backupPath. The current
// store is backed up first, and that safety backup is returned. Callers
// must hold the store's write lock.
//
// A store with a rollback journal or a non-empty write-ahead log is
// refused, since SQLite would replay it over the restored file.
func (m *Manager) Restore(ctx context.Context, storePath, backupPath string) (*Backup, error) {
	if !strings.HasPrefix(filepath.Base(backupPath), filepath.Base(storePath)+Infix) {
		return nil, crerrors.ValidationError(
			fmt.Sprintf("%s is not a backup of %s", backupPath, storePath), nil)
	}
	if _, err := os.Stat(backupPath); err != nil {
		return nil, crerrors.ValidationError("backup file not found", err)
	}
	if err := checkNoPendingLog(storePath); err != nil {
		return nil, crerrors.New(crerrors.ErrCodeStoreLocked, err.Error(), nil).
			WithDetail("store", storePath).
			WithSuggestion("Close VS Code completely and run chatrepair again")
	}

	safety, err := m.Create(ctx, storePath)
	if err != nil {
		return nil, err
	}

	src, err := os.Open(backupPath)
	if err != nil {
		return safety, crerrors.Wrap(crerrors.ErrCodeWriteFailed, err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(storePath), filepath.Base(storePath)+".restore-*")
	if err != nil {
		return safety, crerrors.WriteError(storePath, err)
	}
	tmpPath := tmp.Name()

	if _, err := copyAndVerify(src, tmp, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return safety, crerrors.WriteError(storePath, err)
	}
	if info, err := os.Stat(storePath); err == nil {
		_ = os.Chmod(tmpPath, info.Mode().Perm())
	}
	if err := os.Rename(tmpPath, storePath); err != nil {
		_ = os.Remove(tmpPath)
		return safety, crerrors.WriteError(storePath, err)
	}

	slog.Info("store restored from backup",
		slog.String("store", storePath),
		slog.String("backup", backupPath),
		slog.String("safety_backup", safety.Path))
	return safety, nil
}

func checkNoPendingLog(storePath string) error {
	if _, err := os.Stat(storePath + "-journal"); err == nil {
		return fmt.Errorf("store %s has a pending rollback journal", storePath)
	}
	if info, err := os.Stat(storePath + "-wal"); err == nil && info.Size() > 0 {
		return fmt.Errorf("store %s has an uncheckpointed write-ahead log", storePath)
	}
	return nil
}
