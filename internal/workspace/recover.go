package workspace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/repair"
	"github.com/Aman-CERP/chatrepair/internal/store"
)

// Recoverer copies orphaned sessions back from other workspaces. It
// implements repair.Recoverer.
type Recoverer struct {
	all  []*Workspace
	byID map[string]*Workspace
	opts store.Options
}

// NewRecoverer creates a Recoverer searching the given workspaces. The
// workspaces are not modified.
func NewRecoverer(all []*Workspace, opts store.Options) *Recoverer {
	byID := make(map[string]*Workspace, len(all))
	for _, w := range all {
		byID[w.ID] = w
	}
	return &Recoverer{all: all, byID: byID, opts: opts}
}

// Locate finds the first other workspace holding a file for the session.
func (r *Recoverer) Locate(current *Workspace, id string) (*Workspace, string, bool) {
	for _, w := range r.all {
		if w.ID == current.ID {
			continue
		}
		if p, ok := w.Sessions[id]; ok {
			return w, p, true
		}
	}
	return nil, "", false
}

// Find lists the recoverable orphans of w without copying anything.
func (r *Recoverer) Find(ctx context.Context, w *Workspace) ([]repair.Recovery, error) {
	orphans, err := w.Orphans(ctx, r.opts)
	if err != nil {
		return nil, err
	}
	var out []repair.Recovery
	for _, id := range orphans {
		src, _, ok := r.Locate(w, id)
		if !ok {
			continue
		}
		out = append(out, repair.Recovery{
			ID:          id,
			From:        src.ID,
			FromName:    src.DisplayName(),
			SameProject: FoldersMatch(w.Folder, src.Folder),
		})
	}
	return out, nil
}

// Recover copies every recoverable orphan of t into its sessions
// directory. In a dry run nothing is copied. Failures are recorded per
// session and never stop the others.
func (r *Recoverer) Recover(ctx context.Context, t repair.Target, dryRun bool) []repair.Recovery {
	w, ok := r.byID[t.ID]
	if !ok {
		loaded, err := Load(ctx, filepath.Dir(t.StorePath))
		if err != nil {
			slog.Warn("orphan recovery skipped",
				slog.String("workspace", t.ID),
				slog.String("error", err.Error()))
			return nil
		}
		w = loaded
	}

	found, err := r.Find(ctx, w)
	if err != nil {
		slog.Warn("orphan recovery skipped",
			slog.String("workspace", t.ID),
			slog.String("error", err.Error()))
		return nil
	}
	if dryRun || len(found) == 0 {
		return found
	}

	if err := os.MkdirAll(t.SessionsDir, 0o755); err != nil {
		for i := range found {
			found[i].Err = crerrors.New(crerrors.ErrCodeRecoverFailed,
				"cannot create sessions directory", err).WithDetail("dir", t.SessionsDir)
		}
		return found
	}

	for i := range found {
		rec := &found[i]
		_, src, _ := r.Locate(w, rec.ID)
		dst := filepath.Join(t.SessionsDir, filepath.Base(src))
		if err := copyNew(src, dst); err != nil {
			rec.Err = crerrors.New(crerrors.ErrCodeRecoverFailed,
				fmt.Sprintf("failed to recover session %s", rec.ID), err).
				WithDetail("from", src).
				WithDetail("to", dst)
			slog.Warn("session recovery failed",
				slog.String("workspace", t.ID),
				slog.String("session", rec.ID),
				slog.String("error", err.Error()))
			continue
		}
		rec.Copied = true
		slog.Info("session recovered",
			slog.String("workspace", t.ID),
			slog.String("session", rec.ID),
			slog.String("from", rec.From),
			slog.Bool("same_project", rec.SameProject))
	}
	return found
}

// copyNew copies src to dst, failing if dst exists. The modification time
// is preserved so the session keeps its place in the index order.
func copyNew(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
