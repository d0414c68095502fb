package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
)

// Discover loads every workspace under root that has at least one session
// file, sorted by ID. A missing root yields no workspaces. Workspaces that
// cannot be read are logged and skipped.
func Discover(ctx context.Context, root string) ([]*Workspace, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		slog.Info("workspace storage root not found", slog.String("root", root))
		return nil, nil
	}
	if err != nil {
		return nil, crerrors.ScanError(root, err)
	}

	var out []*Workspace
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, crerrors.New(crerrors.ErrCodeCanceled, "discovery canceled", err)
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		w, err := Load(ctx, filepath.Join(root, e.Name()))
		if err != nil {
			slog.Warn("failed to scan workspace",
				slog.String("workspace", e.Name()),
				slog.String("error", err.Error()))
			continue
		}
		if w.HasSessions() {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	slog.Debug("discovered workspaces",
		slog.String("root", root),
		slog.Int("with_sessions", len(out)))
	return out, nil
}

// Find loads the workspace with the given ID under root.
func Find(ctx context.Context, root, id string) (*Workspace, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return nil, crerrors.ValidationError("invalid workspace ID: "+id, nil)
	}
	dir := filepath.Join(root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, crerrors.New(crerrors.ErrCodeWorkspaceNotFound,
			"workspace not found: "+id, err).
			WithDetail("root", root).
			WithSuggestion("Run 'chatrepair list' to see available workspaces")
	}
	return Load(ctx, dir)
}

// Others returns all workspaces except the one with the given ID.
func Others(all []*Workspace, id string) []*Workspace {
	out := make([]*Workspace, 0, len(all))
	for _, w := range all {
		if w.ID != id {
			out = append(out, w)
		}
	}
	return out
}
