package workspace

import (
	"context"
	"sort"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/store"
)

// Status summarizes whether a workspace's index matches its files.
type Status string

const (
	StatusHealthy     Status = "HEALTHY"
	StatusNeedsRepair Status = "NEEDS REPAIR"
	StatusUnreadable  Status = "UNREADABLE"
)

// Health compares the sessions on disk with the stored index.
type Health struct {
	OnDisk   int
	InIndex  int
	Missing  []string // on disk, not indexed
	Orphaned []string // indexed, no file
	Status   Status
	Err      error
}

// NeedsRepair reports whether the index and the files disagree.
func (h *Health) NeedsRepair() bool {
	return h.Status == StatusNeedsRepair
}

// IndexedIDs reads the session IDs in the workspace's stored index without
// taking a write lock. A missing store or index row yields none.
func (w *Workspace) IndexedIDs(ctx context.Context, opts store.Options) ([]string, error) {
	s, err := store.OpenReadOnly(ctx, w.StorePath(), opts)
	if crerrors.HasCode(err, crerrors.ErrCodeStoreNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	doc, err := s.ReadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return doc.IDs(), nil
}

// Orphans returns the indexed IDs with no session file.
func (w *Workspace) Orphans(ctx context.Context, opts store.Options) ([]string, error) {
	indexed, err := w.IndexedIDs(ctx, opts)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range indexed {
		if _, ok := w.Sessions[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Health computes the list-mode view of the workspace.
func (w *Workspace) Health(ctx context.Context, opts store.Options) *Health {
	h := &Health{OnDisk: len(w.Sessions)}
	indexed, err := w.IndexedIDs(ctx, opts)
	if err != nil {
		h.Status = StatusUnreadable
		h.Err = err
		return h
	}
	h.InIndex = len(indexed)

	inIndex := make(map[string]struct{}, len(indexed))
	for _, id := range indexed {
		inIndex[id] = struct{}{}
		if _, ok := w.Sessions[id]; !ok {
			h.Orphaned = append(h.Orphaned, id)
		}
	}
	for _, id := range w.SessionIDs() {
		if _, ok := inIndex[id]; !ok {
			h.Missing = append(h.Missing, id)
		}
	}
	sort.Strings(h.Orphaned)

	h.Status = StatusHealthy
	if len(h.Missing) > 0 || len(h.Orphaned) > 0 {
		h.Status = StatusNeedsRepair
	}
	return h
}
