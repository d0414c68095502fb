package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/chatrepair/internal/scanner"
)

// PollingWatcher detects session file changes by listing directories on
// an interval. Used for directories fsnotify cannot watch, such as network
// mounts or directories that do not exist yet.
type PollingWatcher struct {
	interval time.Duration
	emit     func(FileEvent)

	mu   sync.Mutex
	dirs map[string]*polledDir
}

type polledDir struct {
	workspace string
	files     map[string]fileSnapshot
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher that reports changes to emit.
func NewPollingWatcher(interval time.Duration, emit func(FileEvent)) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		emit:     emit,
		dirs:     make(map[string]*polledDir),
	}
}

// Add records the current contents of dir as the baseline. A missing
// directory is an empty baseline.
func (p *PollingWatcher) Add(workspace, dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirs[dir] = &polledDir{workspace: workspace, files: snapshotDir(dir)}
}

// Len returns the number of polled directories.
func (p *PollingWatcher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dirs)
}

// Run polls until ctx is done or stop is closed.
func (p *PollingWatcher) Run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll compares every directory with its last snapshot and emits the
// differences.
func (p *PollingWatcher) Poll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for dir, pd := range p.dirs {
		current := snapshotDir(dir)
		for name, snap := range current {
			prev, existed := pd.files[name]
			switch {
			case !existed:
				p.emit(newEvent(pd.workspace, dir, name, OpCreate, now))
			case prev != snap:
				p.emit(newEvent(pd.workspace, dir, name, OpModify, now))
			}
		}
		for name := range pd.files {
			if _, ok := current[name]; !ok {
				p.emit(newEvent(pd.workspace, dir, name, OpDelete, now))
			}
		}
		pd.files = current
	}
}

func snapshotDir(dir string) map[string]fileSnapshot {
	files := make(map[string]fileSnapshot)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return files
	}
	for _, entry := range entries {
		if entry.IsDir() || !scanner.IsSessionFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files[entry.Name()] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return files
}

func newEvent(workspace, dir, name string, op Operation, at time.Time) FileEvent {
	return FileEvent{
		Workspace: workspace,
		Path:      filepath.Join(dir, name),
		SessionID: scanner.IDFromName(name),
		Operation: op,
		Timestamp: at,
	}
}
