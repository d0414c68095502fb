package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/chatrepair/internal/scanner"
)

// SessionWatcher watches the sessions directories of several workspaces.
type SessionWatcher struct {
	opts      Options
	fsWatcher *fsnotify.Watcher
	poller    *PollingWatcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}

	mu      sync.RWMutex
	dirs    map[string]string // directory -> workspace ID
	stopped bool
	dropped atomic.Uint64
}

// New creates a SessionWatcher. If fsnotify is unavailable every
// directory is polled.
func New(opts Options) *SessionWatcher {
	opts = opts.WithDefaults()
	w := &SessionWatcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		dirs:      make(map[string]string),
	}
	w.poller = NewPollingWatcher(opts.PollInterval, w.debouncer.Add)

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("fsnotify unavailable, polling instead", slog.String("error", err.Error()))
		} else {
			w.fsWatcher = fsw
		}
	}
	return w
}

// Add watches dir on behalf of workspace. Directories fsnotify refuses
// are polled.
func (w *SessionWatcher) Add(workspace, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return fmt.Errorf("watcher stopped")
	}
	w.dirs[abs] = workspace

	if w.fsWatcher != nil {
		err := w.fsWatcher.Add(abs)
		if err == nil {
			return nil
		}
		slog.Debug("polling sessions directory",
			slog.String("workspace", workspace),
			slog.String("dir", abs),
			slog.String("reason", err.Error()))
	}
	w.poller.Add(workspace, abs)
	return nil
}

// Start forwards events until ctx is done or Stop is called. It blocks.
func (w *SessionWatcher) Start(ctx context.Context) error {
	go w.forward(ctx)
	go w.poller.Run(ctx, w.stopCh)

	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	if w.fsWatcher != nil {
		fsEvents = w.fsWatcher.Events
		fsErrors = w.fsWatcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-fsEvents:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fsErrors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handle converts an fsnotify event for a session file.
func (w *SessionWatcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !scanner.IsSessionFile(name) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	dir := filepath.Dir(event.Name)
	w.mu.RLock()
	workspace, ok := w.dirs[dir]
	w.mu.RUnlock()
	if !ok {
		return
	}
	w.debouncer.Add(newEvent(workspace, dir, name, op, time.Now()))
}

func (w *SessionWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emitEvents(batch)
		}
	}
}

func (w *SessionWatcher) emitEvents(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped || len(batch) == 0 {
		return
	}

	select {
	case w.events <- batch:
	default:
		count := w.dropped.Add(1)
		slog.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", count))
	}
}

func (w *SessionWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops watching and closes the channels. Safe to call multiple times.
func (w *SessionWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (w *SessionWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *SessionWatcher) Errors() <-chan error {
	return w.errors
}

// Mode reports how directories are watched: "fsnotify", "polling" or
// "mixed".
func (w *SessionWatcher) Mode() string {
	w.mu.RLock()
	total := len(w.dirs)
	w.mu.RUnlock()
	polled := w.poller.Len()

	switch {
	case w.fsWatcher == nil || (total > 0 && polled == total):
		return "polling"
	case polled == 0:
		return "fsnotify"
	default:
		return "mixed"
	}
}

// DroppedBatches returns the number of batches dropped because the
// consumer fell behind.
func (w *SessionWatcher) DroppedBatches() uint64 {
	return w.dropped.Load()
}
