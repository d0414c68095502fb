package watcher

import (
	"sort"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new session file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing session file was modified.
	OpModify
	// OpDelete indicates a session file was deleted.
	OpDelete
	// OpRename indicates a session file was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change to a session file.
type FileEvent struct {
	// Workspace is the ID the watched directory was registered under.
	Workspace string

	// Path is the absolute path of the session file.
	Path string

	// SessionID is the file name without its extension.
	SessionID string

	Operation Operation
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	// Default: 2s
	DebounceWindow time.Duration

	// PollInterval is the interval for directories fsnotify cannot watch.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 16
	EventBufferSize int

	// ForcePolling disables fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  2 * time.Second,
		PollInterval:    5 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// Affected returns the sorted, distinct workspace IDs in a batch.
func Affected(batch []FileEvent) []string {
	seen := make(map[string]bool, len(batch))
	var ids []string
	for _, e := range batch {
		if !seen[e.Workspace] {
			seen[e.Workspace] = true
			ids = append(ids, e.Workspace)
		}
	}
	sort.Strings(ids)
	return ids
}
