package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{"create", OpCreate, "CREATE"},
		{"modify", OpModify, "MODIFY"},
		{"delete", OpDelete, "DELETE"},
		{"rename", OpRename, "RENAME"},
		{"unknown", Operation(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want Options
	}{
		{
			name: "empty options get defaults",
			opts: Options{},
			want: DefaultOptions(),
		},
		{
			name: "partial options keep custom values",
			opts: Options{DebounceWindow: 500 * time.Millisecond},
			want: Options{
				DebounceWindow:  500 * time.Millisecond,
				PollInterval:    5 * time.Second,
				EventBufferSize: 16,
			},
		},
		{
			name: "negative values are replaced",
			opts: Options{DebounceWindow: -1, PollInterval: -1, EventBufferSize: -1, ForcePolling: true},
			want: Options{
				DebounceWindow:  2 * time.Second,
				PollInterval:    5 * time.Second,
				EventBufferSize: 16,
				ForcePolling:    true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.WithDefaults())
		})
	}
}

func TestAffected_DistinctSorted(t *testing.T) {
	// Given: a batch touching two workspaces
	batch := []FileEvent{
		{Workspace: "ws-b", Path: "/b/1.json"},
		{Workspace: "ws-a", Path: "/a/1.json"},
		{Workspace: "ws-b", Path: "/b/2.json"},
	}

	// When/Then: each workspace is listed once, sorted
	assert.Equal(t, []string{"ws-a", "ws-b"}, Affected(batch))
	assert.Empty(t, Affected(nil))
}
