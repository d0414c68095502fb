package ui

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Aman-CERP/chatrepair/internal/repair"
)

// PlainRenderer prints one line per state transition (for CI/pipes).
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	tracker *Tracker
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(_ context.Context, targets []repair.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker = NewTracker(targets)
	return nil
}

// Observe implements Renderer. Idle transitions are not printed.
func (r *PlainRenderer) Observe(t repair.Target, s repair.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tracker != nil {
		r.tracker.Set(t, s)
	}
	if s == repair.StateIdle {
		return
	}
	name := t.Name
	if name == "" {
		name = t.ID
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %s\n", Label(s), name)
}

// Suspend implements Renderer.
func (r *PlainRenderer) Suspend() {}

// Resume implements Renderer.
func (r *PlainRenderer) Resume() {}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
