package ui

import (
	"sync"
	"time"

	"github.com/Aman-CERP/chatrepair/internal/repair"
)

// Tracker records the latest state of every target. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	order   []string
	rows    map[string]*Row
	started time.Time
}

// Row is one target's progress.
type Row struct {
	Target  repair.Target
	State   repair.State
	Since   time.Time
	Elapsed time.Duration // set once the state is final
}

// Snapshot is a consistent copy of the tracker.
type Snapshot struct {
	Rows     []Row
	Finished int
	Failed   int
	Elapsed  time.Duration
}

// Progress returns the finished fraction in [0, 1].
func (s Snapshot) Progress() float64 {
	if len(s.Rows) == 0 {
		return 0
	}
	return float64(s.Finished) / float64(len(s.Rows))
}

// NewTracker creates a tracker for targets in display order.
func NewTracker(targets []repair.Target) *Tracker {
	now := time.Now()
	t := &Tracker{rows: make(map[string]*Row, len(targets)), started: now}
	for _, target := range targets {
		t.order = append(t.order, target.ID)
		t.rows[target.ID] = &Row{Target: target, State: repair.StateIdle, Since: now}
	}
	return t
}

// Set records a transition. Unknown targets are appended.
func (t *Tracker) Set(target repair.Target, s repair.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.rows[target.ID]
	if !ok {
		row = &Row{Target: target}
		t.rows[target.ID] = row
		t.order = append(t.order, target.ID)
	}
	now := time.Now()
	row.State = s
	row.Since = now
	if finished(s) {
		row.Elapsed = now.Sub(t.started)
	}
}

// Snapshot returns the current rows in display order.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{Rows: make([]Row, 0, len(t.order)), Elapsed: time.Since(t.started)}
	for _, id := range t.order {
		row := *t.rows[id]
		snap.Rows = append(snap.Rows, row)
		if finished(row.State) {
			snap.Finished++
		}
		if row.State == repair.StateFailed {
			snap.Failed++
		}
	}
	return snap
}

func finished(s repair.State) bool {
	return s.Terminal()
}
