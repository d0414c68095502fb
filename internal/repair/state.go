// Package repair runs the per-workspace repair pipeline: scan session
// files, extract metadata, reconcile against the stored index, then
// either report (dry run) or back up and write the corrected index.
package repair

import "fmt"

// State is a pipeline stage for one store.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateExtracting
	StateReconciling
	StateDryRunReport
	StateBackingUp
	StateWriting
	StateDone
	StateFailed
)

// String returns the state name used in logs and reports.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateExtracting:
		return "extracting"
	case StateReconciling:
		return "reconciling"
	case StateDryRunReport:
		return "dry_run_report"
	case StateBackingUp:
		return "backing_up"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateDryRunReport
}

// transitions lists the legal next states. Reconciling goes straight to
// Done when the stored index is already correct.
var transitions = map[State][]State{
	StateIdle:        {StateScanning},
	StateScanning:    {StateExtracting, StateFailed},
	StateExtracting:  {StateReconciling, StateFailed},
	StateReconciling: {StateDryRunReport, StateBackingUp, StateDone, StateFailed},
	StateBackingUp:   {StateWriting, StateFailed},
	StateWriting:     {StateDone, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("illegal repair transition %s -> %s", e.from, e.to)
}
