package repair

import (
	"time"

	"github.com/Aman-CERP/chatrepair/internal/backup"
	"github.com/Aman-CERP/chatrepair/internal/index"
)

// Target is one store to repair, supplied by workspace discovery.
type Target struct {
	ID          string // workspace ID
	Name        string // display name
	SessionsDir string
	StorePath   string
}

// Recovery is one orphan session copied, or to be copied, from another
// workspace.
type Recovery struct {
	ID          string
	From        string // source workspace ID
	FromName    string
	SameProject bool
	Copied      bool
	Err         error
}

// Outcome classifies how a store's run ended.
type Outcome string

const (
	OutcomeRepaired  Outcome = "repaired"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDryRun    Outcome = "dry_run"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// StoreReport is everything known about one store's run.
type StoreReport struct {
	Target    Target
	State     State
	History   []State
	Outcome   Outcome
	Counts    index.Counts
	Result    *index.Result
	Warnings  []error // parse errors and duplicate conflicts
	Err       error   // the store-level failure, if any
	Backup    *backup.Backup
	Pruned    []string
	Recovered []Recovery
	Corrupt   bool // the stored index could not be decoded
	Duration  time.Duration
}

// Failed reports whether the store's run failed.
func (r *StoreReport) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// Summary aggregates the reports of one run.
type Summary struct {
	RunID   string
	DryRun  bool
	Aborted bool
	Reports []*StoreReport
}

// Count returns the number of reports with the given outcome.
func (s *Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Reports {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Totals sums the per-store counts.
func (s *Summary) Totals() index.Counts {
	var t index.Counts
	for _, r := range s.Reports {
		t.Added += r.Counts.Added
		t.Orphans += r.Counts.Orphans
		t.Removed += r.Counts.Removed
		t.Kept += r.Counts.Kept
		t.Refreshed += r.Counts.Refreshed
		t.Conflicts += r.Counts.Conflicts
		t.Total += r.Counts.Total
	}
	return t
}

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPartial = 2
)

// ExitCode is 0 when every store succeeded or needed nothing, 2 when some
// but not all stores failed, and 1 when every store failed or the user
// aborted.
func (s *Summary) ExitCode() int {
	if s.Aborted {
		return ExitFailure
	}
	failed := s.Count(OutcomeFailed)
	switch {
	case failed == 0:
		return ExitOK
	case failed == len(s.Reports):
		return ExitFailure
	default:
		return ExitPartial
	}
}
