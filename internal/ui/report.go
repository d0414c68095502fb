package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/output"
	"github.com/Aman-CERP/chatrepair/internal/repair"
	"github.com/Aman-CERP/chatrepair/internal/workspace"
)

// maxListedIDs bounds how many session IDs a report prints per set.
const maxListedIDs = 10

// Reporter renders run summaries, plan previews and workspace lists.
type Reporter struct {
	w      *output.Writer
	styles Styles
}

// NewReporter creates a Reporter writing to out.
func NewReporter(out io.Writer, noColor bool) *Reporter {
	return &Reporter{w: output.New(out), styles: GetStyles(noColor)}
}

// Summary prints one block per store followed by the run totals.
func (r *Reporter) Summary(s *repair.Summary) {
	for _, rep := range s.Reports {
		r.store(rep)
		r.w.Newline()
	}

	t := s.Totals()
	header := "Summary"
	if s.DryRun {
		header = "Summary (dry run, nothing written)"
	}
	r.w.Line("%s", r.styles.Header.Render(header))
	in := r.w.Indented()
	in.KeyValue("Workspaces", len(s.Reports), 12)
	in.KeyValue("Repaired", s.Count(repair.OutcomeRepaired), 12)
	in.KeyValue("Unchanged", s.Count(repair.OutcomeUnchanged), 12)
	if s.DryRun {
		in.KeyValue("Would fix", s.Count(repair.OutcomeDryRun), 12)
	}
	if n := s.Count(repair.OutcomeSkipped); n > 0 {
		in.KeyValue("Skipped", n, 12)
	}
	if n := s.Count(repair.OutcomeFailed); n > 0 {
		in.KeyValue("Failed", r.styles.Error.Render(fmt.Sprint(n)), 12)
	}
	in.KeyValue("Sessions", fmt.Sprintf("%d added, %d orphaned, %d removed", t.Added, t.Orphans, t.Removed), 12)
	if s.Aborted {
		r.w.Warning("Aborted by user, no store was written")
	}
}

func (r *Reporter) store(rep *repair.StoreReport) {
	name := rep.Target.Name
	if name == "" {
		name = rep.Target.ID
	}
	r.w.Line("%s %s", r.styles.Header.Render(name), r.outcome(rep.Outcome))
	in := r.w.Indented()

	if rep.Err != nil {
		for _, line := range strings.Split(strings.TrimRight(crerrors.FormatForCLI(rep.Err), "\n"), "\n") {
			in.Line("%s", r.styles.Error.Render(line))
		}
	}
	if rep.Corrupt {
		in.Warning("stored index was unreadable and is rebuilt from the session files")
	}

	c := rep.Counts
	if rep.Result != nil {
		in.KeyValue("Entries", c.Total, 10)
		in.KeyValue("Added", c.Added, 10)
		in.KeyValue("Kept", c.Kept, 10)
		if c.Refreshed > 0 {
			in.KeyValue("Refreshed", c.Refreshed, 10)
		}
		if c.Orphans > 0 {
			verb := "retained"
			if rep.Result.RemoveOrphans {
				verb = "removed"
			}
			in.KeyValue("Orphans", fmt.Sprintf("%d %s", c.Orphans, verb), 10)
		}
		if len(rep.Result.ToAdd) > 0 {
			in.KeyValue("New", listIDs(rep.Result.ToAdd), 10)
		}
	}

	for _, rec := range rep.Recovered {
		from := rec.FromName
		if from == "" {
			from = rec.From
		}
		same := ""
		if rec.SameProject {
			same = " (same project)"
		}
		switch {
		case rec.Err != nil:
			in.Errorf("recover %s from %s: %v", output.ShortID(rec.ID), from, rec.Err)
		case rec.Copied:
			in.Statusf(output.IconRecover, "recovered %s from %s%s", output.ShortID(rec.ID), from, same)
		default:
			in.Statusf(output.IconRecover, "would recover %s from %s%s", output.ShortID(rec.ID), from, same)
		}
	}

	if rep.Backup != nil {
		in.Statusf(output.IconBackup, "backup %s (%s)", rep.Backup.Path, output.FormatBytes(rep.Backup.Size))
	}
	if len(rep.Pruned) > 0 {
		in.Line("pruned %d old backup(s)", len(rep.Pruned))
	}
	for _, w := range rep.Warnings {
		in.Warning(w.Error())
	}
}

func (r *Reporter) outcome(o repair.Outcome) string {
	switch o {
	case repair.OutcomeRepaired:
		return r.styles.Success.Render("repaired")
	case repair.OutcomeUnchanged:
		return r.styles.Label.Render("healthy")
	case repair.OutcomeDryRun:
		return r.styles.Accent.Render("needs repair (dry run)")
	case repair.OutcomeSkipped:
		return r.styles.Warning.Render("skipped")
	case repair.OutcomeFailed:
		return r.styles.Error.Render("failed")
	default:
		return string(o)
	}
}

// Plans previews the pending writes before the user confirms them.
func (r *Reporter) Plans(plans []*repair.Plan) {
	r.w.Line("%s", r.styles.Header.Render("The following stores will be rewritten:"))
	for _, pl := range plans {
		if !pl.Pending() {
			continue
		}
		rep := pl.Report
		c := rep.Counts
		orphans := "kept"
		if rep.Result != nil && rep.Result.RemoveOrphans {
			orphans = "removed"
		}
		r.w.Indented().Line("%s: +%d sessions, %d orphans %s, %d entries total",
			rep.Target.Name, c.Added, c.Orphans, orphans, c.Total)
	}
	r.w.Indented().Line("%s", r.styles.Dim.Render("A verified backup of each store is taken first."))
}

// ListRow is one workspace in list mode.
type ListRow struct {
	Workspace *workspace.Workspace
	Health    *workspace.Health
}

// List prints every workspace with its health.
func (r *Reporter) List(rows []ListRow) {
	if len(rows) == 0 {
		r.w.Status(output.IconInfo, "No workspaces with chat sessions found")
		return
	}
	healthy := 0
	for _, row := range rows {
		h := row.Health
		r.w.Line("%s %s", r.styles.Header.Render(row.Workspace.DisplayName()), r.status(h.Status))
		in := r.w.Indented()
		if loc := row.Workspace.Location(); loc != "" {
			in.KeyValue("Location", loc, 10)
		}
		in.KeyValue("On disk", h.OnDisk, 10)
		in.KeyValue("In index", h.InIndex, 10)
		if len(h.Missing) > 0 {
			in.KeyValue("Missing", fmt.Sprintf("%d %s", len(h.Missing), listIDs(h.Missing)), 10)
		}
		if len(h.Orphaned) > 0 {
			in.KeyValue("Orphaned", fmt.Sprintf("%d %s", len(h.Orphaned), listIDs(h.Orphaned)), 10)
		}
		if h.Err != nil {
			in.Error(h.Err.Error())
		}
		if h.Status == workspace.StatusHealthy {
			healthy++
		}
		r.w.Newline()
	}
	r.w.Line("%d workspace(s), %d healthy, %d need repair", len(rows), healthy, len(rows)-healthy)
}

func (r *Reporter) status(s workspace.Status) string {
	switch s {
	case workspace.StatusHealthy:
		return r.styles.Success.Render(string(s))
	case workspace.StatusNeedsRepair:
		return r.styles.Warning.Render(string(s))
	default:
		return r.styles.Error.Render(string(s))
	}
}

func listIDs(ids []string) string {
	short := make([]string, 0, maxListedIDs)
	for i, id := range ids {
		if i == maxListedIDs {
			short = append(short, fmt.Sprintf("and %d more", len(ids)-maxListedIDs))
			break
		}
		short = append(short, output.ShortID(id))
	}
	return "[" + strings.Join(short, ", ") + "]"
}

// SummaryJSON is the machine-readable form of a run.
type SummaryJSON struct {
	RunID    string      `json:"run_id"`
	DryRun   bool        `json:"dry_run"`
	Aborted  bool        `json:"aborted"`
	ExitCode int         `json:"exit_code"`
	Stores   []StoreJSON `json:"stores"`
}

// StoreJSON is one store in SummaryJSON.
type StoreJSON struct {
	Workspace  string         `json:"workspace"`
	Name       string         `json:"name"`
	StorePath  string         `json:"store_path"`
	Outcome    string         `json:"outcome"`
	State      string         `json:"state"`
	Added      []string       `json:"added"`
	Orphans    []string       `json:"orphans"`
	Refreshed  []string       `json:"refreshed,omitempty"`
	Total      int            `json:"total"`
	Corrupt    bool           `json:"corrupt_index,omitempty"`
	Backup     string         `json:"backup,omitempty"`
	Pruned     []string       `json:"pruned,omitempty"`
	Recovered  []RecoveryJSON `json:"recovered,omitempty"`
	Warnings   []any          `json:"warnings,omitempty"`
	Error      any            `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// RecoveryJSON is one orphan recovery in StoreJSON.
type RecoveryJSON struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	SameProject bool   `json:"same_project"`
	Copied      bool   `json:"copied"`
	Error       string `json:"error,omitempty"`
}

// NewSummaryJSON converts a summary.
func NewSummaryJSON(s *repair.Summary) SummaryJSON {
	out := SummaryJSON{
		RunID:    s.RunID,
		DryRun:   s.DryRun,
		Aborted:  s.Aborted,
		ExitCode: s.ExitCode(),
		Stores:   make([]StoreJSON, 0, len(s.Reports)),
	}
	for _, rep := range s.Reports {
		st := StoreJSON{
			Workspace:  rep.Target.ID,
			Name:       rep.Target.Name,
			StorePath:  rep.Target.StorePath,
			Outcome:    string(rep.Outcome),
			State:      rep.State.String(),
			Added:      []string{},
			Orphans:    []string{},
			Total:      rep.Counts.Total,
			Corrupt:    rep.Corrupt,
			Pruned:     rep.Pruned,
			DurationMS: rep.Duration.Milliseconds(),
			Error:      crerrors.ToJSON(rep.Err),
		}
		if rep.Result != nil {
			st.Added = append(st.Added, rep.Result.ToAdd...)
			st.Orphans = append(st.Orphans, rep.Result.ToRemove...)
			st.Refreshed = rep.Result.Refreshed
		}
		if rep.Backup != nil {
			st.Backup = rep.Backup.Path
		}
		for _, rec := range rep.Recovered {
			rj := RecoveryJSON{ID: rec.ID, From: rec.From, SameProject: rec.SameProject, Copied: rec.Copied}
			if rec.Err != nil {
				rj.Error = rec.Err.Error()
			}
			st.Recovered = append(st.Recovered, rj)
		}
		for _, w := range rep.Warnings {
			st.Warnings = append(st.Warnings, crerrors.ToJSON(w))
		}
		out.Stores = append(out.Stores, st)
	}
	return out
}

// WorkspaceJSON is one workspace in list mode.
type WorkspaceJSON struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Location string   `json:"location,omitempty"`
	OnDisk   int      `json:"on_disk"`
	InIndex  int      `json:"in_index"`
	Missing  []string `json:"missing"`
	Orphaned []string `json:"orphaned"`
	Status   string   `json:"status"`
	Error    any      `json:"error,omitempty"`
}

// NewListJSON converts list rows.
func NewListJSON(rows []ListRow) []WorkspaceJSON {
	out := make([]WorkspaceJSON, 0, len(rows))
	for _, row := range rows {
		ws, h := row.Workspace, row.Health
		out = append(out, WorkspaceJSON{
			ID:       ws.ID,
			Name:     workspace.ProjectName(ws.Location()),
			Kind:     ws.Kind().String(),
			Location: ws.Location(),
			OnDisk:   h.OnDisk,
			InIndex:  h.InIndex,
			Missing:  nonNil(h.Missing),
			Orphaned: nonNil(h.Orphaned),
			Status:   string(h.Status),
			Error:    crerrors.ToJSON(h.Err),
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
