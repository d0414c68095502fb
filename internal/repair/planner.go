package repair

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/chatrepair/internal/backup"
	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/extract"
	"github.com/Aman-CERP/chatrepair/internal/index"
	"github.com/Aman-CERP/chatrepair/internal/scanner"
	"github.com/Aman-CERP/chatrepair/internal/store"
)

// Options configures a Planner.
type Options struct {
	DryRun        bool
	RemoveOrphans bool
	// KeepBackups prunes older backups after a successful write; 0 keeps all.
	KeepBackups int
	Store       store.Options
}

// Observer is notified of every state transition.
type Observer func(t Target, s State)

// OpenFunc opens a store for the pipeline.
type OpenFunc func(ctx context.Context, path string, readOnly bool, opts store.Options) (store.IndexStore, error)

// OpenSQLite opens a SQLite state database.
func OpenSQLite(ctx context.Context, path string, readOnly bool, opts store.Options) (store.IndexStore, error) {
	if readOnly {
		return store.OpenReadOnly(ctx, path, opts)
	}
	return store.OpenWrite(ctx, path, opts)
}

// Planner runs the read-only stages of the pipeline.
type Planner struct {
	scanner   *scanner.Scanner
	extractor *extract.Extractor
	backups   *backup.Manager
	open      OpenFunc
	observer  Observer
	opts      Options
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithObserver sets the state observer.
func WithObserver(o Observer) PlannerOption {
	return func(p *Planner) { p.observer = o }
}

// WithOpener replaces the store opener.
func WithOpener(open OpenFunc) PlannerOption {
	return func(p *Planner) { p.open = open }
}

// WithBackupManager replaces the backup manager.
func WithBackupManager(m *backup.Manager) PlannerOption {
	return func(p *Planner) { p.backups = m }
}

// WithScanner replaces the session scanner.
func WithScanner(s *scanner.Scanner) PlannerOption {
	return func(p *Planner) { p.scanner = s }
}

// NewPlanner creates a Planner.
func NewPlanner(ex *extract.Extractor, opts Options, popts ...PlannerOption) *Planner {
	p := &Planner{
		scanner:   scanner.New(),
		extractor: ex,
		backups:   backup.NewManager(),
		open:      OpenSQLite,
		opts:      opts,
	}
	for _, o := range popts {
		o(p)
	}
	return p
}

// DryRun reports whether the planner never writes.
func (p *Planner) DryRun() bool {
	return p.opts.DryRun
}

// Plan is a reconciled store awaiting Apply.
type Plan struct {
	Report *StoreReport

	planner *Planner
	store   store.IndexStore
	prior   *index.Document
	scanned []extract.Metadata
	opts    index.Options
	started time.Time
}

// Pending reports whether Apply would write.
func (pl *Plan) Pending() bool {
	return pl.store != nil && pl.Report.State == StateReconciling
}

// Plan runs Scanning, Extracting and Reconciling for t. It never fails:
// store-level errors are recorded in the report with state Failed.
// A pending plan holds the store open until Apply or Close.
func (p *Planner) Plan(ctx context.Context, t Target) *Plan {
	pl := &Plan{
		planner: p,
		started: time.Now(),
		Report:  &StoreReport{Target: t, State: StateIdle, History: []State{StateIdle}},
	}

	pl.transition(StateScanning)
	results, err := p.scanner.Scan(ctx, t.SessionsDir)
	if err != nil {
		return pl.fail(err)
	}
	files, scanErrs := scanner.Collect(results)
	if len(scanErrs) > 0 {
		// A partial listing would make real sessions look orphaned.
		return pl.fail(scanErrs[0])
	}
	if err := ctx.Err(); err != nil {
		return pl.fail(crerrors.New(crerrors.ErrCodeCanceled, "repair canceled", err))
	}

	pl.transition(StateExtracting)
	mds, parseErrs := p.extractor.ExtractAll(files)
	pl.Report.Warnings = append(pl.Report.Warnings, parseErrs...)
	if err := ctx.Err(); err != nil {
		return pl.fail(crerrors.New(crerrors.ErrCodeCanceled, "repair canceled", err))
	}

	pl.transition(StateReconciling)
	s, err := p.open(ctx, t.StorePath, p.opts.DryRun, p.opts.Store)
	if err != nil {
		return pl.fail(err)
	}
	prior, err := s.ReadIndex(ctx)
	if err != nil {
		_ = s.Close()
		return pl.fail(err)
	}
	pl.Report.Corrupt = prior.Corrupt

	pl.opts = index.Options{
		RemoveOrphans: p.opts.RemoveOrphans,
		Unreadable:    unreadableIDs(files, mds),
	}
	res := index.Reconcile(prior.Entries, mds, pl.opts)
	pl.setResult(res)

	switch {
	case !res.NeedsWrite(prior):
		_ = s.Close()
		pl.finish(StateDone, OutcomeUnchanged)
	case p.opts.DryRun:
		_ = s.Close()
		pl.finish(StateDryRunReport, OutcomeDryRun)
	default:
		pl.store = s
		pl.prior = prior
		pl.scanned = mds
	}
	return pl
}

// Apply backs up the store and writes the planned index. It is a no-op
// for plans that are not pending.
func (pl *Plan) Apply(ctx context.Context) *StoreReport {
	if !pl.Pending() {
		return pl.Report
	}
	p := pl.planner
	defer pl.Close()

	tx, err := pl.store.Begin(ctx)
	if err != nil {
		pl.fail(err)
		return pl.Report
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Warn("rollback failed",
					slog.String("store", pl.Report.Target.StorePath),
					slog.String("error", rbErr.Error()))
			}
		}
	}()

	// The host may have written between planning and now.
	current, err := tx.ReadIndex(ctx)
	if err != nil {
		pl.fail(err)
		return pl.Report
	}
	res := pl.Report.Result
	prior := pl.prior
	if !sameRaw(current.Raw, prior.Raw) {
		slog.Info("index changed since planning; reconciling again",
			slog.String("workspace", pl.Report.Target.ID))
		res = index.Reconcile(current.Entries, pl.scanned, pl.opts)
		prior = current
		pl.setResult(res)
		pl.Report.Corrupt = current.Corrupt
		if !res.NeedsWrite(prior) {
			pl.finish(StateDone, OutcomeUnchanged)
			return pl.Report
		}
	}

	pl.transition(StateBackingUp)
	b, err := p.backups.Create(ctx, pl.Report.Target.StorePath)
	if err != nil {
		pl.fail(err)
		return pl.Report
	}
	pl.Report.Backup = b

	pl.transition(StateWriting)
	if err := tx.ReplaceIndex(ctx, res.Document(prior)); err != nil {
		pl.fail(err)
		return pl.Report
	}
	if err := tx.Commit(); err != nil {
		committed = true // Commit already rolled back.
		pl.fail(err)
		return pl.Report
	}
	committed = true

	if p.opts.KeepBackups > 0 {
		pruned, err := p.backups.Prune(pl.Report.Target.StorePath, p.opts.KeepBackups)
		if err != nil {
			slog.Warn("backup pruning failed",
				slog.String("store", pl.Report.Target.StorePath),
				slog.String("error", err.Error()))
		}
		pl.Report.Pruned = pruned
	}

	pl.finish(StateDone, OutcomeRepaired)
	return pl.Report
}

// Close releases the store held by a pending plan.
func (pl *Plan) Close() {
	if pl.store == nil {
		return
	}
	if err := pl.store.Close(); err != nil {
		slog.Warn("failed to close store",
			slog.String("store", pl.Report.Target.StorePath),
			slog.String("error", err.Error()))
	}
	pl.store = nil
}

// Skip marks a pending plan as not applied and releases its store.
func (pl *Plan) Skip() {
	if !pl.Pending() {
		return
	}
	pl.Close()
	pl.Report.Outcome = OutcomeSkipped
	pl.Report.Duration = time.Since(pl.started)
}

func (pl *Plan) setResult(res *index.Result) {
	pl.Report.Result = res
	pl.Report.Counts = res.Counts()
	pl.Report.Warnings = dropConflicts(pl.Report.Warnings)
	for _, c := range res.Conflicts {
		pl.Report.Warnings = append(pl.Report.Warnings, crerrors.ConflictWarning(c.ID, c.Kept, c.Discarded))
	}
}

// unreadableIDs returns the IDs of scanned files that yielded no metadata.
func unreadableIDs(files []scanner.RecordFile, mds []extract.Metadata) []string {
	parsed := make(map[string]struct{}, len(mds))
	for _, md := range mds {
		parsed[md.ID] = struct{}{}
	}
	var out []string
	for _, f := range files {
		if _, ok := parsed[f.ID]; !ok {
			out = append(out, f.ID)
		}
	}
	return out
}

func dropConflicts(errs []error) []error {
	out := errs[:0]
	for _, err := range errs {
		if !crerrors.HasCode(err, crerrors.ErrCodeDuplicateRecord) {
			out = append(out, err)
		}
	}
	return out
}

func (pl *Plan) transition(to State) {
	from := pl.Report.State
	if !canTransition(from, to) {
		// Programming error; record it rather than corrupting the report.
		slog.Error("illegal state transition",
			slog.String("workspace", pl.Report.Target.ID),
			slog.String("error", (&transitionError{from, to}).Error()))
	}
	pl.Report.State = to
	pl.Report.History = append(pl.Report.History, to)
	slog.Debug("repair state",
		slog.String("workspace", pl.Report.Target.ID),
		slog.String("from", from.String()),
		slog.String("state", to.String()))
	if pl.planner.observer != nil {
		pl.planner.observer(pl.Report.Target, to)
	}
}

func (pl *Plan) finish(to State, outcome Outcome) {
	pl.transition(to)
	pl.Report.Outcome = outcome
	pl.Report.Duration = time.Since(pl.started)
	slog.Info("repair finished",
		slog.String("workspace", pl.Report.Target.ID),
		slog.String("outcome", string(outcome)),
		slog.Int("added", pl.Report.Counts.Added),
		slog.Int("orphans", pl.Report.Counts.Orphans),
		slog.Int("removed", pl.Report.Counts.Removed),
		slog.Int("conflicts", pl.Report.Counts.Conflicts),
		slog.Int("warnings", len(pl.Report.Warnings)))
}

func (pl *Plan) fail(err error) *Plan {
	pl.Report.Err = err
	pl.finish(StateFailed, OutcomeFailed)
	slog.Error("repair failed",
		slog.String("workspace", pl.Report.Target.ID),
		slog.String("code", crerrors.GetCode(err)),
		slog.String("error", err.Error()))
	return pl
}

func sameRaw(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}
