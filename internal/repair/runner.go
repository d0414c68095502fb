package repair

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ConfirmFunc is asked once, after planning, whether to write the pending
// plans. Returning false aborts the run without writing.
type ConfirmFunc func(ctx context.Context, pending []*Plan) (bool, error)

// Recoverer copies orphaned sessions back from other workspaces before a
// target is planned. In a dry run it only reports what it would copy.
type Recoverer interface {
	Recover(ctx context.Context, t Target, dryRun bool) []Recovery
}

// Runner repairs many stores, each isolated from the others' failures.
type Runner struct {
	planner   *Planner
	workers   int
	confirm   ConfirmFunc
	recoverer Recoverer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers sets how many stores are processed at once.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithConfirm sets the confirmation callback. Without one, pending plans
// are applied without asking.
func WithConfirm(fn ConfirmFunc) RunnerOption {
	return func(r *Runner) { r.confirm = fn }
}

// WithRecoverer enables orphan recovery.
func WithRecoverer(rec Recoverer) RunnerOption {
	return func(r *Runner) { r.recoverer = rec }
}

// NewRunner creates a Runner.
func NewRunner(p *Planner, opts ...RunnerOption) *Runner {
	r := &Runner{planner: p, workers: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run plans every target, asks for confirmation if anything would be
// written, then applies. Reports are returned in target order.
func (r *Runner) Run(ctx context.Context, targets []Target) *Summary {
	sum := &Summary{
		RunID:   uuid.NewString(),
		DryRun:  r.planner.DryRun(),
		Reports: make([]*StoreReport, len(targets)),
	}
	log := slog.With(slog.String("run_id", sum.RunID))
	log.Info("repair run started",
		slog.Int("targets", len(targets)),
		slog.Bool("dry_run", sum.DryRun),
		slog.Int("workers", r.workers))

	plans := make([]*Plan, len(targets))
	r.each(ctx, len(targets), func(i int) {
		var recovered []Recovery
		if r.recoverer != nil {
			recovered = r.recoverer.Recover(ctx, targets[i], sum.DryRun)
		}
		plans[i] = r.planner.Plan(ctx, targets[i])
		plans[i].Report.Recovered = recovered
	})

	var pending []*Plan
	for _, pl := range plans {
		if pl.Pending() {
			pending = append(pending, pl)
		}
	}

	if len(pending) > 0 && r.confirm != nil {
		ok, err := r.confirm(ctx, pending)
		if err != nil || !ok {
			if err != nil {
				log.Warn("confirmation failed", slog.String("error", err.Error()))
			}
			for _, pl := range pending {
				pl.Skip()
			}
			sum.Aborted = true
			for i, pl := range plans {
				sum.Reports[i] = pl.Report
			}
			log.Info("repair run aborted by user")
			return sum
		}
	}

	r.each(ctx, len(plans), func(i int) {
		sum.Reports[i] = plans[i].Apply(ctx)
	})

	log.Info("repair run finished",
		slog.Int("repaired", sum.Count(OutcomeRepaired)),
		slog.Int("unchanged", sum.Count(OutcomeUnchanged)),
		slog.Int("failed", sum.Count(OutcomeFailed)),
		slog.Int("exit_code", sum.ExitCode()))
	return sum
}

// each runs fn for 0..n-1 with bounded parallelism. fn never returns an
// error to the group, so one store cannot cancel another.
func (r *Runner) each(ctx context.Context, n int, fn func(i int)) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
