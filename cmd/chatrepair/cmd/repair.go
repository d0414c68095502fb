package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/extract"
	"github.com/Aman-CERP/chatrepair/internal/output"
	"github.com/Aman-CERP/chatrepair/internal/repair"
	"github.com/Aman-CERP/chatrepair/internal/ui"
	"github.com/Aman-CERP/chatrepair/internal/workspace"
)

// repairOptions holds the repair flags. Zero values defer to the config.
type repairOptions struct {
	dryRun         bool
	yes            bool
	removeOrphans  bool
	recoverOrphans bool
	workers        int
	keepBackups    int
}

func addRepairFlags(cmd *cobra.Command, rp *repairOptions) {
	f := cmd.Flags()
	f.BoolVarP(&rp.dryRun, "dry-run", "n", false, "Show what would change without writing anything")
	f.BoolVarP(&rp.yes, "yes", "y", false, "Write without asking for confirmation")
	f.BoolVar(&rp.removeOrphans, "remove-orphans", false, "Drop index entries whose session file is gone")
	f.BoolVar(&rp.recoverOrphans, "recover-orphans", false, "Copy orphaned sessions back from other workspaces")
	f.IntVar(&rp.workers, "workers", 0, "Stores repaired in parallel (default from config)")
	f.IntVar(&rp.keepBackups, "keep-backups", -1, "Backups kept per store after a repair, 0 keeps all (default from config)")
}

func newRepairCmd(opts *rootOptions) *cobra.Command {
	rp := &repairOptions{}
	cmd := &cobra.Command{
		Use:   "repair [workspace-id]",
		Short: "Rebuild the chat session index of one or all workspaces",
		Long: `Rebuild the chat session index of every workspace, or of the one given.

For each workspace the session files are scanned, their titles and dates
extracted, and the result reconciled with the index in state.vscdb.
Sessions missing from the index are added. Index entries without a file
(orphans) are kept unless --remove-orphans is given.

Before anything is written the store is backed up next to itself as
state.vscdb.backup.<timestamp> and the copy is verified.

Exit status is 0 when every store succeeded, 2 when some failed and 1
when all failed or the run was aborted.`,
		Example: `  chatrepair repair --dry-run
  chatrepair repair 1a2b3c4d5e6f --yes
  chatrepair repair --recover-orphans --workers 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(cmd, opts, rp, args)
		},
	}
	addRepairFlags(cmd, rp)
	return cmd
}

// effective merges the flags over the config.
func (rp *repairOptions) effective(opts *rootOptions) repairOptions {
	cfg := opts.config().Repair
	eff := *rp
	eff.yes = rp.yes || cfg.AutoConfirm
	eff.removeOrphans = rp.removeOrphans || cfg.RemoveOrphans
	eff.recoverOrphans = rp.recoverOrphans || cfg.RecoverOrphans
	if eff.workers <= 0 {
		eff.workers = cfg.Workers
	}
	if eff.keepBackups < 0 {
		eff.keepBackups = cfg.KeepBackups
	}
	return eff
}

func runRepair(cmd *cobra.Command, opts *rootOptions, flags *repairOptions, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rp := flags.effective(opts)
	cfg := opts.config()
	stdout := cmd.OutOrStdout()
	out := output.New(stdout)

	if !rp.dryRun && !rp.yes && !opts.stdinIsTTY() {
		return crerrors.ValidationError("refusing to write without confirmation: stdin is not a terminal", nil).
			WithSuggestion("Re-run with --yes to confirm, or with --dry-run to preview")
	}

	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	all, selected, err := opts.workspaces(ctx, id)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		if opts.jsonOut {
			return ui.WriteJSON(stdout, ui.NewSummaryJSON(&repair.Summary{DryRun: rp.dryRun}))
		}
		out.Status(output.IconInfo, "No workspaces with chat sessions found")
		return nil
	}

	targets := make([]repair.Target, 0, len(selected))
	for _, ws := range selected {
		targets = append(targets, ws.Target())
	}

	ex, err := extract.New(cfg.ExtractOptions())
	if err != nil {
		return err
	}

	renderer := newRenderer(cmd, opts, cancel, "chatrepair")
	planner := repair.NewPlanner(ex, repair.Options{
		DryRun:        rp.dryRun,
		RemoveOrphans: rp.removeOrphans,
		KeepBackups:   rp.keepBackups,
		Store:         cfg.StoreOptions(),
	}, repair.WithObserver(renderer.Observe))

	runnerOpts := []repair.RunnerOption{repair.WithWorkers(rp.workers)}
	if !rp.yes {
		runnerOpts = append(runnerOpts, repair.WithConfirm(confirmPlans(cmd, opts, renderer)))
	}
	if rp.recoverOrphans {
		runnerOpts = append(runnerOpts, repair.WithRecoverer(workspace.NewRecoverer(all, cfg.StoreOptions())))
	}

	if err := renderer.Start(ctx, targets); err != nil {
		return err
	}
	sum := repair.NewRunner(planner, runnerOpts...).Run(ctx, targets)
	_ = renderer.Stop()

	if err := printSummary(stdout, opts, sum); err != nil {
		return err
	}
	if code := sum.ExitCode(); code != repair.ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}

// confirmPlans previews the pending writes and asks the user.
func confirmPlans(cmd *cobra.Command, opts *rootOptions, r ui.Renderer) repair.ConfirmFunc {
	return func(_ context.Context, pending []*repair.Plan) (bool, error) {
		r.Suspend()
		defer r.Resume()

		// The prompt goes to stderr so --json output stays parseable.
		w := cmd.ErrOrStderr()
		ui.NewReporter(w, opts.noColor).Plans(pending)
		return output.Confirm(w, cmd.InOrStdin(), fmt.Sprintf("Rewrite %d store(s)?", len(pending)))
	}
}

func printSummary(w io.Writer, opts *rootOptions, sum *repair.Summary) error {
	if opts.jsonOut {
		return ui.WriteJSON(w, ui.NewSummaryJSON(sum))
	}
	ui.NewReporter(w, opts.noColor).Summary(sum)
	return nil
}

// newRenderer picks the progress display. Progress goes to stderr; with
// --json it is always plain.
func newRenderer(cmd *cobra.Command, opts *rootOptions, interrupt func(), title string) ui.Renderer {
	return ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr(),
		ui.WithForcePlain(opts.noTUI || opts.jsonOut),
		ui.WithNoColor(opts.noColor),
		ui.WithTitle(title),
		ui.WithInterrupt(interrupt),
	))
}
