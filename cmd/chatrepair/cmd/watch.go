package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatrepair/internal/extract"
	"github.com/Aman-CERP/chatrepair/internal/output"
	"github.com/Aman-CERP/chatrepair/internal/repair"
	"github.com/Aman-CERP/chatrepair/internal/watcher"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		debounce     time.Duration
		forcePolling bool
	)

	cmd := &cobra.Command{
		Use:   "watch [workspace-id]",
		Short: "Re-check workspaces whenever their chat sessions change",
		Long: `Watch the chatSessions directories and run a dry-run check of each
workspace whose sessions change. Nothing is written; run 'chatrepair repair'
once VS Code is closed to apply the reported fixes.

Stop with Ctrl+C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args, debounce, forcePolling)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before a check (default from config)")
	cmd.Flags().BoolVar(&forcePolling, "poll", false, "Poll directories instead of using file system events")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *rootOptions, args []string, debounce time.Duration, forcePolling bool) error {
	ctx := cmd.Context()
	cfg := opts.config()
	out := output.New(cmd.OutOrStdout())

	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	_, selected, err := opts.workspaces(ctx, id)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		out.Status(output.IconInfo, "No workspaces with chat sessions found")
		return nil
	}

	if debounce <= 0 {
		debounce = cfg.DebounceDuration()
	}
	w := watcher.New(watcher.Options{DebounceWindow: debounce, ForcePolling: forcePolling})
	defer func() { _ = w.Stop() }()

	targets := make(map[string]repair.Target, len(selected))
	for _, ws := range selected {
		targets[ws.ID] = ws.Target()
		if err := w.Add(ws.ID, ws.SessionsDir()); err != nil {
			return err
		}
	}

	// One extractor for the whole session so unchanged files are not
	// parsed again on every check.
	ex, err := extract.New(cfg.ExtractOptions())
	if err != nil {
		return err
	}
	planner := repair.NewPlanner(ex, repair.Options{DryRun: true, Store: cfg.StoreOptions()})
	runner := repair.NewRunner(planner, repair.WithWorkers(cfg.Repair.Workers))

	check := func(ids []string) error {
		batch := make([]repair.Target, 0, len(ids))
		for _, id := range ids {
			if t, ok := targets[id]; ok {
				batch = append(batch, t)
			}
		}
		if len(batch) == 0 {
			return nil
		}
		sum := runner.Run(ctx, batch)
		slog.Info("watch check finished",
			slog.String("run_id", sum.RunID),
			slog.Int("workspaces", len(batch)),
			slog.Int("need_repair", sum.Count(repair.OutcomeDryRun)))
		return printSummary(cmd.OutOrStdout(), opts, sum)
	}

	initial := make([]string, 0, len(targets))
	for _, ws := range selected {
		initial = append(initial, ws.ID)
	}
	if err := check(initial); err != nil {
		return err
	}

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Start(ctx) }()
	if !opts.jsonOut {
		out.Newline()
		out.Statusf(output.IconInfo, "Watching %d workspace(s) using %s (Ctrl+C to stop)", len(targets), w.Mode())
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watchErr:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
			out.Warning(fmt.Sprintf("watcher: %v", err))
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			ids := watcher.Affected(batch)
			slog.Debug("sessions changed",
				slog.Int("events", len(batch)),
				slog.Any("workspaces", ids))
			if !opts.jsonOut {
				out.Newline()
				out.Statusf(output.IconInfo, "%s: %d session file change(s)", time.Now().Format("15:04:05"), len(batch))
			}
			if err := check(ids); err != nil {
				return err
			}
		}
	}
}
