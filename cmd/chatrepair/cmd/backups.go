package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatrepair/internal/backup"
	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/output"
	"github.com/Aman-CERP/chatrepair/internal/ui"
)

func newBackupsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups [workspace-id]",
		Short: "List store backups",
		Long: `List the state.vscdb backups taken before each repair, newest first.
Use 'chatrepair backups prune' to delete old ones.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupsList(cmd, opts, args)
		},
	}
	cmd.AddCommand(newBackupsPruneCmd(opts))
	return cmd
}

func newBackupsPruneCmd(opts *rootOptions) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune [workspace-id]",
		Short: "Delete all but the newest backups of each store",
		Example: `  chatrepair backups prune --keep 3
  chatrepair backups prune 1a2b3c4d5e6f --keep 1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupsPrune(cmd, opts, args, keep)
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 3, "Backups kept per store")
	return cmd
}

// backupJSON is one backup in --json output.
type backupJSON struct {
	Workspace  string    `json:"workspace"`
	Path       string    `json:"path"`
	CapturedAt time.Time `json:"captured_at"`
	Size       int64     `json:"size"`
}

func runBackupsList(cmd *cobra.Command, opts *rootOptions, args []string) error {
	ctx := cmd.Context()
	_, selected, err := opts.workspaces(ctx, firstArg(args))
	if err != nil {
		return err
	}

	mgr := backup.NewManager()
	out := output.New(cmd.OutOrStdout())
	all := []backupJSON{}
	for _, ws := range selected {
		list, err := mgr.List(ws.StorePath())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			continue
		}
		if !opts.jsonOut {
			out.Line("%s", ws.DisplayName())
		}
		for _, b := range list {
			all = append(all, backupJSON{Workspace: ws.ID, Path: b.Path, CapturedAt: b.CapturedAt, Size: b.Size})
			if !opts.jsonOut {
				out.Indented().Line("%s  %8s  %s", b.CapturedAt.Local().Format("2006-01-02 15:04:05"),
					output.FormatBytes(b.Size), b.Path)
			}
		}
	}

	if opts.jsonOut {
		return ui.WriteJSON(cmd.OutOrStdout(), all)
	}
	if len(all) == 0 {
		out.Status(output.IconInfo, "No backups found")
	}
	return nil
}

func runBackupsPrune(cmd *cobra.Command, opts *rootOptions, args []string, keep int) error {
	if keep < 1 {
		return crerrors.ValidationError("--keep must be at least 1", nil)
	}
	ctx := cmd.Context()
	_, selected, err := opts.workspaces(ctx, firstArg(args))
	if err != nil {
		return err
	}

	mgr := backup.NewManager()
	out := output.New(cmd.OutOrStdout())
	removed := []string{}
	for _, ws := range selected {
		pruned, err := mgr.Prune(ws.StorePath(), keep)
		removed = append(removed, pruned...)
		if err != nil {
			return err
		}
	}

	if opts.jsonOut {
		return ui.WriteJSON(cmd.OutOrStdout(), map[string]any{"removed": removed})
	}
	for _, p := range removed {
		out.Line("removed %s", p)
	}
	out.Successf("Pruned %d backup(s)", len(removed))
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
