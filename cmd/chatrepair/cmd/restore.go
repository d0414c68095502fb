package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatrepair/internal/backup"
	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/output"
	"github.com/Aman-CERP/chatrepair/internal/store"
)

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <workspace-id> [backup-file]",
		Short: "Put a store back the way a backup captured it",
		Long: `Replace a workspace's state.vscdb with one of its backups. Without a
backup file the newest backup is used.

The current store is backed up first, so a restore can itself be undone.
A store with a pending journal or write-ahead log is refused: close VS Code
and try again.`,
		Example: `  chatrepair restore 1a2b3c4d5e6f
  chatrepair restore 1a2b3c4d5e6f ~/.../state.vscdb.backup.20260101_120000`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd, opts, args, yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Restore without asking for confirmation")
	return cmd
}

func runRestore(cmd *cobra.Command, opts *rootOptions, args []string, yes bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())
	yes = yes || opts.config().Repair.AutoConfirm

	if !yes && !opts.stdinIsTTY() {
		return crerrors.ValidationError("refusing to restore without confirmation: stdin is not a terminal", nil).
			WithSuggestion("Re-run with --yes to confirm")
	}

	_, selected, err := opts.workspaces(ctx, args[0])
	if err != nil {
		return err
	}
	ws := selected[0]
	storePath := ws.StorePath()
	mgr := backup.NewManager()

	backupPath := ""
	if len(args) > 1 {
		backupPath = args[1]
	} else {
		list, err := mgr.List(storePath)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return crerrors.New(crerrors.ErrCodeStoreNotFound,
				fmt.Sprintf("no backups of %s", storePath), nil).
				WithSuggestion("Backups are created by 'chatrepair repair'")
		}
		backupPath = list[0].Path
	}

	if !yes {
		out.Statusf(output.IconBackup, "Restore %s", ws.DisplayName())
		out.Indented().KeyValue("From", backupPath, 5)
		ok, err := output.Confirm(cmd.ErrOrStderr(), cmd.InOrStdin(), "Replace the current store?")
		if err != nil {
			return err
		}
		if !ok {
			out.Warning("Restore aborted")
			return &ExitError{Code: 1}
		}
	}

	storeOpts := opts.config().StoreOptions()
	lock := store.NewFileLock(storeOpts.LockDir, storePath)
	locked, err := lock.TryLock()
	if err != nil {
		return crerrors.LockError(storePath, err)
	}
	if !locked {
		return crerrors.LockError(storePath, fmt.Errorf("lock %s is held", lock.Path()))
	}
	defer func() { _ = lock.Unlock() }()

	safety, err := mgr.Restore(ctx, storePath, backupPath)
	if err != nil {
		return err
	}

	out.Successf("Restored %s", ws.DisplayName())
	out.Indented().KeyValue("From", backupPath, 14)
	out.Indented().KeyValue("Previous store", safety.Path, 14)
	return nil
}
