package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatrepair/internal/ui"
	"github.com/Aman-CERP/chatrepair/internal/workspace"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var needsRepair bool

	cmd := &cobra.Command{
		Use:     "list [workspace-id]",
		Aliases: []string{"ls"},
		Short:   "List workspaces and whether their index needs repair",
		Long: `List every workspace that has chat session files, with its project
name, the number of sessions on disk and in the index, and its status:

  HEALTHY       every session file is indexed and every entry has a file
  NEEDS REPAIR  sessions are missing from the index, or entries are orphaned
  UNREADABLE    the store could not be opened (VS Code may be running)

Nothing is written.`,
		Example: `  chatrepair list
  chatrepair list --needs-repair --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, args, needsRepair)
		},
	}
	cmd.Flags().BoolVar(&needsRepair, "needs-repair", false, "Only show workspaces that are not healthy")
	return cmd
}

func runList(cmd *cobra.Command, opts *rootOptions, args []string, needsRepair bool) error {
	ctx := cmd.Context()
	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	_, selected, err := opts.workspaces(ctx, id)
	if err != nil {
		return err
	}

	storeOpts := opts.config().StoreOptions()
	rows := make([]ui.ListRow, 0, len(selected))
	for _, ws := range selected {
		h := ws.Health(ctx, storeOpts)
		if needsRepair && h.Status == workspace.StatusHealthy {
			continue
		}
		rows = append(rows, ui.ListRow{Workspace: ws, Health: h})
	}

	if opts.jsonOut {
		return ui.WriteJSON(cmd.OutOrStdout(), ui.NewListJSON(rows))
	}
	ui.NewReporter(cmd.OutOrStdout(), opts.noColor).List(rows)
	return nil
}
