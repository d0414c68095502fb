package cmd

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatrepair/internal/logging"
)

type logsOptions struct {
	follow    bool
	lines     int
	level     string
	filter    string
	workspace string
	runID     string
	logFile   string
}

func newLogsCmd(opts *rootOptions) *cobra.Command {
	lo := logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View chatrepair logs",
		Long: `View and tail the chatrepair log (~/.chatrepair/logs/chatrepair.log).

By default the last 50 entries are shown. Use -f to follow new entries as
they are written.`,
		Example: `  chatrepair logs -n 100
  chatrepair logs -f
  chatrepair logs --level warn
  chatrepair logs --workspace 1a2b3c4d5e6f
  chatrepair logs --run 0b6f...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts, lo)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&lo.follow, "follow", "f", false, "Follow log output (like tail -f)")
	f.IntVarP(&lo.lines, "lines", "n", 50, "Number of lines to show")
	f.StringVar(&lo.level, "level", "", "Minimum level (debug|info|warn|error)")
	f.StringVar(&lo.filter, "filter", "", "Only lines matching this regular expression")
	f.StringVar(&lo.workspace, "workspace", "", "Only entries for this workspace ID")
	f.StringVar(&lo.runID, "run", "", "Only entries from this run ID")
	f.StringVar(&lo.logFile, "file", "", "Path to log file")

	cmd.Annotations = map[string]string{skipConfigAnnotation: "true"}
	return cmd
}

func runLogs(cmd *cobra.Command, opts *rootOptions, lo logsOptions) error {
	path, err := logging.FindLogFile(lo.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if lo.filter != "" {
		pattern, err = regexp.Compile(lo.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:     lo.level,
		Pattern:   pattern,
		Workspace: lo.workspace,
		RunID:     lo.runID,
		NoColor:   opts.noColor,
	}, cmd.OutOrStdout())

	stderr := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(stderr, "Log file: %s\n", path)
	if lo.follow {
		_, _ = fmt.Fprintln(stderr, "Following... (Ctrl+C to stop)")
	}
	_, _ = fmt.Fprintln(stderr, "---")

	entries, err := viewer.Tail(path, lo.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !lo.follow {
		return nil
	}
	return followLogs(cmd.Context(), cmd, viewer, path)
}

func followLogs(ctx context.Context, cmd *cobra.Command, viewer *logging.Viewer, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "\n---\nStopped.")
			return nil
		}
	}
}
