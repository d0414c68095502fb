// Package cmd provides the CLI commands for chatrepair.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatrepair/internal/config"
	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/logging"
	"github.com/Aman-CERP/chatrepair/internal/workspace"
	"github.com/Aman-CERP/chatrepair/pkg/version"
)

// skipConfigAnnotation marks commands that must work with a broken or
// missing configuration.
const skipConfigAnnotation = "chatrepair/skip-config"

// rootOptions holds the persistent flags and the state they produce.
type rootOptions struct {
	configPath string
	debug      bool
	root       string
	jsonOut    bool
	noTUI      bool
	noColor    bool

	cfg            *config.Config
	loggingCleanup func()

	// stdinIsTTY reports whether confirmation prompts can be answered.
	stdinIsTTY func() bool
}

// ExitError carries a process exit code for a failure that has already
// been reported to the user.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// newRootCmd creates the root command for the chatrepair CLI.
func newRootCmd(opts *rootOptions) *cobra.Command {
	rp := &repairOptions{}

	cmd := &cobra.Command{
		Use:   "chatrepair [workspace-id]",
		Short: "Repair VS Code chat session history",
		Long: `chatrepair rebuilds the chat session index VS Code keeps in each
workspace's state.vscdb from the session files on disk, so sessions that
vanished from the history list show up again.

Every store is backed up before it is written, and nothing is written
without confirmation unless --yes is given. Close VS Code first.

Running chatrepair without a subcommand is the same as 'chatrepair repair'.`,
		Example: `  # Preview what would change in every workspace
  chatrepair --dry-run

  # Repair one workspace without asking
  chatrepair repair 1a2b3c4d5e6f --yes

  # Show which workspaces need repair
  chatrepair list`,
		Version:       version.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(cmd, opts, rp, args)
		},
	}
	cmd.SetVersionTemplate("chatrepair version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (default ~/.config/chatrepair/config.yaml)")
	pf.BoolVar(&opts.debug, "debug", false, "Log at debug level and mirror logs to stderr")
	pf.StringVar(&opts.root, "root", "", "VS Code workspaceStorage directory (default: platform location)")
	pf.BoolVar(&opts.jsonOut, "json", false, "Print machine-readable JSON")
	pf.BoolVar(&opts.noTUI, "no-tui", false, "Plain progress output instead of the interactive display")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	addRepairFlags(cmd, rp)

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return opts.setup(cmd)
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		opts.teardown()
		return nil
	}

	cmd.AddCommand(newRepairCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newRestoreCmd(opts))
	cmd.AddCommand(newBackupsCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads the configuration and starts file logging.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		if !skipsConfig(cmd) {
			return err
		}
		cfg = config.NewConfig()
	}
	if o.root != "" {
		cfg.Storage.Root = o.root
	}
	o.cfg = cfg

	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	lc.MaxSizeMB = cfg.Logging.MaxSizeMB
	lc.MaxFiles = cfg.Logging.MaxFiles
	if o.debug {
		lc.Level = "debug"
		lc.Stderr = true
	}
	cleanup, err := logging.SetupDefault(lc)
	if err != nil {
		// Logging is not worth failing a repair over.
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: file logging disabled: %v\n", err)
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil
	}
	o.loggingCleanup = cleanup
	slog.Debug("command started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version),
		slog.String("log_file", lc.FilePath))
	return nil
}

func (o *rootOptions) teardown() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// config returns the loaded configuration, falling back to defaults when
// a command runs without the root pre-run (as in tests).
func (o *rootOptions) config() *config.Config {
	if o.cfg == nil {
		o.cfg = config.NewConfig()
		if o.root != "" {
			o.cfg.Storage.Root = o.root
		}
	}
	return o.cfg
}

// workspaces discovers every workspace with sessions, and selects id if
// given.
func (o *rootOptions) workspaces(ctx context.Context, id string) (all, selected []*workspace.Workspace, err error) {
	root, err := o.config().StorageRoot()
	if err != nil {
		return nil, nil, err
	}
	all, err = workspace.Discover(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	if id == "" {
		return all, all, nil
	}
	ws, err := workspace.Find(ctx, root, id)
	if err != nil {
		return nil, nil, err
	}
	return all, []*workspace.Workspace{ws}, nil
}

func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &rootOptions{stdinIsTTY: stdinIsTerminal}
	// PersistentPostRunE is skipped when a command fails.
	defer opts.teardown()

	err := newRootCmd(opts).ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	_, _ = fmt.Fprint(os.Stderr, crerrors.FormatForCLI(err))
	return 1
}
