// Package ui renders repair progress and reports in the terminal.
package ui

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/chatrepair/internal/repair"
)

// Stage is a column of the pipeline display. Several repair states share
// a stage.
type Stage int

const (
	StageScan Stage = iota
	StageExtract
	StageReconcile
	StageBackup
	StageWrite
	StageDone
)

var stageNames = [...]string{"Scan", "Extract", "Reconcile", "Backup", "Write", "Done"}

// String returns the human-readable stage name.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Unknown"
	}
	return stageNames[s]
}

// StageOf maps a repair state onto the display stage it belongs to.
func StageOf(s repair.State) Stage {
	switch s {
	case repair.StateIdle, repair.StateScanning:
		return StageScan
	case repair.StateExtracting:
		return StageExtract
	case repair.StateReconciling:
		return StageReconcile
	case repair.StateBackingUp:
		return StageBackup
	case repair.StateWriting:
		return StageWrite
	default:
		return StageDone
	}
}

// Label returns the short tag used by the plain renderer.
func Label(s repair.State) string {
	switch s {
	case repair.StateScanning:
		return "SCAN"
	case repair.StateExtracting:
		return "EXTRACT"
	case repair.StateReconciling:
		return "RECONCILE"
	case repair.StateDryRunReport:
		return "DRY-RUN"
	case repair.StateBackingUp:
		return "BACKUP"
	case repair.StateWriting:
		return "WRITE"
	case repair.StateDone:
		return "DONE"
	case repair.StateFailed:
		return "FAIL"
	default:
		return "IDLE"
	}
}

// Renderer displays pipeline progress while a run is in flight.
// Observe may be called from several goroutines.
type Renderer interface {
	// Start initializes the renderer for the given targets.
	Start(ctx context.Context, targets []repair.Target) error

	// Observe records a state transition. It matches repair.Observer.
	Observe(t repair.Target, s repair.State)

	// Suspend hands the terminal back, for example to ask a question.
	Suspend()

	// Resume takes the terminal again after Suspend.
	Resume()

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string
	// OnInterrupt is called when the user presses ctrl+c inside the TUI,
	// which swallows the signal.
	OnInterrupt func()
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithTitle sets the panel title.
func WithTitle(title string) ConfigOption {
	return func(c *Config) { c.Title = title }
}

// WithInterrupt sets the ctrl+c callback.
func WithInterrupt(fn func()) ConfigOption {
	return func(c *Config) { c.OnInterrupt = fn }
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output: output,
		Title:  "chatrepair",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if DetectNoColor() {
		cfg.NoColor = true
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals, and a
// plain text renderer for CI, pipes, or when --no-tui is given.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if w is a terminal.
func IsTTY(w any) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
