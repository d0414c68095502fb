package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/chatrepair/internal/repair"
)

// TUIRenderer draws a live pipeline table using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *runModel
	tracker *Tracker
	started bool
	stopped bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails if the output is not a
// terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	return &TUIRenderer{cfg: cfg, done: make(chan struct{})}, nil
}

// Start implements Renderer. The display is drawn inline so it stays in
// the scrollback above the report.
func (r *TUIRenderer) Start(ctx context.Context, targets []repair.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	r.tracker = NewTracker(targets)
	r.model = newRunModel(r.tracker, r.cfg)
	r.program = tea.NewProgram(r.model,
		tea.WithOutput(r.cfg.Output),
		tea.WithContext(ctx),
	)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Observe implements Renderer.
func (r *TUIRenderer) Observe(t repair.Target, s repair.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tracker == nil {
		return
	}
	r.tracker.Set(t, s)
	if r.program != nil && !r.stopped {
		r.program.Send(stateMsg{})
	}
}

// Suspend implements Renderer.
func (r *TUIRenderer) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil && !r.stopped {
		_ = r.program.ReleaseTerminal()
	}
}

// Resume implements Renderer.
func (r *TUIRenderer) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil && !r.stopped {
		_ = r.program.RestoreTerminal()
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	if r.program == nil || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.program.Send(finishMsg{})
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		r.program.Kill()
	}
	return nil
}

type stateMsg struct{}
type finishMsg struct{}
type tickMsg time.Time

// runModel is the bubbletea model for a repair run.
type runModel struct {
	tracker     *Tracker
	spinner     spinner.Model
	bar         progress.Model
	styles      Styles
	title       string
	width       int
	finished    bool
	interrupted bool
	onInterrupt func()
}

func newRunModel(tracker *Tracker, cfg Config) *runModel {
	styles := GetStyles(cfg.NoColor)
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Active

	barOpts := []progress.Option{progress.WithWidth(40), progress.WithoutPercentage()}
	if cfg.NoColor {
		barOpts = append(barOpts, progress.WithSolidFill(ColorGray), progress.WithFillCharacters('#', '.'))
	} else {
		barOpts = append(barOpts, progress.WithSolidFill(ColorLime))
	}

	return &runModel{
		tracker:     tracker,
		spinner:     s,
		bar:         progress.New(barOpts...),
		styles:      styles,
		title:       cfg.Title,
		width:       80,
		onInterrupt: cfg.OnInterrupt,
	}
}

// Init implements tea.Model.
func (m *runModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clamp(msg.Width-30, 20, 60)
	case finishMsg:
		m.finished = true
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *runModel) View() string {
	snap := m.tracker.Snapshot()
	nameWidth := clamp(m.width-52, 16, 48)

	var lines []string
	for _, row := range snap.Rows {
		lines = append(lines, m.renderRow(row, nameWidth))
	}
	if len(lines) == 0 {
		lines = append(lines, m.styles.Dim.Render("No workspaces"))
	}
	lines = append(lines, "", m.renderFooter(snap))

	body := m.styles.Panel.Render(strings.Join(lines, "\n"))
	out := m.styles.Header.Render(m.title) + "\n" + body + "\n"
	if m.interrupted {
		out += m.styles.Warning.Render("Interrupted.") + "\n"
	}
	return out
}

// renderRow renders the stage indicators for one workspace.
func (m *runModel) renderRow(row Row, nameWidth int) string {
	name := truncate(row.Target.Name, nameWidth)
	name = fmt.Sprintf("%-*s", nameWidth, name)

	switch row.State {
	case repair.StateFailed:
		return m.styles.Error.Render("✗ "+name) + "  " + m.styles.Error.Render("failed")
	case repair.StateDone:
		return m.styles.Success.Render("✓ "+name) + "  " + m.styles.Label.Render(formatDuration(row.Elapsed))
	case repair.StateDryRunReport:
		return m.styles.Success.Render("✓ "+name) + "  " + m.styles.Accent.Render("dry run")
	}

	current := StageOf(row.State)
	var parts []string
	for s := StageScan; s < StageDone; s++ {
		var icon string
		var style lipgloss.Style
		switch {
		case s < current:
			icon, style = "●", m.styles.Success
		case s == current && row.State != repair.StateIdle:
			icon, style = m.spinner.View(), m.styles.Active
		default:
			icon, style = "○", m.styles.Dim
		}
		parts = append(parts, style.Render(icon+" "+s.String()))
	}
	return "  " + m.styles.Value.Render(name) + "  " + strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *runModel) renderFooter(snap Snapshot) string {
	bar := m.bar.ViewAs(snap.Progress())
	count := m.styles.Label.Render(fmt.Sprintf("%d / %d workspaces", snap.Finished, len(snap.Rows)))
	parts := []string{bar + "  " + count}
	if snap.Failed > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", snap.Failed)))
	}
	parts = append(parts, m.styles.Dim.Render(formatDuration(snap.Elapsed)))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		d = d.Round(time.Second)
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// truncate shortens s to at most n runes, ending in "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ Renderer = (*TUIRenderer)(nil)
