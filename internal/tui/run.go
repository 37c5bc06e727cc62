// Package tui provides the terminal user interface for a forge run.
//
// The TUI is read-only: it renders run events as they arrive and lets the
// user cancel with q or Ctrl+C.
//
// Usage:
//
//	program, app := tui.NewRunProgram(cancel)
//	go tui.Forward(ctx, emitter.Events(), program.Send)
//	go func() {
//	    result, err := coord.Run(ctx, project)
//	    program.Send(tui.DoneMsg{Err: err, Summary: summarize(result)})
//	}()
//	program.Run()
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/notify"
	"github.com/ShayCichocki/forge/pkg/models"
)

// maxLogLines bounds the activity log.
const maxLogLines = 8

// EventMsg wraps a run event for the TUI.
type EventMsg struct {
	Event notify.Event
}

// MemoryMsg carries a context store usage update.
type MemoryMsg struct {
	Stats memory.Stats
}

// DoneMsg is sent when the run returns.
type DoneMsg struct {
	Err     error
	Summary string
}

// LogEntry is one line of the activity log.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Failure   bool
}

// RunApp is the bubbletea model for `forge run`.
type RunApp struct {
	view     *RunView
	logs     []LogEntry
	cancel   func()
	quitting bool
	done     bool
	err      error
	summary  string

	logStyle     lipgloss.Style
	logTimeStyle lipgloss.Style
	errorStyle   lipgloss.Style
	doneStyle    lipgloss.Style
	hintStyle    lipgloss.Style
}

// NewRunApp creates a RunApp. cancel, when non-nil, is called when the user
// quits before the run is done.
func NewRunApp(cancel func()) *RunApp {
	return &RunApp{
		view:   NewRunView(),
		cancel: cancel,

		logStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		logTimeStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		doneStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true),
		hintStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *RunApp) Init() tea.Cmd {
	return a.view.spinner.Tick
}

// Update implements tea.Model.
func (a *RunApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if a.done {
				return a, tea.Quit
			}
			a.quitting = true
			if a.cancel != nil {
				a.cancel()
			}
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.view.SetSize(msg.Width)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.view.spinner, cmd = a.view.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)

	case MemoryMsg:
		a.view.state.Memory = msg.Stats

	case DoneMsg:
		a.done = true
		a.err = msg.Err
		a.summary = msg.Summary
	}
	return a, nil
}

func (a *RunApp) apply(e notify.Event) {
	if e.RunID != "" {
		a.view.state.RunID = e.RunID
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	switch e.Type {
	case notify.EventPhaseChanged:
		a.view.state.Phase = e.Phase
		a.log(ts, "phase "+e.Phase, e.Phase == models.PhaseFailed)

	case notify.EventTaskStarted:
		row := a.view.state.row(e.TaskID, e.UnitType)
		row.Status = models.TaskStatusInProgress
		a.log(ts, fmt.Sprintf("%s started (%s)", e.TaskID, e.UnitType), false)

	case notify.EventTaskCompleted:
		row := a.view.state.row(e.TaskID, e.UnitType)
		row.Status = models.TaskStatusCompleted
		row.Duration = e.Duration
		msg := e.TaskID + " completed"
		if e.Message != "" {
			msg += ": " + e.Message
		}
		a.log(ts, msg, false)

	case notify.EventTaskFailed:
		row := a.view.state.row(e.TaskID, e.UnitType)
		row.Status = models.TaskStatusFailed
		row.Blocked = e.Blocked
		row.Duration = e.Duration
		if e.Error != nil {
			row.Err = e.Error.Error()
		}
		verb := " failed"
		if e.Blocked {
			verb = " blocked"
		}
		a.log(ts, e.TaskID+verb, true)
	}
}

func (a *RunApp) log(ts time.Time, msg string, failure bool) {
	a.logs = append(a.logs, LogEntry{Timestamp: ts, Message: msg, Failure: failure})
	if len(a.logs) > maxLogLines {
		a.logs = a.logs[len(a.logs)-maxLogLines:]
	}
}

// View implements tea.Model.
func (a *RunApp) View() string {
	if a.quitting {
		return "Run cancelled.\n"
	}

	var b strings.Builder

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Render("=== forge ===")
	b.WriteString(header)
	b.WriteString("\n\n")

	b.WriteString(a.view.View())
	b.WriteString("\n")
	b.WriteString(a.renderLogs())

	b.WriteString("\n")
	switch {
	case a.done && a.err != nil:
		b.WriteString(a.errorStyle.Render(fmt.Sprintf("Error: %v", a.err)))
		b.WriteString("\n")
		b.WriteString(a.hintStyle.Render("Press q to exit"))
	case a.done:
		msg := "Run complete!"
		if a.summary != "" {
			msg += " " + a.summary
		}
		b.WriteString(a.doneStyle.Render(msg))
		b.WriteString("\n")
		b.WriteString(a.hintStyle.Render("Press q to exit"))
	default:
		b.WriteString(a.hintStyle.Render("Press q to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

func (a *RunApp) renderLogs() string {
	if len(a.logs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252")).
		Render("Activity Log"))
	b.WriteString("\n")

	for _, entry := range a.logs {
		ts := a.logTimeStyle.Render(entry.Timestamp.Format("15:04:05"))
		style := a.logStyle
		if entry.Failure {
			style = a.errorStyle
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", ts, style.Render(entry.Message)))
	}
	return b.String()
}

// Done reports whether the run has returned.
func (a *RunApp) Done() bool {
	return a.done
}

// Err returns the run error, if any.
func (a *RunApp) Err() error {
	return a.err
}

// State returns the current run state.
func (a *RunApp) State() RunState {
	return a.view.State()
}

// NewRunProgram creates a Bubbletea program for the run TUI.
func NewRunProgram(cancel func()) (*tea.Program, *RunApp) {
	app := NewRunApp(cancel)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Forward sends every event from events to send until events is closed or
// ctx is done.
func Forward(ctx context.Context, events <-chan notify.Event, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			send(EventMsg{Event: e})
		}
	}
}

// MemoryObserver adapts send into a memory.Observer that reports usage.
type MemoryObserver func(tea.Msg)

// ObservePrune is a no-op; usage updates follow every prune.
func (MemoryObserver) ObservePrune(memory.PruneResult) {}

// ObserveUsage sends a MemoryMsg.
func (o MemoryObserver) ObserveUsage(s memory.Stats) {
	o(MemoryMsg{Stats: s})
}
