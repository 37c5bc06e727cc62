package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/pkg/models"
)

// TaskRow is one task as the run view displays it.
type TaskRow struct {
	ID       string
	Type     models.UnitType
	Status   models.TaskStatus
	Blocked  bool
	Err      string
	Duration time.Duration
}

// RunState tracks the progress of one run.
type RunState struct {
	RunID  string
	Phase  string
	Tasks  []TaskRow
	Memory memory.Stats
}

// Counts returns completed, failed (including blocked) and running task counts.
func (s RunState) Counts() (completed, failed, running int) {
	for _, row := range s.Tasks {
		switch row.Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		case models.TaskStatusInProgress:
			running++
		}
	}
	return completed, failed, running
}

// row returns the row for id, appending one on first sight.
func (s *RunState) row(id string, unit models.UnitType) *TaskRow {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	s.Tasks = append(s.Tasks, TaskRow{ID: id, Type: unit, Status: models.TaskStatusPending})
	return &s.Tasks[len(s.Tasks)-1]
}

// RunView renders the task table and memory gauge.
type RunView struct {
	state   RunState
	spinner spinner.Model
	memory  progress.Model
	width   int

	headerStyle    lipgloss.Style
	labelStyle     lipgloss.Style
	valueStyle     lipgloss.Style
	phaseStyle     lipgloss.Style
	completedStyle lipgloss.Style
	failedStyle    lipgloss.Style
	blockedStyle   lipgloss.Style
	pendingStyle   lipgloss.Style
}

// NewRunView creates a RunView.
func NewRunView() *RunView {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &RunView{
		spinner: sp,
		memory: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(30),
		),

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(10),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		phaseStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),

		completedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		failedStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		blockedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		pendingStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// View renders the run progress display.
func (v *RunView) View() string {
	var b strings.Builder

	b.WriteString(v.headerStyle.Render("Run Progress"))
	b.WriteString("\n")

	phase := v.state.Phase
	if phase == "" {
		phase = "starting"
	}
	b.WriteString(v.labelStyle.Render("Phase:"))
	b.WriteString(v.phaseStyle.Render(phase))
	b.WriteString("\n")

	completed, failed, running := v.state.Counts()
	b.WriteString(v.labelStyle.Render("Tasks:"))
	b.WriteString(fmt.Sprintf("%s completed, %s failed, %s running",
		v.completedStyle.Render(fmt.Sprintf("%d", completed)),
		v.failedStyle.Render(fmt.Sprintf("%d", failed)),
		v.valueStyle.Render(fmt.Sprintf("%d", running))))
	b.WriteString("\n")

	if v.state.Memory.MaxTokens > 0 {
		pct := float64(v.state.Memory.TotalTokens) / float64(v.state.Memory.MaxTokens)
		b.WriteString(v.labelStyle.Render("Memory:"))
		b.WriteString(v.memory.ViewAs(pct))
		b.WriteString(fmt.Sprintf("  %d/%d tokens", v.state.Memory.TotalTokens, v.state.Memory.MaxTokens))
		b.WriteString("\n")
	}

	if len(v.state.Tasks) > 0 {
		b.WriteString("\n")
		for _, row := range v.state.Tasks {
			b.WriteString(v.renderRow(row))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (v *RunView) renderRow(row TaskRow) string {
	var marker, status string
	switch {
	case row.Status == models.TaskStatusInProgress:
		marker = v.spinner.View()
		status = "running"
	case row.Status == models.TaskStatusCompleted:
		marker = v.completedStyle.Render("✓")
		status = v.completedStyle.Render(fmt.Sprintf("done in %s", row.Duration.Round(time.Millisecond)))
	case row.Blocked:
		marker = v.blockedStyle.Render("⊘")
		status = v.blockedStyle.Render("blocked: " + truncate(row.Err, 60))
	case row.Status == models.TaskStatusFailed:
		marker = v.failedStyle.Render("✗")
		status = v.failedStyle.Render("failed: " + truncate(row.Err, 60))
	default:
		marker = v.pendingStyle.Render("·")
		status = v.pendingStyle.Render("pending")
	}
	id := lipgloss.NewStyle().Width(16).Render(truncate(row.ID, 15))
	return fmt.Sprintf("  %s %s %s", marker, id, status)
}

// SetSize sets the view width.
func (v *RunView) SetSize(width int) {
	v.width = width
	if width > 40 {
		v.memory.Width = min(width/3, 60)
	}
}

// State returns a copy of the current run state.
func (v *RunView) State() RunState {
	out := v.state
	out.Tasks = append([]TaskRow(nil), v.state.Tasks...)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
