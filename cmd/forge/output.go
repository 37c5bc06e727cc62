package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/forge/internal/llm"
	"github.com/ShayCichocki/forge/internal/notify"
	"github.com/ShayCichocki/forge/pkg/models"
)

// printStatus prints a status line with color
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

// consoleNotifier prints run events as status lines for headless runs.
func consoleNotifier(w io.Writer) notify.Notifier {
	return notify.Func(func(e notify.Event) {
		switch e.Type {
		case notify.EventPhaseChanged:
			printStatus(w, "▸", fmt.Sprintf("Phase: %s", e.Phase), color.FgMagenta)
		case notify.EventTaskStarted:
			printStatus(w, "•", fmt.Sprintf("%s started (%s)", e.TaskID, e.UnitType), color.FgCyan)
		case notify.EventTaskCompleted:
			msg := fmt.Sprintf("%s completed in %s", e.TaskID, e.Duration.Round(time.Millisecond))
			if e.Message != "" {
				msg += ": " + e.Message
			}
			printStatus(w, "✓", msg, color.FgGreen)
		case notify.EventTaskFailed:
			if e.Blocked {
				printStatus(w, "⊘", fmt.Sprintf("%s blocked: %v", e.TaskID, e.Error), color.FgYellow)
				return
			}
			printStatus(w, "✗", fmt.Sprintf("%s failed: %v", e.TaskID, e.Error), color.FgRed)
		}
	})
}

// printSummary prints the outcome of a run.
func printSummary(w io.Writer, out *models.GeneratedOutput, written []string, outDir string, tracker *llm.TokenTracker) {
	s := out.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint("Run"), out.RunID)
	fmt.Fprintf(w, "  Plan:     %s", out.Plan.Source)
	if out.Plan.FallbackReason != "" {
		fmt.Fprintf(w, " (%s)", out.Plan.FallbackReason)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Tasks:    %s completed, %s failed, %s blocked of %d\n",
		color.GreenString("%d", s.TasksCompleted),
		color.RedString("%d", s.TasksFailed),
		color.YellowString("%d", s.TasksBlocked),
		s.TasksTotal)
	fmt.Fprintf(w, "  Files:    %d written to %s\n", len(written), outDir)
	fmt.Fprintf(w, "  Context:  %d entries, %d archived, %d tokens (%.1f%%)\n",
		s.ContextEntries, s.ArchiveEntries, s.TokensUsed, s.Utilization)
	if tracker != nil && tracker.Calls() > 0 {
		in, outTok := tracker.Total()
		fmt.Fprintf(w, "  LLM:      %d calls, %d in / %d out tokens, ~$%.2f\n", tracker.Calls(), in, outTok, tracker.Cost())
	}
	fmt.Fprintf(w, "  Duration: %s\n", out.Duration.Round(time.Millisecond))

	if len(out.Failures) == 0 {
		fmt.Fprintf(w, "\n%s All tasks completed\n", color.GreenString("✓"))
		return
	}
	fmt.Fprintln(w)
	for _, f := range out.Failures {
		if f.Blocked {
			printStatus(w, "⊘", fmt.Sprintf("%s blocked by %s", f.TaskID, f.BlockedBy), color.FgYellow)
			continue
		}
		printStatus(w, "✗", fmt.Sprintf("%s failed: %s", f.TaskID, f.Reason), color.FgRed)
	}
}

// runSummary is the one-line result shown by the TUI.
func runSummary(out *models.GeneratedOutput) string {
	return fmt.Sprintf("%d/%d tasks, %d files", out.Stats.TasksCompleted, out.Stats.TasksTotal, len(out.Files))
}
