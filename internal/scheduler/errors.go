package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/forge/pkg/models"
)

var (
	// ErrRunAborted is returned when the run context is cancelled mid-run.
	ErrRunAborted = errors.New("run aborted")
	// ErrInvalidPlan is returned when the plan cannot be turned into a graph.
	ErrInvalidPlan = errors.New("invalid execution plan")
	// ErrNoUnit is recorded against a task whose type has no registered unit.
	ErrNoUnit = errors.New("no unit registered for task type")
)

// UnitExecutionError records why a unit failed a task.
type UnitExecutionError struct {
	TaskID   string
	Type     models.UnitType
	Err      error
	TimedOut bool
}

func (e *UnitExecutionError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("task %s (%s) timed out: %v", e.TaskID, e.Type, e.Err)
	}
	return fmt.Sprintf("task %s (%s) failed: %v", e.TaskID, e.Type, e.Err)
}

func (e *UnitExecutionError) Unwrap() error {
	return e.Err
}

// BlockedError marks a task failed because a dependency failed.
type BlockedError struct {
	TaskID    string
	BlockedBy string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("task %s blocked by dependency failure: %s", e.TaskID, e.BlockedBy)
}

// UnresolvedTask is a pending task left behind by a deadlock.
type UnresolvedTask struct {
	TaskID string
	Unmet  []string
}

// DeadlockError reports that pending tasks remain but none can run and
// nothing is running.
type DeadlockError struct {
	Unresolved []UnresolvedTask
	// Cycle is one dependency cycle among the unresolved tasks, if any.
	Cycle []string
}

func (e *DeadlockError) Error() string {
	parts := make([]string, 0, len(e.Unresolved))
	for _, u := range e.Unresolved {
		parts = append(parts, fmt.Sprintf("%s (waiting on %s)", u.TaskID, strings.Join(u.Unmet, ", ")))
	}
	msg := fmt.Sprintf("deadlock: %d task(s) unresolved: %s", len(e.Unresolved), strings.Join(parts, "; "))
	if len(e.Cycle) > 0 {
		msg += "; cycle " + strings.Join(e.Cycle, " -> ")
	}
	return msg
}

// TaskIDs returns the unresolved task IDs in plan order.
func (e *DeadlockError) TaskIDs() []string {
	ids := make([]string, 0, len(e.Unresolved))
	for _, u := range e.Unresolved {
		ids = append(ids, u.TaskID)
	}
	return ids
}
