package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates a generation unit is working on the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task produced output successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed or was blocked by a failed dependency.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a task may move from s to next.
// The only edge outside pending -> in_progress -> {completed, failed} is
// pending -> failed, which is reserved for cascade-blocking a task whose
// dependency failed before it could start.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusInProgress || next == TaskStatusFailed
	case TaskStatusInProgress:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// UnitType identifies the generation unit that handles a task.
type UnitType string

const (
	// UnitData produces the data layer (schema, models, migrations).
	UnitData UnitType = "data"
	// UnitAuth produces authentication and authorization.
	UnitAuth UnitType = "auth"
	// UnitCore produces the business logic.
	UnitCore UnitType = "core"
	// UnitUI produces the user interface.
	UnitUI UnitType = "ui"
	// UnitIntegrations produces third-party integrations.
	UnitIntegrations UnitType = "integrations"
	// UnitDeploy produces deployment configuration. It always runs last.
	UnitDeploy UnitType = "deploy"
)

// StandardUnits lists the built-in unit types in pipeline order.
var StandardUnits = []UnitType{UnitData, UnitAuth, UnitCore, UnitUI, UnitIntegrations, UnitDeploy}

// Task represents one generation phase in an execution plan.
type Task struct {
	// ID is the unique identifier for this task within its plan.
	ID string `json:"id"`
	// Type selects the generation unit that executes the task.
	Type UnitType `json:"type"`
	// Description tells the unit what to produce.
	Description string `json:"description,omitempty"`
	// DependsOn lists task IDs that must complete before this task starts.
	DependsOn []string `json:"depends_on,omitempty"`
	// Priority orders tasks within a ready set. Higher runs first.
	Priority int `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Error contains the failure reason if the task failed.
	Error string `json:"error,omitempty"`
	// BlockedBy is the ID of the failed ancestor when the task was cascade-blocked.
	BlockedBy string `json:"blocked_by,omitempty"`
	// StartedAt is when the task was dispatched.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// PlanSource records where an execution plan came from.
type PlanSource string

const (
	// PlanSourceOracle means the plan was parsed from the planning oracle's response.
	PlanSourceOracle PlanSource = "oracle"
	// PlanSourceFallback means the plan was built from the fixed ordering rules.
	PlanSourceFallback PlanSource = "fallback"
)

// ExecutionPlan is a set of tasks forming a dependency graph.
// It may contain cycles; the scheduler's deadlock check is the authority.
type ExecutionPlan struct {
	// Tasks in plan order. Plan order breaks priority ties.
	Tasks []*Task `json:"tasks"`
	// Source records whether the oracle or the fallback produced the plan.
	Source PlanSource `json:"source"`
	// FallbackReason explains why the oracle plan was not used.
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// Task returns the task with the given ID, or nil.
func (p *ExecutionPlan) Task(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TaskFailure describes a failed or cascade-blocked task in a run report.
type TaskFailure struct {
	TaskID    string   `json:"task_id"`
	Type      UnitType `json:"type"`
	Reason    string   `json:"reason"`
	Blocked   bool     `json:"blocked"`
	BlockedBy string   `json:"blocked_by,omitempty"`
}
