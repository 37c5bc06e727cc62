package models

import "time"

// Run phases reported through phase-change events.
const (
	PhasePlanning   = "planning"
	PhaseExecuting  = "executing"
	PhaseAssembling = "assembling"
	PhaseCompleted  = "completed"
	PhaseFailed     = "failed"
)

// FileArtifact is one generated file.
type FileArtifact struct {
	// Path is relative to the output root.
	Path string `json:"path"`
	// Content is the file body.
	Content string `json:"content"`
	// TaskID is the task that produced the file.
	TaskID string `json:"task_id,omitempty"`
}

// UnitOutput is what a generation unit returns for one task.
type UnitOutput struct {
	Files   []FileArtifact `json:"files"`
	EnvVars []string       `json:"env,omitempty"`
	Summary string         `json:"summary,omitempty"`
}

// RunState is the scheduler's view of a run in progress.
type RunState struct {
	RunID     string
	Project   *ProjectConfig
	Phase     string
	Completed []string
	Pending   []string
	Files     []FileArtifact
	Errors    []string
}

// Snapshot is the immutable view of a run handed to a generation unit.
type Snapshot struct {
	RunID     string
	Phase     string
	Task      Task
	Project   ProjectConfig
	Completed []string
	// Files lists the paths produced so far.
	Files []string
	// Context holds the store entries relevant to the task's unit type.
	Context []*ContextEntry
}

// RunStats summarizes a finished run.
type RunStats struct {
	TasksTotal     int     `json:"tasks_total"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksFailed    int     `json:"tasks_failed"`
	TasksBlocked   int     `json:"tasks_blocked"`
	FilesGenerated int     `json:"files_generated"`
	ContextEntries int     `json:"context_entries"`
	ArchiveEntries int     `json:"archive_entries"`
	TokensUsed     int     `json:"tokens_used"`
	Utilization    float64 `json:"utilization"`
}

// GeneratedOutput is the aggregate result of a run.
type GeneratedOutput struct {
	RunID       string         `json:"run_id"`
	Project     ProjectConfig  `json:"project"`
	Plan        *ExecutionPlan `json:"plan"`
	Files       []FileArtifact `json:"files"`
	Manifest    string         `json:"manifest"`
	Readme      string         `json:"readme"`
	EnvTemplate string         `json:"env_template"`
	Failures    []TaskFailure  `json:"failures,omitempty"`
	Stats       RunStats       `json:"stats"`
	Duration    time.Duration  `json:"duration"`
}

// Succeeded returns true if no task failed or was blocked.
func (o *GeneratedOutput) Succeeded() bool {
	return len(o.Failures) == 0
}
