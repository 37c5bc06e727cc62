package models

import (
	"testing"
	"time"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"in_progress is valid", TaskStatusInProgress, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"blocked is not a status", TaskStatus("blocked"), false},
		{"done is not a status", TaskStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{TaskStatusPending, TaskStatusInProgress, true},
		{TaskStatusPending, TaskStatusFailed, true},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusInProgress, TaskStatusCompleted, true},
		{TaskStatusInProgress, TaskStatusFailed, true},
		{TaskStatusInProgress, TaskStatusPending, false},
		{TaskStatusCompleted, TaskStatusFailed, false},
		{TaskStatusCompleted, TaskStatusInProgress, false},
		{TaskStatusFailed, TaskStatusPending, false},
		{TaskStatusFailed, TaskStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("%s.CanTransition(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTask_Clone(t *testing.T) {
	started := time.Now()
	task := &Task{
		ID:        "core",
		Type:      UnitCore,
		DependsOn: []string{"data", "auth"},
		Priority:  30,
		Status:    TaskStatusInProgress,
		StartedAt: &started,
	}

	clone := task.Clone()
	clone.DependsOn[0] = "changed"
	*clone.StartedAt = started.Add(time.Hour)

	if task.DependsOn[0] != "data" {
		t.Errorf("clone shares DependsOn with original: got %q", task.DependsOn[0])
	}
	if !task.StartedAt.Equal(started) {
		t.Error("clone shares StartedAt with original")
	}

	var nilTask *Task
	if nilTask.Clone() != nil {
		t.Error("Clone of nil task should be nil")
	}
}

func TestExecutionPlan_Task(t *testing.T) {
	plan := &ExecutionPlan{Tasks: []*Task{{ID: "data"}, {ID: "core"}}}

	if got := plan.Task("core"); got == nil || got.ID != "core" {
		t.Errorf("expected to find task core, got %v", got)
	}
	if got := plan.Task("missing"); got != nil {
		t.Errorf("expected nil for missing task, got %v", got)
	}
}

func TestProjectConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *ProjectConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"missing name", &ProjectConfig{Name: "  "}, true},
		{"empty integration", &ProjectConfig{Name: "shop", Features: Features{Integrations: []string{"stripe", ""}}}, true},
		{"valid", &ProjectConfig{Name: "shop", Features: Features{Auth: true, Integrations: []string{"stripe"}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContextEntry_CloneAndDecode(t *testing.T) {
	entry := &ContextEntry{ID: "a", Key: "schema", Payload: []byte(`{"tables":3}`), Importance: 8}

	clone := entry.Clone()
	clone.Payload[2] = 'X'
	if string(entry.Payload) != `{"tables":3}` {
		t.Errorf("clone shares payload with original: %s", entry.Payload)
	}

	var v struct {
		Tables int `json:"tables"`
	}
	if err := entry.Decode(&v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Tables != 3 {
		t.Errorf("expected 3 tables, got %d", v.Tables)
	}
}
