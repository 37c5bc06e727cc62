package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/forge/pkg/models"
)

// Registry reports which unit types can be dispatched.
// *units.Registry satisfies it.
type Registry interface {
	Has(t models.UnitType) bool
	Types() []models.UnitType
}

// Outcome is the result of parsing an oracle response: either a ParsedPlan
// or a ParseFailure.
type Outcome interface {
	outcome()
}

// ParsedPlan holds tasks that passed validation.
type ParsedPlan struct {
	Tasks []*models.Task
}

// ParseFailure holds the reason a response was rejected.
type ParseFailure struct {
	Err *PlanParseError
}

func (ParsedPlan) outcome()   {}
func (ParseFailure) outcome() {}

// plannedTask is the JSON structure returned by the oracle for a single task.
type plannedTask struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on"`
	Priority    int      `json:"priority"`
}

// Parse turns oracle text into a validated plan. The JSON array is located
// between the first '[' and the last ']'. Every task must name a registered
// unit type, IDs must be unique, and dependencies must reference IDs in the
// same plan. Missing IDs are derived as "<type>-<n>". Cycles are left for the
// scheduler to report.
func Parse(response string, registry Registry) Outcome {
	tasks, err := parse(response, registry)
	if err != nil {
		return ParseFailure{Err: err}
	}
	return ParsedPlan{Tasks: tasks}
}

func parse(response string, registry Registry) ([]*models.Task, *PlanParseError) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		preview := response
		if len(preview) > 500 {
			preview = preview[:500] + "... (truncated)"
		}
		return nil, parseErrorf("no JSON array found in response (got %d chars): %q", len(response), preview)
	}

	var planned []plannedTask
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &planned); err != nil {
		return nil, &PlanParseError{Reason: "unmarshal JSON", Err: err}
	}
	if len(planned) == 0 {
		return nil, parseErrorf("empty task list returned")
	}

	tasks := make([]*models.Task, 0, len(planned))
	seen := make(map[string]bool, len(planned))
	perType := make(map[models.UnitType]int)

	for i, pt := range planned {
		unitType := models.UnitType(strings.ToLower(strings.TrimSpace(pt.Type)))
		if unitType == "" {
			return nil, parseErrorf("task %d has no type", i)
		}
		if registry == nil || !registry.Has(unitType) {
			return nil, parseErrorf("task %d references unknown unit type %q", i, unitType)
		}
		perType[unitType]++

		id := strings.TrimSpace(pt.ID)
		if id == "" {
			id = fmt.Sprintf("%s-%d", unitType, perType[unitType])
		}
		if seen[id] {
			return nil, parseErrorf("duplicate task id %q", id)
		}
		seen[id] = true

		description := strings.TrimSpace(pt.Description)
		if description == "" {
			description = defaultDescriptions[unitType]
		}

		tasks = append(tasks, &models.Task{
			ID:          id,
			Type:        unitType,
			Description: description,
			DependsOn:   trimAll(pt.DependsOn),
			Priority:    pt.Priority,
			Status:      models.TaskStatusPending,
		})
	}

	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if !seen[dep] {
				return nil, parseErrorf("task %q depends on unknown task %q", task.ID, dep)
			}
		}
	}
	return tasks, nil
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
