package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/forge/internal/llm"
	"github.com/ShayCichocki/forge/pkg/models"
)

type fakeRegistry []models.UnitType

func (r fakeRegistry) Has(t models.UnitType) bool {
	for _, have := range r {
		if have == t {
			return true
		}
	}
	return false
}

func (r fakeRegistry) Types() []models.UnitType { return r }

var allUnits = fakeRegistry(models.StandardUnits)

func fullProject() *models.ProjectConfig {
	return &models.ProjectConfig{
		Name:        "shop",
		Description: "an online shop",
		Database:    "postgres",
		Features: models.Features{
			Auth:         true,
			UI:           true,
			Integrations: []string{"stripe"},
			Deploy:       true,
		},
	}
}

func reply(text string) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: text, InputTokens: 100, OutputTokens: 50}, nil
	})
}

func deps(tasks []*models.Task) map[string][]string {
	out := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t.DependsOn
	}
	return out
}

func TestParse_ValidPlan(t *testing.T) {
	response := "Sure, here is the plan:\n```json\n" + `[
  {"id": "schema", "type": "data", "description": "tables", "depends_on": [], "priority": 10},
  {"id": "", "type": "Core", "depends_on": ["schema"], "priority": 5},
  {"type": "core", "depends_on": ["schema", "core-1"]}
]` + "\n```"

	outcome := Parse(response, allUnits)
	plan, ok := outcome.(ParsedPlan)
	require.True(t, ok, "expected ParsedPlan, got %#v", outcome)
	require.Len(t, plan.Tasks, 3)

	assert.Equal(t, "schema", plan.Tasks[0].ID)
	assert.Equal(t, "core-1", plan.Tasks[1].ID)
	assert.Equal(t, models.UnitCore, plan.Tasks[1].Type)
	assert.NotEmpty(t, plan.Tasks[1].Description)
	assert.Equal(t, "core-2", plan.Tasks[2].ID)
	assert.Equal(t, []string{"schema", "core-1"}, plan.Tasks[2].DependsOn)
	for _, task := range plan.Tasks {
		assert.Equal(t, models.TaskStatusPending, task.Status)
	}
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose only", "I could not plan this."},
		{"malformed json", `[{"id": "a", "type": }]`},
		{"empty array", `[]`},
		{"unknown unit type", `[{"id": "a", "type": "blockchain"}]`},
		{"missing type", `[{"id": "a"}]`},
		{"duplicate id", `[{"id": "a", "type": "data"}, {"id": "a", "type": "core"}]`},
		{"unknown dependency", `[{"id": "a", "type": "data", "depends_on": ["ghost"]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Parse(tt.response, allUnits)
			failure, ok := outcome.(ParseFailure)
			require.True(t, ok, "expected ParseFailure, got %#v", outcome)
			require.NotNil(t, failure.Err)
			assert.NotEmpty(t, failure.Err.Error())
		})
	}
}

func TestParse_KeepsCycles(t *testing.T) {
	outcome := Parse(`[{"id":"a","type":"data","depends_on":["b"]},{"id":"b","type":"core","depends_on":["a"]}]`, allUnits)
	_, ok := outcome.(ParsedPlan)
	assert.True(t, ok, "cycles are reported by the scheduler, not rejected at parse time")
}

func TestParse_UnregisteredType(t *testing.T) {
	outcome := Parse(`[{"id":"a","type":"ui"}]`, fakeRegistry{models.UnitData})
	_, ok := outcome.(ParseFailure)
	assert.True(t, ok)
}

func TestFallbackPlan_AllFeatures(t *testing.T) {
	tasks := FallbackPlan(fullProject(), allUnits)

	var got []string
	for _, task := range tasks {
		got = append(got, task.ID)
		assert.Equal(t, models.UnitType(task.ID), task.Type)
	}
	assert.Equal(t, []string{"data", "auth", "core", "ui", "integrations", "deploy"}, got)

	assert.Equal(t, map[string][]string{
		"data":         nil,
		"auth":         {"data"},
		"core":         {"auth"},
		"ui":           {"core"},
		"integrations": {"core"},
		"deploy":       {"ui", "integrations"},
	}, deps(tasks))

	assert.Greater(t, tasks[0].Priority, tasks[1].Priority)
	assert.Equal(t, tasks[3].Priority, tasks[4].Priority)
}

func TestFallbackPlan_OptionalStagesOmitted(t *testing.T) {
	cfg := &models.ProjectConfig{Name: "minimal"}
	tasks := FallbackPlan(cfg, allUnits)

	assert.Equal(t, map[string][]string{
		"data": nil,
		"core": {"data"},
	}, deps(tasks))
}

func TestFallbackPlan_DeployWithoutFanOut(t *testing.T) {
	cfg := &models.ProjectConfig{Name: "api", Features: models.Features{Deploy: true}}
	assert.Equal(t, map[string][]string{
		"data":   nil,
		"core":   {"data"},
		"deploy": {"core"},
	}, deps(FallbackPlan(cfg, allUnits)))
}

func TestFallbackPlan_SkipsUnregisteredTypes(t *testing.T) {
	registry := fakeRegistry{models.UnitData, models.UnitCore, models.UnitDeploy}
	tasks := FallbackPlan(fullProject(), registry)

	assert.Equal(t, map[string][]string{
		"data":   nil,
		"core":   {"data"},
		"deploy": {"core"},
	}, deps(tasks))
}

func TestPlanExecution_UsesOracle(t *testing.T) {
	var captured llm.Request
	completer := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		captured = req
		return &llm.Response{Text: `[{"id":"d","type":"data"},{"id":"c","type":"core","depends_on":["d"]}]`}, nil
	})

	plan, err := New(completer, allUnits).PlanExecution(context.Background(), fullProject())
	require.NoError(t, err)
	assert.Equal(t, models.PlanSourceOracle, plan.Source)
	assert.Empty(t, plan.FallbackReason)
	assert.Len(t, plan.Tasks, 2)

	assert.Contains(t, captured.Prompt, "- integrations")
	assert.Contains(t, captured.Prompt, `"stripe"`)
	assert.NotEmpty(t, captured.SystemPrompt)
}

func TestPlanExecution_FallsBackOnParseFailure(t *testing.T) {
	plan, err := New(reply(`[{"id":"x","type":"mainframe"}]`), allUnits).PlanExecution(context.Background(), fullProject())
	require.NoError(t, err)
	assert.Equal(t, models.PlanSourceFallback, plan.Source)
	assert.Contains(t, plan.FallbackReason, "mainframe")
	assert.Len(t, plan.Tasks, 6)
}

func TestPlanExecution_FallsBackOnOracleError(t *testing.T) {
	failing := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return nil, errors.New("503 overloaded")
	})
	plan, err := New(failing, allUnits).PlanExecution(context.Background(), fullProject())
	require.NoError(t, err)
	assert.Equal(t, models.PlanSourceFallback, plan.Source)
	assert.Contains(t, plan.FallbackReason, "503 overloaded")
}

func TestPlanExecution_NilCompleter(t *testing.T) {
	plan, err := New(nil, allUnits).PlanExecution(context.Background(), fullProject())
	require.NoError(t, err)
	assert.Equal(t, models.PlanSourceFallback, plan.Source)
}

func TestPlanExecution_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completer := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return nil, ctx.Err()
	})

	_, err := New(completer, allUnits).PlanExecution(ctx, fullProject())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanExecution_InvalidProject(t *testing.T) {
	_, err := New(nil, allUnits).PlanExecution(context.Background(), &models.ProjectConfig{})
	assert.Error(t, err)
}

func TestPlanExecution_NoUnits(t *testing.T) {
	_, err := New(nil, fakeRegistry{}).PlanExecution(context.Background(), fullProject())
	assert.ErrorIs(t, err, ErrNoUnits)
}
