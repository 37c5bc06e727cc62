package units

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/forge/internal/llm"
	"github.com/ShayCichocki/forge/pkg/models"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	noop := UnitFunc(func(ctx context.Context, s models.Snapshot) (*models.UnitOutput, error) {
		return &models.UnitOutput{}, nil
	})

	require.NoError(t, r.Register(models.UnitCore, noop))
	require.NoError(t, r.Register(models.UnitData, noop))
	require.NoError(t, r.Register(models.UnitCore, noop))
	assert.Error(t, r.Register("", noop))
	assert.Error(t, r.Register(models.UnitUI, nil))

	assert.Equal(t, []models.UnitType{models.UnitCore, models.UnitData}, r.Types())
	assert.True(t, r.Has(models.UnitData))
	assert.False(t, r.Has(models.UnitUI))

	_, ok := r.Get(models.UnitDeploy)
	assert.False(t, ok)
}

func TestParseOutput(t *testing.T) {
	text := "Here you go:\n```json\n" + `{"files":[{"path":"./db/schema.sql","content":"CREATE TABLE t();"}],"env":["DATABASE_URL"],"summary":"schema"}` + "\n```"

	out, err := ParseOutput(text)
	require.NoError(t, err)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "db/schema.sql", out.Files[0].Path)
	assert.Equal(t, []string{"DATABASE_URL"}, out.EnvVars)
	assert.Equal(t, "schema", out.Summary)
}

func TestParseOutput_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no object", "sorry, I cannot"},
		{"invalid json", "{files: nope}"},
		{"no files", `{"files":[]}`},
		{"escaping path", `{"files":[{"path":"../etc/passwd","content":""}]}`},
		{"absolute path", `{"files":[{"path":"/etc/passwd","content":""}]}`},
		{"empty path", `{"files":[{"path":"  ","content":""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOutput(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestPromptUnit_Generate(t *testing.T) {
	var captured llm.Request
	completer := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		captured = req
		return &llm.Response{Text: `{"files":[{"path":"api/handlers.go","content":"package api"}],"env":["PORT"]}`}, nil
	})

	unit := NewPromptUnit(completer, models.UnitCore, WithMaxTokens(2048))
	snap := models.Snapshot{
		RunID:     "run-1",
		Task:      models.Task{ID: "core", Type: models.UnitCore, Description: "build the API"},
		Project:   models.ProjectConfig{Name: "shop", Description: "an online shop", Database: "sqlite"},
		Completed: []string{"data"},
		Files:     []string{"db/schema.sql"},
		Context: []*models.ContextEntry{
			{Key: "output:data", UnitType: models.UnitData, Payload: []byte(`{"tables":["orders"]}`)},
		},
	}

	out, err := unit.Generate(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "core", out.Files[0].TaskID)

	assert.Equal(t, int64(2048), captured.MaxTokens)
	assert.NotEmpty(t, captured.SystemPrompt)
	assert.Contains(t, captured.Prompt, "build the API")
	assert.Contains(t, captured.Prompt, "sqlite")
	assert.Contains(t, captured.Prompt, "db/schema.sql")
	assert.Contains(t, captured.Prompt, `"orders"`)
	assert.Contains(t, captured.Prompt, "business logic")
}

func TestPromptUnit_PropagatesErrors(t *testing.T) {
	boom := errors.New("overloaded")
	failing := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return nil, boom
	})
	_, err := NewPromptUnit(failing, models.UnitUI).Generate(context.Background(), models.Snapshot{Task: models.Task{ID: "ui"}})
	assert.True(t, errors.Is(err, boom))

	garbage := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: "I'd rather not"}, nil
	})
	_, err = NewPromptUnit(garbage, models.UnitUI).Generate(context.Background(), models.Snapshot{Task: models.Task{ID: "ui"}})
	assert.Error(t, err)
}

func TestScaffoldRegistry_CoversStandardUnits(t *testing.T) {
	r := NewScaffoldRegistry()
	assert.Equal(t, models.StandardUnits, r.Types())

	project := models.ProjectConfig{
		Name:     "Pet Store!",
		Features: models.Features{Integrations: []string{"stripe", "send-grid"}},
	}
	for _, ut := range models.StandardUnits {
		u, ok := r.Get(ut)
		require.True(t, ok)
		out, err := u.Generate(context.Background(), models.Snapshot{Task: models.Task{ID: string(ut), Type: ut}, Project: project})
		require.NoError(t, err, ut)
		require.NotEmpty(t, out.Files, ut)
		for _, f := range out.Files {
			_, err := CleanPath(f.Path)
			assert.NoError(t, err, f.Path)
			assert.Equal(t, string(ut), f.TaskID)
		}
	}

	integ, _ := r.Get(models.UnitIntegrations)
	out, err := integ.Generate(context.Background(), models.Snapshot{Project: project})
	require.NoError(t, err)
	assert.Equal(t, []string{"SEND_GRID_API_KEY", "STRIPE_API_KEY"}, out.EnvVars)
}

func TestScaffoldUnit_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScaffoldUnit(models.UnitData).Generate(ctx, models.Snapshot{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "pet-store", slug("Pet Store!"))
	assert.Equal(t, "app", slug("!!!"))
	assert.True(t, strings.HasPrefix(slug("  Hello   World "), "hello-world"))
}
