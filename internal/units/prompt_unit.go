package units

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/internal/llm"
	"github.com/ShayCichocki/forge/pkg/models"
)

// PromptUnit generates output by prompting a completion service.
type PromptUnit struct {
	completer    llm.Completer
	instructions string
	maxTokens    int64
	logger       *zap.Logger
}

// PromptUnitOption configures a PromptUnit.
type PromptUnitOption func(*PromptUnit)

// WithInstructions replaces the stage instructions.
func WithInstructions(instructions string) PromptUnitOption {
	return func(u *PromptUnit) {
		u.instructions = instructions
	}
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int64) PromptUnitOption {
	return func(u *PromptUnit) {
		u.maxTokens = n
	}
}

// WithUnitLogger sets the logger.
func WithUnitLogger(logger *zap.Logger) PromptUnitOption {
	return func(u *PromptUnit) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// NewPromptUnit creates a unit for the given type. Built-in types get
// default stage instructions.
func NewPromptUnit(completer llm.Completer, unitType models.UnitType, opts ...PromptUnitOption) *PromptUnit {
	u := &PromptUnit{
		completer:    completer,
		instructions: stageInstructions[unitType],
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.instructions == "" {
		u.instructions = fmt.Sprintf("Produce the %s stage of the project.", unitType)
	}
	u.logger = u.logger.Named("unit").With(zap.String("unit", string(unitType)))
	return u
}

// Generate renders the prompt, calls the completer, and parses the reply.
func (u *PromptUnit) Generate(ctx context.Context, snap models.Snapshot) (*models.UnitOutput, error) {
	prompt, err := u.render(snap)
	if err != nil {
		return nil, err
	}

	resp, err := u.completer.Complete(ctx, llm.Request{
		Prompt:       prompt,
		SystemPrompt: unitSystemPrompt,
		MaxTokens:    u.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", snap.Task.ID, err)
	}

	out, err := ParseOutput(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("parse %s output: %w", snap.Task.ID, err)
	}
	for i := range out.Files {
		out.Files[i].TaskID = snap.Task.ID
	}

	u.logger.Debug("unit output parsed",
		zap.String("task_id", snap.Task.ID),
		zap.Int("files", len(out.Files)),
		zap.Int64("tokens", resp.TokensUsed()))
	return out, nil
}

func (u *PromptUnit) render(snap models.Snapshot) (string, error) {
	type contextItem struct {
		Key     string          `json:"key"`
		Unit    string          `json:"unit,omitempty"`
		Payload json.RawMessage `json:"payload"`
	}
	items := make([]contextItem, 0, len(snap.Context))
	for _, e := range snap.Context {
		items = append(items, contextItem{Key: e.Key, Unit: string(e.UnitType), Payload: e.Payload})
	}
	contextJSON, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}

	database := snap.Project.Database
	if database == "" {
		database = "unspecified"
	}
	completed := "none"
	if len(snap.Completed) > 0 {
		completed = strings.Join(snap.Completed, ", ")
	}
	files := "(none)"
	if len(snap.Files) > 0 {
		files = "- " + strings.Join(snap.Files, "\n- ")
	}

	return fmt.Sprintf(unitPrompt,
		u.instructions,
		snap.Project.Name,
		snap.Project.Description,
		database,
		snap.Task.Description,
		completed,
		files,
		string(contextJSON),
	), nil
}
