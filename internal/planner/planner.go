// Package planner turns a project configuration into an execution plan,
// asking a planning oracle first and falling back to fixed ordering rules.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/internal/llm"
	"github.com/ShayCichocki/forge/pkg/models"
)

const defaultPlanMaxTokens = 4096

// Planner produces execution plans.
type Planner struct {
	completer llm.Completer
	registry  Registry
	maxTokens int64
	logger    *zap.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMaxTokens caps the oracle response length.
func WithMaxTokens(n int64) Option {
	return func(p *Planner) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// New creates a planner. A nil completer always yields the fallback plan.
func New(completer llm.Completer, registry Registry, opts ...Option) *Planner {
	p := &Planner{
		completer: completer,
		registry:  registry,
		maxTokens: defaultPlanMaxTokens,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("planner")
	return p
}

// PlanExecution returns a plan for the project. Oracle failures and
// unparseable responses are recovered by returning the fallback plan with
// FallbackReason set. Only an invalid project, an empty plan, or context
// cancellation produce an error.
func (p *Planner) PlanExecution(ctx context.Context, cfg *models.ProjectConfig) (*models.ExecutionPlan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}

	if p.completer == nil {
		return p.fallback(cfg, "no planning oracle configured")
	}

	prompt, err := p.render(cfg)
	if err != nil {
		return nil, err
	}

	resp, err := p.completer.Complete(ctx, llm.Request{
		Prompt:       prompt,
		SystemPrompt: planningSystemPrompt,
		MaxTokens:    p.maxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("planning cancelled: %w", ctxErr)
		}
		p.logger.Warn("planning oracle failed, using fallback plan", zap.Error(err))
		return p.fallback(cfg, fmt.Sprintf("oracle error: %v", err))
	}

	switch outcome := Parse(resp.Text, p.registry).(type) {
	case ParsedPlan:
		p.logger.Info("execution plan parsed",
			zap.Int("tasks", len(outcome.Tasks)),
			zap.Int64("tokens", resp.TokensUsed()))
		return &models.ExecutionPlan{Tasks: outcome.Tasks, Source: models.PlanSourceOracle}, nil
	case ParseFailure:
		p.logger.Warn("planning response rejected, using fallback plan", zap.Error(outcome.Err))
		return p.fallback(cfg, outcome.Err.Error())
	default:
		return nil, fmt.Errorf("unexpected plan outcome %T", outcome)
	}
}

func (p *Planner) fallback(cfg *models.ProjectConfig, reason string) (*models.ExecutionPlan, error) {
	tasks := FallbackPlan(cfg, p.registry)
	if len(tasks) == 0 {
		return nil, ErrNoUnits
	}
	p.logger.Info("fallback plan built", zap.Int("tasks", len(tasks)), zap.String("reason", reason))
	return &models.ExecutionPlan{
		Tasks:          tasks,
		Source:         models.PlanSourceFallback,
		FallbackReason: reason,
	}, nil
}

func (p *Planner) render(cfg *models.ProjectConfig) (string, error) {
	projectJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal project: %w", err)
	}

	var types []string
	if p.registry != nil {
		for _, t := range p.registry.Types() {
			types = append(types, "- "+string(t))
		}
	}
	return fmt.Sprintf(planningPrompt, strings.Join(types, "\n"), string(projectJSON)), nil
}
