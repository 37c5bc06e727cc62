package units

import (
	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/internal/llm"
	"github.com/ShayCichocki/forge/pkg/models"
)

// NewPromptRegistry registers a PromptUnit for every built-in unit type.
func NewPromptRegistry(completer llm.Completer, logger *zap.Logger) *Registry {
	r := NewRegistry()
	for _, t := range models.StandardUnits {
		// Register only fails on empty types or nil units.
		_ = r.Register(t, NewPromptUnit(completer, t, WithUnitLogger(logger)))
	}
	return r
}

// NewScaffoldRegistry registers a ScaffoldUnit for every built-in unit type.
func NewScaffoldRegistry() *Registry {
	r := NewRegistry()
	for _, t := range models.StandardUnits {
		_ = r.Register(t, NewScaffoldUnit(t))
	}
	return r
}
