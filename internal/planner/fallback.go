package planner

import (
	"fmt"

	"github.com/ShayCichocki/forge/pkg/models"
)

var defaultDescriptions = map[models.UnitType]string{
	models.UnitData:         "Design the data layer: schema, migrations and repository code.",
	models.UnitAuth:         "Add authentication and authorization on top of the data layer.",
	models.UnitCore:         "Implement the business logic and API handlers.",
	models.UnitUI:           "Build the user interface against the core API.",
	models.UnitIntegrations: "Implement clients for the requested third-party integrations.",
	models.UnitDeploy:       "Produce build and deployment configuration.",
}

// stages returns the fixed stage ordering for a project. Each inner slice
// runs in parallel; a stage starts once the previous non-empty stage is done.
func stages(cfg *models.ProjectConfig) [][]models.UnitType {
	out := [][]models.UnitType{{models.UnitData}}
	if cfg.Features.Auth {
		out = append(out, []models.UnitType{models.UnitAuth})
	}
	out = append(out, []models.UnitType{models.UnitCore})

	var fanOut []models.UnitType
	if cfg.Features.UI {
		fanOut = append(fanOut, models.UnitUI)
	}
	if len(cfg.Features.Integrations) > 0 {
		fanOut = append(fanOut, models.UnitIntegrations)
	}
	out = append(out, fanOut)

	if cfg.Features.Deploy {
		out = append(out, []models.UnitType{models.UnitDeploy})
	}
	return out
}

// FallbackPlan builds the deterministic rule-based plan for a project. Task
// IDs equal the unit type. Each task depends on every task of the nearest
// earlier stage that produced tasks. Types missing from the registry are
// skipped. Earlier stages get higher priority.
func FallbackPlan(cfg *models.ProjectConfig, registry Registry) []*models.Task {
	all := stages(cfg)

	var tasks []*models.Task
	var previous []string
	for i, stage := range all {
		var current []string
		for _, unitType := range stage {
			if registry != nil && !registry.Has(unitType) {
				continue
			}
			description := defaultDescriptions[unitType]
			if cfg.Name != "" {
				description = fmt.Sprintf("%s Project: %s.", description, cfg.Name)
			}
			tasks = append(tasks, &models.Task{
				ID:          string(unitType),
				Type:        unitType,
				Description: description,
				DependsOn:   append([]string(nil), previous...),
				Priority:    (len(all) - i) * 10,
				Status:      models.TaskStatusPending,
			})
			current = append(current, string(unitType))
		}
		if len(current) > 0 {
			previous = current
		}
	}
	return tasks
}
