package coordinator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/scheduler"
	"github.com/ShayCichocki/forge/pkg/models"
)

// Names of the files generated from the run itself.
const (
	ManifestFile    = "forge-manifest.json"
	ReadmeFile      = "README.md"
	EnvTemplateFile = ".env.example"
)

type manifest struct {
	Project     string               `json:"project"`
	Description string               `json:"description,omitempty"`
	RunID       string               `json:"run_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	PlanSource  models.PlanSource    `json:"plan_source"`
	Files       []manifestFile       `json:"files"`
	Failures    []models.TaskFailure `json:"failures,omitempty"`
}

type manifestFile struct {
	Path string `json:"path"`
	Size int    `json:"size"`
	Task string `json:"task"`
}

func assemble(runID string, project *models.ProjectConfig, plan *models.ExecutionPlan, res *scheduler.Result, st memory.Stats, now time.Time) (*models.GeneratedOutput, error) {
	man, err := renderManifest(runID, project, plan, res, now)
	if err != nil {
		return nil, err
	}

	out := &models.GeneratedOutput{
		RunID:       runID,
		Project:     *project,
		Plan:        plan,
		Files:       res.Files,
		Manifest:    man,
		Readme:      renderReadme(project, res),
		EnvTemplate: renderEnvTemplate(project, res.EnvVars),
		Failures:    res.Failures,
		Stats: models.RunStats{
			TasksTotal:     len(res.Tasks),
			TasksCompleted: len(res.Completed),
			FilesGenerated: len(res.Files),
			ContextEntries: st.ActiveEntries,
			ArchiveEntries: st.ArchiveEntries,
			TokensUsed:     st.TotalTokens,
			Utilization:    st.Utilization,
		},
	}
	for _, f := range res.Failures {
		if f.Blocked {
			out.Stats.TasksBlocked++
		} else {
			out.Stats.TasksFailed++
		}
	}
	return out, nil
}

func renderManifest(runID string, project *models.ProjectConfig, plan *models.ExecutionPlan, res *scheduler.Result, now time.Time) (string, error) {
	m := manifest{
		Project:     project.Name,
		Description: project.Description,
		RunID:       runID,
		GeneratedAt: now.UTC(),
		PlanSource:  plan.Source,
		Files:       make([]manifestFile, 0, len(res.Files)),
		Failures:    res.Failures,
	}
	for _, f := range res.Files {
		m.Files = append(m.Files, manifestFile{Path: f.Path, Size: len(f.Content), Task: f.TaskID})
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return string(data) + "\n", nil
}

func renderReadme(project *models.ProjectConfig, res *scheduler.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", project.Name)
	if project.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", project.Description)
	}
	if project.Database != "" {
		fmt.Fprintf(&b, "Database: %s\n\n", project.Database)
	}

	fileCount := make(map[string]int)
	for _, f := range res.Files {
		fileCount[f.TaskID]++
	}

	b.WriteString("## Phases\n\n")
	b.WriteString("| Task | Unit | Status | Files | Summary |\n")
	b.WriteString("|------|------|--------|-------|---------|\n")
	for _, t := range res.Tasks {
		summary := strings.ReplaceAll(res.Summaries[t.ID], "|", "\\|")
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n", t.ID, t.Type, t.Status, fileCount[t.ID], summary)
	}

	if len(res.Failures) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, f := range res.Failures {
			if f.Blocked {
				fmt.Fprintf(&b, "- `%s` blocked by `%s`\n", f.TaskID, f.BlockedBy)
			} else {
				fmt.Fprintf(&b, "- `%s`: %s\n", f.TaskID, f.Reason)
			}
		}
	}

	b.WriteString("\n## Configuration\n\n")
	fmt.Fprintf(&b, "Copy `%s` to `.env` and fill in the values.\n", EnvTemplateFile)
	return b.String()
}

func renderEnvTemplate(project *models.ProjectConfig, unitVars []string) string {
	seen := make(map[string]bool)
	var vars []string
	for _, v := range append(append([]string(nil), unitVars...), project.Env...) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		vars = append(vars, v)
	}
	sort.Strings(vars)

	var b strings.Builder
	fmt.Fprintf(&b, "# Environment for %s\n", project.Name)
	for _, v := range vars {
		fmt.Fprintf(&b, "%s=\n", v)
	}
	return b.String()
}
