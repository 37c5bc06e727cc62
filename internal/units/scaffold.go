package units

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/forge/pkg/models"
)

// ScaffoldUnit produces deterministic placeholder output without calling a
// model. Dry runs use it to exercise the whole pipeline offline.
type ScaffoldUnit struct {
	unitType models.UnitType
}

// NewScaffoldUnit creates a scaffold unit for a type.
func NewScaffoldUnit(unitType models.UnitType) *ScaffoldUnit {
	return &ScaffoldUnit{unitType: unitType}
}

// Generate returns the scaffold files for the unit type.
func (u *ScaffoldUnit) Generate(ctx context.Context, snap models.Snapshot) (*models.UnitOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := slug(snap.Project.Name)
	var out models.UnitOutput
	add := func(path, content string) {
		out.Files = append(out.Files, models.FileArtifact{Path: path, Content: content, TaskID: snap.Task.ID})
	}

	switch u.unitType {
	case models.UnitData:
		db := snap.Project.Database
		if db == "" {
			db = "postgres"
		}
		add("db/schema.sql", fmt.Sprintf("-- %s schema (%s)\nCREATE TABLE IF NOT EXISTS records (\n  id TEXT PRIMARY KEY,\n  created_at TIMESTAMP NOT NULL\n);\n", name, db))
		out.EnvVars = []string{"DATABASE_URL"}
	case models.UnitAuth:
		add("internal/auth/auth.go", "package auth\n\n// Authenticate validates a bearer token.\nfunc Authenticate(token string) bool {\n\treturn token != \"\"\n}\n")
		out.EnvVars = []string{"JWT_SECRET"}
	case models.UnitCore:
		add("cmd/server/main.go", fmt.Sprintf("package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(%q)\n}\n", name))
		out.EnvVars = []string{"PORT"}
	case models.UnitUI:
		add("web/index.html", fmt.Sprintf("<!doctype html>\n<title>%s</title>\n<main id=\"app\"></main>\n", snap.Project.Name))
	case models.UnitIntegrations:
		integrations := append([]string(nil), snap.Project.Features.Integrations...)
		sort.Strings(integrations)
		for _, integration := range integrations {
			pkg := slug(integration)
			add(fmt.Sprintf("internal/integrations/%s/client.go", pkg),
				fmt.Sprintf("package %s\n\n// Client talks to %s.\ntype Client struct{}\n", strings.ReplaceAll(pkg, "-", ""), integration))
			out.EnvVars = append(out.EnvVars, strings.ToUpper(strings.ReplaceAll(pkg, "-", "_"))+"_API_KEY")
		}
		if len(integrations) == 0 {
			add("internal/integrations/doc.go", "// Package integrations holds third-party clients.\npackage integrations\n")
		}
	case models.UnitDeploy:
		add("Dockerfile", "FROM golang:1.24 AS build\nWORKDIR /src\nCOPY . .\nRUN go build -o /app ./cmd/server\n\nFROM gcr.io/distroless/base\nCOPY --from=build /app /app\nENTRYPOINT [\"/app\"]\n")
		add("docker-compose.yml", fmt.Sprintf("services:\n  %s:\n    build: .\n    env_file: .env\n", name))
	default:
		add(fmt.Sprintf("%s/README.md", slug(string(u.unitType))), fmt.Sprintf("# %s\n\n%s\n", u.unitType, snap.Task.Description))
	}

	out.Summary = fmt.Sprintf("scaffolded %d %s file(s)", len(out.Files), u.unitType)
	return &out, nil
}

// slug lowercases s and replaces runs of non-alphanumerics with a dash.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "app"
	}
	return out
}
