package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseProject(t *testing.T) {
	data := []byte(`
name: shop
description: online store
database: postgres
features:
  auth: true
  ui: true
  integrations: [stripe, sendgrid]
  deploy: true
env: [SESSION_SECRET]
`)
	project, err := ParseProject(data)
	if err != nil {
		t.Fatalf("ParseProject failed: %v", err)
	}
	if project.Name != "shop" || project.Database != "postgres" {
		t.Errorf("unexpected project: %+v", project)
	}
	if !project.Features.Auth || !project.Features.UI || !project.Features.Deploy {
		t.Errorf("expected all feature flags set, got %+v", project.Features)
	}
	if len(project.Features.Integrations) != 2 || project.Features.Integrations[1] != "sendgrid" {
		t.Errorf("unexpected integrations: %v", project.Features.Integrations)
	}
	if len(project.Env) != 1 || project.Env[0] != "SESSION_SECRET" {
		t.Errorf("unexpected env: %v", project.Env)
	}
}

func TestParseProject_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "empty project description"},
		{"missing name", "description: nameless\n", "project name is required"},
		{"unknown field", "name: shop\nfeatures:\n  payments: true\n", "payments"},
		{"bad yaml", "name: [unterminated\n", "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProject([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultProjectFile)
	if err := os.WriteFile(path, []byte("name: blog\n"), 0644); err != nil {
		t.Fatal(err)
	}

	project, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}
	if project.Name != "blog" {
		t.Errorf("expected blog, got %s", project.Name)
	}

	if _, err := LoadProject(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
