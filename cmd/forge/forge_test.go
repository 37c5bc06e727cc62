package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/forge/internal/config"
	"github.com/ShayCichocki/forge/internal/coordinator"
	"github.com/ShayCichocki/forge/internal/notify"
	"github.com/ShayCichocki/forge/pkg/models"
)

const shopProject = `name: shop
description: online store
features:
  auth: true
  ui: true
  integrations: [stripe]
  deploy: true
env: [SESSION_SECRET]
`

func writeProject(t *testing.T, content string) (root, path string) {
	t.Helper()
	root = t.TempDir()
	path = filepath.Join(root, config.DefaultProjectFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return root, path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Level = "error"
	return cfg
}

func TestRunProject_DryRun(t *testing.T) {
	root, path := writeProject(t, shopProject)
	outDir := filepath.Join(root, "out")

	var buf bytes.Buffer
	err := runProject(context.Background(), testConfig(t), runOptions{
		projectPath: path,
		outDir:      outDir,
		dryRun:      true,
	}, &buf)
	require.NoError(t, err)

	for _, f := range []string{"db/schema.sql", "cmd/server/main.go", "Dockerfile", coordinator.ManifestFile, coordinator.ReadmeFile, coordinator.EnvTemplateFile} {
		assert.FileExists(t, filepath.Join(outDir, f))
	}
	env, err := os.ReadFile(filepath.Join(outDir, coordinator.EnvTemplateFile))
	require.NoError(t, err)
	assert.Contains(t, string(env), "SESSION_SECRET=")
	assert.Contains(t, string(env), "STRIPE_API_KEY=")

	out := buf.String()
	assert.Contains(t, out, "data completed")
	assert.Contains(t, out, "6 completed, 0 failed, 0 blocked of 6")
	assert.Contains(t, out, "All tasks completed")

	assert.FileExists(t, filepath.Join(root, ".forge", "forge.db"))
}

func TestRunProject_PersistsArchiveAcrossRuns(t *testing.T) {
	root, path := writeProject(t, shopProject)
	cfg := testConfig(t)
	cfg.Persist.Keep = 1

	for i := 0; i < 2; i++ {
		err := runProject(context.Background(), cfg, runOptions{
			projectPath: path,
			outDir:      filepath.Join(root, "out"),
			dryRun:      true,
		}, &bytes.Buffer{})
		require.NoError(t, err)
	}

	a, err := openArchive(context.Background(), cfg, root)
	require.NoError(t, err)
	defer a.db.Close()
	require.True(t, a.found)

	var stats bytes.Buffer
	require.NoError(t, a.printStats(context.Background(), &stats))
	assert.Contains(t, stats.String(), "Snapshots: 1")
	assert.Contains(t, stats.String(),
		fmt.Sprintf("Archived:  %d entries, %d tokens", a.store.Stats().ArchiveEntries, a.store.Archive().Tokens()))

	var found bytes.Buffer
	require.NoError(t, a.search("^output:", &found))
	assert.Contains(t, found.String(), "output:data")
	assert.Contains(t, found.String(), "output:deploy")

	var cleared bytes.Buffer
	require.NoError(t, a.clear(context.Background(), &cleared))
	assert.Contains(t, cleared.String(), "Cleared")
	assert.Zero(t, a.store.Stats().ActiveEntries)
}

func TestRunProject_NoPersist(t *testing.T) {
	root, path := writeProject(t, "name: tiny\n")

	err := runProject(context.Background(), testConfig(t), runOptions{
		projectPath: path,
		outDir:      filepath.Join(root, "out"),
		dryRun:      true,
		noPersist:   true,
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(root, ".forge", "forge.db"))
}

func TestRunProject_InvalidProject(t *testing.T) {
	root, path := writeProject(t, "description: nameless\n")

	err := runProject(context.Background(), testConfig(t), runOptions{
		projectPath: path,
		outDir:      filepath.Join(root, "out"),
		dryRun:      true,
	}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project name is required")
}

func TestRunProject_CancelledBeforeStart(t *testing.T) {
	root, path := writeProject(t, shopProject)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runProject(ctx, testConfig(t), runOptions{
		projectPath: path,
		outDir:      filepath.Join(root, "out"),
		dryRun:      true,
		noPersist:   true,
	}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run failed")
	assert.NoDirExists(t, filepath.Join(root, "out"))
}

func TestRunProject_RequiresAPIKeyWithoutDryRun(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	root, path := writeProject(t, shopProject)

	err := runProject(context.Background(), testConfig(t), runOptions{
		projectPath: path,
		outDir:      filepath.Join(root, "out"),
		noPersist:   true,
	}, &bytes.Buffer{})
	assert.True(t, errors.Is(err, config.ErrNoAPIKey), "expected ErrNoAPIKey, got %v", err)
}

func TestPrintPlan_DryRun(t *testing.T) {
	_, path := writeProject(t, shopProject)

	var buf bytes.Buffer
	require.NoError(t, printPlan(context.Background(), testConfig(t), path, true, &buf))

	out := buf.String()
	assert.Contains(t, out, "Plan for shop (fallback")
	assert.Contains(t, out, "Wave 1")
	assert.Contains(t, out, "Wave 5")
	assert.Contains(t, out, "after: ui, integrations")
	assert.NotContains(t, out, "dependency cycle")
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := consoleNotifier(&buf)

	n.Notify(notify.Event{Type: notify.EventPhaseChanged, Phase: models.PhaseExecuting})
	n.Notify(notify.Event{Type: notify.EventTaskCompleted, TaskID: "data", Duration: 1500 * time.Millisecond, Message: "ok"})
	n.Notify(notify.Event{Type: notify.EventTaskFailed, TaskID: "auth", Error: errors.New("boom")})
	n.Notify(notify.Event{Type: notify.EventTaskFailed, TaskID: "core", Blocked: true, Error: errors.New("upstream")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Phase: executing")
	assert.Contains(t, lines[1], "data completed in 1.5s: ok")
	assert.Contains(t, lines[2], "auth failed: boom")
	assert.Contains(t, lines[3], "core blocked: upstream")
}

func TestPrintSummary_ListsFailures(t *testing.T) {
	out := &models.GeneratedOutput{
		RunID: "run-1",
		Plan:  &models.ExecutionPlan{Source: models.PlanSourceFallback, FallbackReason: "oracle error: down"},
		Failures: []models.TaskFailure{
			{TaskID: "auth", Reason: "boom"},
			{TaskID: "core", Blocked: true, BlockedBy: "auth"},
		},
		Stats: models.RunStats{TasksTotal: 3, TasksCompleted: 1, TasksFailed: 1, TasksBlocked: 1},
	}

	var buf bytes.Buffer
	printSummary(&buf, out, []string{"a.go"}, "out", nil)

	s := buf.String()
	assert.Contains(t, s, "fallback (oracle error: down)")
	assert.Contains(t, s, "1 completed, 1 failed, 1 blocked of 3")
	assert.Contains(t, s, "auth failed: boom")
	assert.Contains(t, s, "core blocked by auth")
	assert.NotContains(t, s, "All tasks completed")
}

func TestDisplayAllConfig_MasksKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")

	var buf bytes.Buffer
	displayAllConfig(&buf, config.Default())

	assert.Contains(t, buf.String(), "anthropic.api_key: sk-ant-...mnop (environment)")
	assert.NotContains(t, buf.String(), "abcdefghijklmnop")
	assert.Contains(t, buf.String(), "scheduler.max_concurrency: 3")
}
