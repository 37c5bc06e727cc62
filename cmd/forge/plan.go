package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/forge/internal/config"
	"github.com/ShayCichocki/forge/internal/graph"
	"github.com/ShayCichocki/forge/internal/llm"
	"github.com/ShayCichocki/forge/internal/logging"
	"github.com/ShayCichocki/forge/internal/planner"
	"github.com/ShayCichocki/forge/internal/units"
)

var planDryRun bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the execution plan without running it",
	Long: `Ask the planner for an execution plan and print its tasks grouped
into waves that can run in parallel.

With --dry-run the built-in plan is shown without calling a model.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return printPlan(cmd.Context(), cfg, projectPath, planDryRun, cmd.OutOrStdout())
	},
}

func init() {
	planCmd.Flags().BoolVar(&planDryRun, "dry-run", false, "Show the built-in plan without calling a model")
}

func printPlan(ctx context.Context, cfg *config.Config, path string, dryRun bool, w io.Writer) error {
	project, err := config.LoadProject(path)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	client, err := newCompleter(ctx, cfg, dryRun, logger)
	if err != nil {
		return err
	}
	var completer llm.Completer
	registry := units.NewScaffoldRegistry()
	if client != nil {
		completer = client
		registry = units.NewPromptRegistry(client, logger)
	}

	plan, err := planner.New(completer, registry, planner.WithLogger(logger)).PlanExecution(ctx, project)
	if err != nil {
		return err
	}

	g := graph.New()
	if err := g.Build(plan.Tasks); err != nil {
		return fmt.Errorf("plan is not schedulable: %w", err)
	}

	fmt.Fprintf(w, "%s %s (%s", color.New(color.Bold).Sprint("Plan for"), project.Name, plan.Source)
	if plan.FallbackReason != "" {
		fmt.Fprintf(w, ": %s", plan.FallbackReason)
	}
	fmt.Fprintln(w, ")")

	for i, wave := range g.Levels() {
		fmt.Fprintf(w, "\n%s\n", color.CyanString("Wave %d", i+1))
		for _, id := range wave {
			t := g.Task(id)
			deps := "none"
			if len(t.DependsOn) > 0 {
				deps = strings.Join(t.DependsOn, ", ")
			}
			fmt.Fprintf(w, "  %-14s %-13s priority %-3d after: %s\n", t.ID, t.Type, t.Priority, deps)
			if t.Description != "" {
				fmt.Fprintf(w, "    %s\n", t.Description)
			}
		}
	}

	if cycle := g.FindCycle(); cycle != nil {
		fmt.Fprintf(w, "\n%s dependency cycle: %s\n", color.RedString("✗"), strings.Join(cycle, " -> "))
	}
	return nil
}
