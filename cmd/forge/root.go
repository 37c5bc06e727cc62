package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/forge/internal/config"
)

var (
	configPath  string
	projectPath string
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Multi-stage application generator",
	Long: `forge turns a short project description into a generated application.

A planner splits the project into stages (data, auth, core, ui,
integrations, deploy), a scheduler runs independent stages in parallel
under a concurrency cap, and a token-budgeted context store carries
decisions from earlier stages into later ones and across runs.

Configuration is read from ~/.config/forge/config.yaml, then .forge.yaml
in the project or a parent directory, then FORGE_* environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: layered user/project config)")
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", config.DefaultProjectFile, "Project description file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads --config when given, the layered configuration otherwise.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// projectRoot is the directory holding the project description. The
// archive database and signal files live beneath it.
func projectRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve project path: %w", err)
	}
	return filepath.Dir(abs), nil
}

// errTasksFailed makes the process exit non-zero after a partial run. The
// summary has already been printed.
var errTasksFailed = errors.New("one or more tasks failed")
