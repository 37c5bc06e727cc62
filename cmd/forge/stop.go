package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/forge/internal/signals"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running generation in this project to abort",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot(projectPath)
		if err != nil {
			return err
		}
		if err := signals.RequestStop(root); err != nil {
			return fmt.Errorf("write stop signal: %w", err)
		}
		printStatus(cmd.OutOrStdout(), "✓", "Stop requested", color.FgGreen)
		return nil
	},
}
