package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/forge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View forge configuration.

Configuration is stored at ~/.config/forge/config.yaml
Project-specific overrides can be placed in .forge.yaml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		displayAllConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the user config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(config.Default()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", config.GetUserConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	key, _ := config.GetAPIKey(cfg)

	fmt.Fprintf(w, "user config: %s\n", config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Fprintf(w, "project config: %s\n", p)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "anthropic.api_key: %s (%s)\n", config.MaskAPIKey(key), config.GetAPIKeySource(cfg))
	fmt.Fprintf(w, "anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Fprintf(w, "anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	if cfg.Anthropic.UseBedrock {
		fmt.Fprintf(w, "anthropic.aws_region: %s\n", cfg.Anthropic.AWSRegion)
		fmt.Fprintf(w, "anthropic.aws_profile: %s\n", cfg.Anthropic.AWSProfile)
	}
	fmt.Fprintf(w, "anthropic.requests_per_second: %g\n", cfg.Anthropic.RequestsPerSecond)
	fmt.Fprintf(w, "anthropic.burst: %d\n", cfg.Anthropic.Burst)
	fmt.Fprintf(w, "anthropic.max_tokens: %d\n", cfg.Anthropic.MaxTokens)
	fmt.Fprintf(w, "scheduler.max_concurrency: %d\n", cfg.Scheduler.MaxConcurrency)
	fmt.Fprintf(w, "scheduler.task_timeout: %s\n", cfg.Scheduler.TaskTimeout)
	fmt.Fprintf(w, "memory.max_tokens: %d\n", cfg.Memory.MaxTokens)
	fmt.Fprintf(w, "memory.chars_per_token: %d\n", cfg.Memory.CharsPerToken)
	fmt.Fprintf(w, "memory.importance_weight: %g\n", cfg.Memory.ImportanceWeight)
	fmt.Fprintf(w, "memory.recency_window: %s\n", cfg.Memory.RecencyWindow)
	fmt.Fprintf(w, "memory.fresh_window: %s\n", cfg.Memory.FreshWindow)
	fmt.Fprintf(w, "memory.prune_target: %g\n", cfg.Memory.PruneTarget)
	fmt.Fprintf(w, "memory.archive_threshold: %d\n", cfg.Memory.ArchiveThreshold)
	fmt.Fprintf(w, "memory.unit_importance: %d\n", cfg.Memory.UnitImportance)
	fmt.Fprintf(w, "memory.archive_importance: %d\n", cfg.Memory.ArchiveImportance)
	persistPath := cfg.Persist.Path
	if persistPath == "" {
		persistPath = "(project .forge/forge.db)"
	}
	fmt.Fprintf(w, "persist.path: %s\n", persistPath)
	fmt.Fprintf(w, "persist.key: %s\n", cfg.Persist.Key)
	fmt.Fprintf(w, "persist.keep: %d\n", cfg.Persist.Keep)
	fmt.Fprintf(w, "log.level: %s\n", cfg.Log.Level)
	fmt.Fprintf(w, "log.format: %s\n", cfg.Log.Format)
	fmt.Fprintf(w, "log.file: %s\n", cfg.Log.File)
	fmt.Fprintf(w, "metrics.addr: %s\n", cfg.Metrics.Addr)
}
