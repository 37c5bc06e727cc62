// Package config handles configuration loading and management for forge.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/forge/internal/memory"
)

// ProjectConfigFile is the per-project override file searched for upward
// from the working directory.
const ProjectConfigFile = ".forge.yaml"

// Config holds all configuration for forge.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Persist   PersistConfig   `mapstructure:"persist"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	UseBedrock        bool    `mapstructure:"use_bedrock"`
	AWSRegion         string  `mapstructure:"aws_region"`
	AWSProfile        string  `mapstructure:"aws_profile"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxTokens         int64   `mapstructure:"max_tokens"`
}

// SchedulerConfig holds task execution limits.
type SchedulerConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
}

// MemoryConfig holds the context store budget and scoring constants.
type MemoryConfig struct {
	MaxTokens         int           `mapstructure:"max_tokens"`
	CharsPerToken     int           `mapstructure:"chars_per_token"`
	ImportanceWeight  float64       `mapstructure:"importance_weight"`
	RecencyWindow     time.Duration `mapstructure:"recency_window"`
	FreshWindow       time.Duration `mapstructure:"fresh_window"`
	PruneTarget       float64       `mapstructure:"prune_target"`
	ArchiveThreshold  int           `mapstructure:"archive_threshold"`
	UnitImportance    int           `mapstructure:"unit_importance"`
	ArchiveImportance int           `mapstructure:"archive_importance"`
}

// StoreConfig converts the section into a memory.Config.
func (m MemoryConfig) StoreConfig() memory.Config {
	cfg := memory.DefaultConfig()
	cfg.MaxTokens = m.MaxTokens
	cfg.CharsPerToken = m.CharsPerToken
	cfg.ImportanceWeight = m.ImportanceWeight
	cfg.RecencyWindow = m.RecencyWindow
	cfg.FreshWindow = m.FreshWindow
	cfg.PruneTarget = m.PruneTarget
	cfg.ArchiveThreshold = m.ArchiveThreshold
	cfg.UnitImportance = m.UnitImportance
	cfg.ArchiveImportance = m.ArchiveImportance
	return cfg
}

// PersistConfig holds cross-run archive storage settings. An empty Path
// means the project-local database.
type PersistConfig struct {
	Path string `mapstructure:"path"`
	Key  string `mapstructure:"key"`
	Keep int    `mapstructure:"keep"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MetricsConfig holds the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, FORGE_SECTION_KEY)
// 2. Project config (.forge.yaml in current directory or parent)
// 3. User config (~/.config/forge/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific file over the defaults.
// Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("forge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "FORGE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Persist.Path = expandEnv(cfg.Persist.Path)
	cfg.Log.File = expandEnv(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrency < 1 {
		return fmt.Errorf("scheduler.max_concurrency must be at least 1, got %d", c.Scheduler.MaxConcurrency)
	}
	if c.Scheduler.TaskTimeout < 0 {
		return fmt.Errorf("scheduler.task_timeout must not be negative, got %v", c.Scheduler.TaskTimeout)
	}
	if err := c.Memory.StoreConfig().Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("anthropic.requests_per_second", cfg.Anthropic.RequestsPerSecond)
	v.Set("anthropic.burst", cfg.Anthropic.Burst)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("scheduler.max_concurrency", cfg.Scheduler.MaxConcurrency)
	v.Set("scheduler.task_timeout", cfg.Scheduler.TaskTimeout.String())
	v.Set("memory.max_tokens", cfg.Memory.MaxTokens)
	v.Set("memory.chars_per_token", cfg.Memory.CharsPerToken)
	v.Set("memory.importance_weight", cfg.Memory.ImportanceWeight)
	v.Set("memory.recency_window", cfg.Memory.RecencyWindow.String())
	v.Set("memory.fresh_window", cfg.Memory.FreshWindow.String())
	v.Set("memory.prune_target", cfg.Memory.PruneTarget)
	v.Set("memory.archive_threshold", cfg.Memory.ArchiveThreshold)
	v.Set("memory.unit_importance", cfg.Memory.UnitImportance)
	v.Set("memory.archive_importance", cfg.Memory.ArchiveImportance)
	v.Set("persist.path", cfg.Persist.Path)
	v.Set("persist.key", cfg.Persist.Key)
	v.Set("persist.keep", cfg.Persist.Keep)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("log.file", cfg.Log.File)
	v.Set("metrics.addr", cfg.Metrics.Addr)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("anthropic.burst", 4)
	v.SetDefault("anthropic.max_tokens", 8192)

	v.SetDefault("scheduler.max_concurrency", 3)
	v.SetDefault("scheduler.task_timeout", "10m")

	v.SetDefault("memory.max_tokens", 100000)
	v.SetDefault("memory.chars_per_token", 4)
	v.SetDefault("memory.importance_weight", 10.0)
	v.SetDefault("memory.recency_window", "50m")
	v.SetDefault("memory.fresh_window", "5m")
	v.SetDefault("memory.prune_target", 0.7)
	v.SetDefault("memory.archive_threshold", 6)
	v.SetDefault("memory.unit_importance", 7)
	v.SetDefault("memory.archive_importance", 9)

	v.SetDefault("persist.path", "")
	v.SetDefault("persist.key", "context-archive")
	v.SetDefault("persist.keep", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.addr", "")
}

// getUserConfigDir returns the XDG config directory for forge.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "forge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "forge")
	}
	return filepath.Join(home, ".config", "forge")
}

// DefaultLogPath returns the XDG state path used for the log file when the
// terminal is taken over by the TUI.
func DefaultLogPath() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "forge", "forge.log")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "forge.log")
	}
	return filepath.Join(home, ".local", "state", "forge", "forge.log")
}

// findProjectConfig searches for .forge.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	mem := memory.DefaultConfig()
	return &Config{
		Anthropic: AnthropicConfig{
			Model:             "claude-sonnet-4-20250514",
			RequestsPerSecond: 2,
			Burst:             4,
			MaxTokens:         8192,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrency: 3,
			TaskTimeout:    10 * time.Minute,
		},
		Memory: MemoryConfig{
			MaxTokens:         mem.MaxTokens,
			CharsPerToken:     mem.CharsPerToken,
			ImportanceWeight:  mem.ImportanceWeight,
			RecencyWindow:     mem.RecencyWindow,
			FreshWindow:       mem.FreshWindow,
			PruneTarget:       mem.PruneTarget,
			ArchiveThreshold:  mem.ArchiveThreshold,
			UnitImportance:    mem.UnitImportance,
			ArchiveImportance: mem.ArchiveImportance,
		},
		Persist: PersistConfig{
			Key:  "context-archive",
			Keep: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
