package main

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/internal/config"
	"github.com/ShayCichocki/forge/internal/coordinator"
	"github.com/ShayCichocki/forge/internal/llm"
	"github.com/ShayCichocki/forge/internal/logging"
	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/notify"
	"github.com/ShayCichocki/forge/internal/persist"
	"github.com/ShayCichocki/forge/internal/planner"
	"github.com/ShayCichocki/forge/internal/scheduler"
	"github.com/ShayCichocki/forge/internal/units"
)

// stackOptions selects how the run stack is assembled.
type stackOptions struct {
	root      string
	dryRun    bool
	noPersist bool
	notifier  notify.Notifier
	observer  memory.Observer
}

// stack is every long-lived component a run needs.
type stack struct {
	planner  *planner.Planner
	registry *units.Registry
	store    *memory.Store
	db       *persist.SQLite
	client   *llm.Client
	coord    *coordinator.Coordinator
}

// newLogger builds the logger for a command. When a TUI owns the terminal,
// output goes to a file.
func newLogger(cfg *config.Config, tui bool) (*zap.Logger, error) {
	lc := logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}
	if tui && lc.File == "" {
		lc.File = config.DefaultLogPath()
	}
	return logging.New(lc)
}

// newCompleter returns nil for dry runs so the planner uses its fallback.
func newCompleter(ctx context.Context, cfg *config.Config, dryRun bool, logger *zap.Logger) (*llm.Client, error) {
	if dryRun {
		return nil, nil
	}

	var apiKey string
	if config.NeedsAPIKey(cfg) {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w (set ANTHROPIC_API_KEY or use --dry-run)", err)
		}
		if err := config.ValidateAPIKey(key); err != nil {
			return nil, err
		}
		apiKey = key
	}

	client, err := llm.NewClient(ctx, llm.ClientConfig{
		Model:             anthropic.Model(cfg.Anthropic.Model),
		APIKey:            apiKey,
		UseAWSBedrock:     cfg.Anthropic.UseBedrock,
		AWSRegion:         cfg.Anthropic.AWSRegion,
		AWSProfile:        cfg.Anthropic.AWSProfile,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
		Burst:             cfg.Anthropic.Burst,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("model client ready", zap.String("model", string(client.Model())), zap.Bool("bedrock", cfg.Anthropic.UseBedrock))
	return client, nil
}

// openArchiveDB opens the configured archive database, or the project-local
// one when no path is configured.
func openArchiveDB(cfg *config.Config, root string) (*persist.SQLite, error) {
	path := cfg.Persist.Path
	if path == "" {
		path = persist.ProjectDBPath(root)
	}
	return persist.OpenSQLite(path)
}

// newStore builds an empty context store from the memory configuration.
func newStore(cfg *config.Config, logger *zap.Logger, observer memory.Observer) (*memory.Store, error) {
	opts := []memory.Option{memory.WithLogger(logger)}
	if observer != nil {
		opts = append(opts, memory.WithObserver(observer))
	}
	return memory.NewStore(cfg.Memory.StoreConfig(), opts...)
}

// buildStack wires planner, units, store, persistence and coordinator.
func buildStack(ctx context.Context, cfg *config.Config, opts stackOptions, logger *zap.Logger) (*stack, error) {
	st := &stack{}

	client, err := newCompleter(ctx, cfg, opts.dryRun, logger)
	if err != nil {
		return nil, err
	}
	st.client = client

	// A nil *llm.Client must not become a non-nil Completer.
	var completer llm.Completer
	if client != nil {
		completer = client
		st.registry = units.NewPromptRegistry(client, logger)
	} else {
		st.registry = units.NewScaffoldRegistry()
	}
	st.planner = planner.New(completer, st.registry, planner.WithLogger(logger))

	st.store, err = newStore(cfg, logger, opts.observer)
	if err != nil {
		return nil, err
	}

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithNotifier(opts.notifier),
		coordinator.WithArchiveKey(cfg.Persist.Key),
		coordinator.WithSchedulerOptions(
			scheduler.WithMaxConcurrency(cfg.Scheduler.MaxConcurrency),
			scheduler.WithTaskTimeout(cfg.Scheduler.TaskTimeout),
		),
	}
	if !opts.noPersist {
		st.db, err = openArchiveDB(cfg, opts.root)
		if err != nil {
			return nil, fmt.Errorf("open archive database: %w", err)
		}
		coordOpts = append(coordOpts, coordinator.WithPersister(st.db))
	}

	st.coord, err = coordinator.New(coordinator.RequiredConfig{
		Planner: st.planner,
		Units:   st.registry,
		Store:   st.store,
	}, coordOpts...)
	if err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// tracker returns the LLM usage tracker, or nil for dry runs.
func (s *stack) tracker() *llm.TokenTracker {
	if s.client == nil {
		return nil
	}
	return s.client.Tracker()
}

// Close releases the archive database.
func (s *stack) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
