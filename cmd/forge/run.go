package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/forge/internal/config"
	"github.com/ShayCichocki/forge/internal/coordinator"
	"github.com/ShayCichocki/forge/internal/logging"
	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/metrics"
	"github.com/ShayCichocki/forge/internal/notify"
	"github.com/ShayCichocki/forge/internal/signals"
	"github.com/ShayCichocki/forge/internal/tui"
	"github.com/ShayCichocki/forge/pkg/models"
)

// eventBuffer sizes the channel between the run and the TUI.
const eventBuffer = 256

// runOptions are the `forge run` flags.
type runOptions struct {
	projectPath    string
	outDir         string
	dryRun         bool
	useTUI         bool
	noPersist      bool
	maxConcurrency int
	taskTimeout    time.Duration
	metricsAddr    string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate the project described by the project file",
	Long: `Plan the project, run every stage, and write the generated files.

Independent stages run in parallel up to scheduler.max_concurrency. A
failing stage blocks every stage that depends on it; the rest of the run
continues. The run exits non-zero when any stage failed or was blocked.

Create .forge/signals/stop (or run 'forge stop') to abort a running
generation from another terminal.

With --dry-run no model is called: the built-in plan and offline
scaffold units are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		opts := runOpts
		opts.projectPath = projectPath
		if cmd.Flags().Changed("max-concurrency") {
			cfg.Scheduler.MaxConcurrency = opts.maxConcurrency
		}
		if cmd.Flags().Changed("task-timeout") {
			cfg.Scheduler.TaskTimeout = opts.taskTimeout
		}
		if opts.metricsAddr == "" {
			opts.metricsAddr = cfg.Metrics.Addr
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runProject(ctx, cfg, opts, cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.outDir, "out", "o", "out", "Output directory")
	runCmd.Flags().BoolVar(&runOpts.dryRun, "dry-run", false, "Use the built-in plan and offline scaffold units")
	runCmd.Flags().BoolVar(&runOpts.useTUI, "tui", false, "Show a live progress view")
	runCmd.Flags().BoolVar(&runOpts.noPersist, "no-persist", false, "Do not load or save the cross-run context archive")
	runCmd.Flags().IntVar(&runOpts.maxConcurrency, "max-concurrency", 0, "Override scheduler.max_concurrency")
	runCmd.Flags().DurationVar(&runOpts.taskTimeout, "task-timeout", 0, "Override scheduler.task_timeout (0 disables)")
	runCmd.Flags().StringVar(&runOpts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

// runProject executes one run and writes its output.
func runProject(ctx context.Context, cfg *config.Config, opts runOptions, w io.Writer) error {
	project, err := config.LoadProject(opts.projectPath)
	if err != nil {
		return err
	}
	root, err := projectRoot(opts.projectPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, opts.useTUI)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	watcher, err := signals.NewStopWatcher(root, logger)
	if err != nil {
		return fmt.Errorf("watch stop signal: %w", err)
	}
	defer watcher.Close()
	ctx, cancelStop := watcher.WithStop(ctx)
	defer cancelStop()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	collector := metrics.New()
	notifiers := notify.Multi{collector}
	observers := memory.Observers{collector}

	var program *tea.Program
	var emitter *notify.EventEmitter
	if opts.useTUI {
		program, _ = tui.NewRunProgram(cancelRun)
		emitter = notify.NewEventEmitter(eventBuffer, logger)
		defer emitter.Close()
		notifiers = append(notifiers, emitter, notify.NewLogNotifier(logger))
		observers = append(observers, tui.MemoryObserver(program.Send))
	} else {
		notifiers = append(notifiers, consoleNotifier(w))
	}

	st, err := buildStack(ctx, cfg, stackOptions{
		root:      root,
		dryRun:    opts.dryRun,
		noPersist: opts.noPersist,
		notifier:  notifiers,
		observer:  observers,
	}, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	g, gctx := errgroup.WithContext(runCtx)

	if opts.metricsAddr != "" {
		g.Go(func() error {
			return collector.Serve(gctx, opts.metricsAddr, logger)
		})
	}

	var out *models.GeneratedOutput
	var runErr error
	g.Go(func() error {
		if program == nil {
			defer cancelRun()
		}
		out, runErr = st.coord.Run(gctx, project)
		if program != nil {
			done := tui.DoneMsg{Err: runErr}
			if out != nil {
				done.Summary = runSummary(out)
			}
			program.Send(done)
		}
		return nil
	})

	if program != nil {
		g.Go(func() error {
			tui.Forward(gctx, emitter.Events(), program.Send)
			return nil
		})
		g.Go(func() error {
			defer cancelRun()
			_, err := program.Run()
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if watcher.Stopped() {
		logger.Info("run stopped by signal file")
	}
	if runErr != nil {
		if errors.Is(runErr, coordinator.ErrRunInProgress) {
			return runErr
		}
		return fmt.Errorf("run failed: %w", runErr)
	}

	written, err := coordinator.WriteFiles(opts.outDir, out)
	if err != nil {
		return err
	}
	pruneHistory(ctx, st, cfg, logger)

	printSummary(w, out, written, opts.outDir, st.tracker())
	if !out.Succeeded() {
		return errTasksFailed
	}
	return nil
}

// pruneHistory trims the archive snapshot history to persist.keep.
func pruneHistory(ctx context.Context, st *stack, cfg *config.Config, logger *zap.Logger) {
	if st.db == nil || cfg.Persist.Keep <= 0 {
		return
	}
	removed, err := st.db.Prune(context.WithoutCancel(ctx), cfg.Persist.Key, cfg.Persist.Keep)
	if err != nil {
		logger.Warn("prune archive history failed", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Debug("archive history pruned", zap.Int64("removed", removed))
	}
}
