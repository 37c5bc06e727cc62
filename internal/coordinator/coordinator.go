// Package coordinator drives a generation run end to end: planning,
// scheduled execution and assembly of the aggregate output.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/notify"
	"github.com/ShayCichocki/forge/internal/persist"
	"github.com/ShayCichocki/forge/internal/scheduler"
	"github.com/ShayCichocki/forge/pkg/models"
)

const persistTimeout = 10 * time.Second

// ErrRunInProgress is returned when Run is called while another run on the
// same Coordinator is still active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Planner produces an execution plan. *planner.Planner satisfies it.
type Planner interface {
	PlanExecution(ctx context.Context, cfg *models.ProjectConfig) (*models.ExecutionPlan, error)
}

// Coordinator owns the planner, unit table and store for a sequence of runs.
// Concurrent runs need separate Coordinators, each with its own Store.
type Coordinator struct {
	planner   Planner
	units     scheduler.Dispatcher
	store     *memory.Store
	notifier  notify.Notifier
	persister persist.Persister
	logger    *zap.Logger
	base      *zap.Logger
	schedOpts []scheduler.Option
	archive   string
	newRunID  func() string

	running atomic.Bool
	mu      sync.RWMutex
	state   models.RunState
}

// New creates a Coordinator.
func New(req RequiredConfig, opts ...Option) (*Coordinator, error) {
	if req.Planner == nil {
		return nil, errors.New("coordinator: planner is required")
	}
	if req.Units == nil {
		return nil, errors.New("coordinator: units are required")
	}
	if req.Store == nil {
		return nil, errors.New("coordinator: store is required")
	}

	o := &coordinatorOptions{
		archiveKey: DefaultArchiveKey,
		newRunID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}

	return &Coordinator{
		planner:   req.Planner,
		units:     req.Units,
		store:     req.Store,
		notifier:  o.notifier,
		persister: o.persister,
		logger:    o.logger.Named("coordinator"),
		base:      o.logger,
		schedOpts: o.schedulerOpts,
		archive:   o.archiveKey,
		newRunID:  o.newRunID,
	}, nil
}

// State returns a copy of the current or last run state.
func (c *Coordinator) State() models.RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.state
	s.Completed = append([]string(nil), c.state.Completed...)
	s.Pending = append([]string(nil), c.state.Pending...)
	s.Files = append([]models.FileArtifact(nil), c.state.Files...)
	s.Errors = append([]string(nil), c.state.Errors...)
	return s
}

// Run plans and executes a project and assembles the output. Task failures
// and cascade-blocks are reported in the output's Failures; a deadlock, an
// aborted run or a planning error fails the whole run.
func (c *Coordinator) Run(ctx context.Context, project *models.ProjectConfig) (*models.GeneratedOutput, error) {
	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer c.running.Store(false)

	runID := c.newRunID()
	start := time.Now()
	logger := c.logger.With(zap.String("run_id", runID), zap.String("project", project.Name))

	c.mu.Lock()
	c.state = models.RunState{RunID: runID, Project: project}
	c.mu.Unlock()

	c.setPhase(runID, models.PhasePlanning, "")
	c.restoreArchive(ctx, logger)

	plan, err := c.planner.PlanExecution(ctx, project)
	if err != nil {
		c.setPhase(runID, models.PhaseFailed, err.Error())
		return nil, fmt.Errorf("plan: %w", err)
	}
	logger.Info("execution plan ready",
		zap.String("source", string(plan.Source)),
		zap.Int("tasks", len(plan.Tasks)),
		zap.String("fallback_reason", plan.FallbackReason))

	c.mu.Lock()
	for _, t := range plan.Tasks {
		c.state.Pending = append(c.state.Pending, t.ID)
	}
	c.mu.Unlock()

	c.setPhase(runID, models.PhaseExecuting, fmt.Sprintf("%d task(s) from %s plan", len(plan.Tasks), plan.Source))
	sched := scheduler.New(c.units, c.store, append(append([]scheduler.Option(nil), c.schedOpts...),
		scheduler.WithNotifier(notify.Multi{notify.Func(c.track), c.notifier}),
		scheduler.WithLogger(c.base),
		scheduler.WithRunID(runID),
	)...)
	res, runErr := sched.Run(ctx, plan, project)

	c.saveArchive(ctx, logger)

	if runErr != nil {
		c.setPhase(runID, models.PhaseFailed, runErr.Error())
		return nil, fmt.Errorf("run %s: %w", runID, runErr)
	}

	c.setPhase(runID, models.PhaseAssembling, "")
	out, err := assemble(runID, project, plan, res, c.store.Stats(), time.Now())
	if err != nil {
		c.setPhase(runID, models.PhaseFailed, err.Error())
		return nil, fmt.Errorf("assemble: %w", err)
	}
	out.Duration = time.Since(start)

	c.mu.Lock()
	c.state.Files = out.Files
	c.mu.Unlock()

	c.setPhase(runID, models.PhaseCompleted, fmt.Sprintf("%d file(s), %d failure(s)", len(out.Files), len(out.Failures)))
	logger.Info("run completed",
		zap.Int("files", len(out.Files)),
		zap.Int("failures", len(out.Failures)),
		zap.Duration("duration", out.Duration))
	return out, nil
}

func (c *Coordinator) setPhase(runID, phase, message string) {
	c.mu.Lock()
	c.state.Phase = phase
	c.mu.Unlock()

	c.notifier.Notify(notify.Event{
		Type:      notify.EventPhaseChanged,
		RunID:     runID,
		Phase:     phase,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// track folds scheduler events into the run state.
func (c *Coordinator) track(e notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case notify.EventTaskCompleted:
		c.state.Completed = append(c.state.Completed, e.TaskID)
		c.state.Pending = remove(c.state.Pending, e.TaskID)
	case notify.EventTaskFailed:
		c.state.Pending = remove(c.state.Pending, e.TaskID)
		if e.Error != nil {
			c.state.Errors = append(c.state.Errors, e.Error.Error())
		}
	}
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// restoreArchive imports the last saved store blob. A missing or unreadable
// blob only costs the run its cross-run context.
func (c *Coordinator) restoreArchive(ctx context.Context, logger *zap.Logger) {
	if c.persister == nil {
		return
	}
	blob, err := c.persister.Load(ctx, c.archive)
	if errors.Is(err, persist.ErrNotFound) {
		logger.Debug("no saved context archive", zap.String("key", c.archive))
		return
	}
	if err != nil {
		logger.Warn("load context archive failed", zap.Error(err))
		return
	}
	if err := c.store.Import(blob); err != nil {
		logger.Warn("import context archive failed", zap.Error(err))
		return
	}
	st := c.store.Stats()
	logger.Info("context archive restored",
		zap.Int("entries", st.ActiveEntries),
		zap.Int("archived", st.ArchiveEntries),
		zap.Int("tokens", st.TotalTokens))
}

// saveArchive exports the store after a run, even one that was cancelled.
func (c *Coordinator) saveArchive(ctx context.Context, logger *zap.Logger) {
	if c.persister == nil {
		return
	}
	blob, err := c.store.Export()
	if err != nil {
		logger.Warn("export context store failed", zap.Error(err))
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := c.persister.Save(saveCtx, c.archive, blob); err != nil {
		logger.Warn("save context archive failed", zap.Error(err))
		return
	}
	logger.Debug("context archive saved", zap.Int("bytes", len(blob)))
}
