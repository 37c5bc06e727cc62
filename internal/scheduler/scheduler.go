// Package scheduler executes an execution plan: it walks the task graph,
// bounds concurrency, dispatches tasks to generation units and folds their
// output into the context store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/forge/internal/graph"
	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/notify"
	"github.com/ShayCichocki/forge/internal/units"
	"github.com/ShayCichocki/forge/pkg/models"
)

const (
	// DefaultMaxConcurrency is the number of tasks run at once when not configured.
	DefaultMaxConcurrency = 3
	// DefaultTaskTimeout bounds a single unit call when not configured.
	DefaultTaskTimeout = 10 * time.Minute
)

// OutputKeyPrefix prefixes the context store key a task's output is recorded under.
const OutputKeyPrefix = "output:"

// Dispatcher maps unit types to units. *units.Registry satisfies it.
type Dispatcher interface {
	Get(t models.UnitType) (units.Unit, bool)
}

// DefaultImportance returns the importance a unit type's output is stored with.
// Foundational stages rank highest so later stages keep seeing them.
func DefaultImportance(t models.UnitType) int {
	switch t {
	case models.UnitData, models.UnitCore:
		return 8
	case models.UnitAuth:
		return 7
	case models.UnitDeploy:
		return 5
	default:
		return 6
	}
}

// Scheduler runs one execution plan at a time. It holds no state between runs.
type Scheduler struct {
	dispatch       Dispatcher
	store          *memory.Store
	maxConcurrency int
	taskTimeout    time.Duration
	notifier       notify.Notifier
	logger         *zap.Logger
	importance     func(models.UnitType) int
	runID          string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrency sets the number of tasks allowed in progress at once.
// Values below one are ignored.
func WithMaxConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithTaskTimeout bounds each unit call. Zero disables the deadline.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.taskTimeout = d
		}
	}
}

// WithNotifier sets the event sink.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Scheduler) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithImportance overrides the importance assigned to recorded output.
func WithImportance(fn func(models.UnitType) int) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.importance = fn
		}
	}
}

// WithRunID tags events with the run they belong to.
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		s.runID = id
	}
}

// New creates a scheduler dispatching to units and recording into store.
func New(dispatch Dispatcher, store *memory.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		dispatch:       dispatch,
		store:          store,
		maxConcurrency: DefaultMaxConcurrency,
		taskTimeout:    DefaultTaskTimeout,
		notifier:       notify.Nop{},
		logger:         zap.NewNop(),
		importance:     DefaultImportance,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler")
	return s
}

// Result is the outcome of a run. It is returned alongside DeadlockError and
// ErrRunAborted so callers can inspect what finished.
type Result struct {
	// Tasks holds every task in plan order with its final status.
	Tasks []*models.Task
	// Files holds the merged output files sorted by path.
	Files []models.FileArtifact
	// EnvVars is the sorted union of environment variables units declared.
	EnvVars []string
	// Completed lists completed task IDs in completion order.
	Completed []string
	// Failures lists failed and cascade-blocked tasks in the order they settled.
	Failures []models.TaskFailure
	// Summaries maps task ID to the unit's summary.
	Summaries map[string]string
	Duration  time.Duration
}

// outputRecord is what a completed task leaves in the context store.
type outputRecord struct {
	TaskID  string   `json:"task_id"`
	Summary string   `json:"summary,omitempty"`
	Files   []string `json:"files"`
	Env     []string `json:"env,omitempty"`
}

// completion is sent by a task goroutine when its unit call settles.
type completion struct {
	taskID   string
	output   *models.UnitOutput
	err      error
	timedOut bool
	duration time.Duration
}

// run holds the mutable state of a single Run call. It is owned by the
// dispatch loop goroutine.
type run struct {
	*Scheduler
	project   models.ProjectConfig
	graph     *graph.DependencyGraph
	tasks     []*models.Task
	files     map[string]models.FileArtifact
	env       map[string]bool
	completed []string
	failures  []models.TaskFailure
	summaries map[string]string
	inflight  map[string]context.CancelFunc
}

// Run executes plan to completion. Tasks start only once every dependency has
// completed, at most maxConcurrency run at once, a failed task cascade-blocks
// everything downstream of it while independent branches continue. A cycle
// or other stall yields *DeadlockError; cancelling ctx cancels in-flight units
// and yields ErrRunAborted.
func (s *Scheduler) Run(ctx context.Context, plan *models.ExecutionPlan, project *models.ProjectConfig) (*Result, error) {
	if s.store == nil {
		return nil, errors.New("scheduler: context store is required")
	}
	if s.dispatch == nil {
		return nil, errors.New("scheduler: unit dispatcher is required")
	}
	if plan == nil || len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks", ErrInvalidPlan)
	}

	r := &run{
		Scheduler: s,
		graph:     graph.New(),
		files:     make(map[string]models.FileArtifact),
		env:       make(map[string]bool),
		summaries: make(map[string]string),
		inflight:  make(map[string]context.CancelFunc),
	}
	if project != nil {
		r.project = *project
	}
	for _, t := range plan.Tasks {
		task := t.Clone()
		task.Status = models.TaskStatusPending
		r.tasks = append(r.tasks, task)
	}
	if err := r.graph.Build(r.tasks); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	start := time.Now()
	err := r.loop(ctx)
	result := r.result(time.Since(start))

	s.logger.Info("run settled",
		zap.String("run_id", s.runID),
		zap.Int("tasks", len(result.Tasks)),
		zap.Int("completed", len(result.Completed)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", result.Duration),
		zap.Error(err))
	return result, err
}

func (r *run) loop(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(r.maxConcurrency))
	completions := make(chan completion, len(r.tasks))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	for {
		if err := ctx.Err(); err != nil {
			return r.abort(err, completions, sem)
		}

		for _, task := range r.graph.Ready() {
			if !sem.TryAcquire(1) {
				break
			}
			r.dispatchTask(runCtx, task, completions, sem)
		}

		if len(r.inflight) == 0 {
			pending := r.graph.Pending()
			if len(pending) == 0 {
				return nil
			}
			return r.deadlock(pending)
		}

		select {
		case c := <-completions:
			sem.Release(1)
			if err := ctx.Err(); err != nil {
				r.settle(aborted(c), false)
				return r.abort(err, completions, sem)
			}
			r.settle(c, true)
		case <-ctx.Done():
			return r.abort(ctx.Err(), completions, sem)
		}
	}
}

func (r *run) dispatchTask(ctx context.Context, task *models.Task, completions chan<- completion, sem *semaphore.Weighted) {
	if !r.transition(task, models.TaskStatusInProgress) {
		sem.Release(1)
		return
	}
	now := time.Now()
	task.StartedAt = &now
	r.notify(notify.Event{
		Type:     notify.EventTaskStarted,
		TaskID:   task.ID,
		UnitType: task.Type,
		Message:  task.Description,
	})

	unit, ok := r.dispatch.Get(task.Type)
	if !ok {
		r.logger.Error("no unit registered", zap.String("task_id", task.ID), zap.String("unit", string(task.Type)))
		r.fail(task, &UnitExecutionError{TaskID: task.ID, Type: task.Type, Err: ErrNoUnit}, 0, true)
		sem.Release(1)
		return
	}

	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if r.taskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, r.taskTimeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	r.inflight[task.ID] = cancel

	snap := r.snapshot(task)
	r.logger.Debug("task dispatched",
		zap.String("task_id", task.ID),
		zap.String("unit", string(task.Type)),
		zap.Int("context_entries", len(snap.Context)),
		zap.Int("inflight", len(r.inflight)))

	go func() {
		defer cancel()
		completions <- execute(taskCtx, unit, snap)
	}()
}

// execute calls the unit and waits for it or for the task context, whichever
// comes first. A unit that ignores cancellation is abandoned; its late result
// is discarded.
func execute(ctx context.Context, unit units.Unit, snap models.Snapshot) completion {
	start := time.Now()
	type unitResult struct {
		out *models.UnitOutput
		err error
	}
	results := make(chan unitResult, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				results <- unitResult{err: fmt.Errorf("unit panicked: %v\n%s", p, debug.Stack())}
			}
		}()
		out, err := unit.Generate(ctx, snap)
		if err == nil && out == nil {
			err = errors.New("unit returned no output")
		}
		results <- unitResult{out: out, err: err}
	}()

	c := completion{taskID: snap.Task.ID}
	select {
	case res := <-results:
		c.output, c.err = res.out, res.err
	case <-ctx.Done():
		c.err = ctx.Err()
	}
	if c.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.timedOut = true
	}
	c.duration = time.Since(start)
	return c
}

// settle applies a completion to the run state. cascade controls whether a
// failure blocks downstream tasks; aborted runs leave them pending.
func (r *run) settle(c completion, cascade bool) {
	if cancel, ok := r.inflight[c.taskID]; ok {
		cancel()
		delete(r.inflight, c.taskID)
	}
	task := r.graph.Task(c.taskID)
	if task == nil || !r.canTransition(task, models.TaskStatusCompleted) {
		return
	}

	if c.err != nil {
		r.fail(task, &UnitExecutionError{TaskID: task.ID, Type: task.Type, Err: c.err, TimedOut: c.timedOut}, c.duration, cascade)
		return
	}

	if err := r.record(task, c.output); err != nil {
		r.fail(task, &UnitExecutionError{TaskID: task.ID, Type: task.Type, Err: err}, c.duration, cascade)
		return
	}

	for _, f := range c.output.Files {
		f.TaskID = task.ID
		if prev, exists := r.files[f.Path]; exists {
			r.logger.Info("file replaced",
				zap.String("path", f.Path),
				zap.String("previous_task", prev.TaskID),
				zap.String("task_id", task.ID))
		}
		r.files[f.Path] = f
	}
	for _, v := range c.output.EnvVars {
		r.env[v] = true
	}
	if c.output.Summary != "" {
		r.summaries[task.ID] = c.output.Summary
	}

	r.transition(task, models.TaskStatusCompleted)
	now := time.Now()
	task.CompletedAt = &now
	r.graph.MarkComplete(task.ID)
	r.completed = append(r.completed, task.ID)

	r.notify(notify.Event{
		Type:     notify.EventTaskCompleted,
		TaskID:   task.ID,
		UnitType: task.Type,
		Message:  c.output.Summary,
		Duration: c.duration,
	})
}

// canTransition reports whether task may move to next, logging refused moves.
func (r *run) canTransition(task *models.Task, next models.TaskStatus) bool {
	if task.Status.CanTransition(next) {
		return true
	}
	r.logger.Error("illegal task transition refused",
		zap.String("task_id", task.ID),
		zap.String("from", string(task.Status)),
		zap.String("to", string(next)))
	return false
}

// transition moves task to next when the status machine allows it.
func (r *run) transition(task *models.Task, next models.TaskStatus) bool {
	if !r.canTransition(task, next) {
		return false
	}
	task.Status = next
	return true
}

// record writes a completed task's output into the context store.
func (r *run) record(task *models.Task, out *models.UnitOutput) error {
	rec := outputRecord{TaskID: task.ID, Summary: out.Summary, Env: out.EnvVars}
	for _, f := range out.Files {
		rec.Files = append(rec.Files, f.Path)
	}
	_, err := r.store.Put(OutputKeyPrefix+string(task.Type), rec,
		memory.WithUnitType(task.Type),
		memory.WithImportance(r.importance(task.Type)))
	if err != nil {
		return fmt.Errorf("record output: %w", err)
	}
	return nil
}

func (r *run) fail(task *models.Task, err error, d time.Duration, cascade bool) {
	if !r.transition(task, models.TaskStatusFailed) {
		return
	}
	now := time.Now()
	task.Error = err.Error()
	task.CompletedAt = &now
	r.failures = append(r.failures, models.TaskFailure{TaskID: task.ID, Type: task.Type, Reason: err.Error()})

	r.logger.Warn("task failed", zap.String("task_id", task.ID), zap.String("unit", string(task.Type)), zap.Error(err))
	r.notify(notify.Event{
		Type:     notify.EventTaskFailed,
		TaskID:   task.ID,
		UnitType: task.Type,
		Error:    err,
		Duration: d,
	})

	if cascade {
		r.blockDependents(task.ID)
	}
}

// blockDependents marks every pending task downstream of a failed task as
// failed with a BlockedError.
func (r *run) blockDependents(failedID string) {
	for _, id := range r.graph.TransitiveDependents(failedID) {
		dep := r.graph.Task(id)
		if dep == nil || dep.Status != models.TaskStatusPending || !r.transition(dep, models.TaskStatusFailed) {
			continue
		}
		err := &BlockedError{TaskID: id, BlockedBy: failedID}
		now := time.Now()
		dep.Error = err.Error()
		dep.BlockedBy = failedID
		dep.CompletedAt = &now
		r.failures = append(r.failures, models.TaskFailure{
			TaskID:    id,
			Type:      dep.Type,
			Reason:    err.Error(),
			Blocked:   true,
			BlockedBy: failedID,
		})

		r.logger.Info("task cascade-blocked", zap.String("task_id", id), zap.String("blocked_by", failedID))
		r.notify(notify.Event{
			Type:     notify.EventTaskFailed,
			TaskID:   id,
			UnitType: dep.Type,
			Error:    err,
			Blocked:  true,
		})
	}
}

func (r *run) deadlock(pending []*models.Task) error {
	ids := make([]string, 0, len(pending))
	for _, t := range pending {
		ids = append(ids, t.ID)
	}
	derr := &DeadlockError{Cycle: r.graph.FindCycleAmong(ids)}
	for _, t := range pending {
		derr.Unresolved = append(derr.Unresolved, UnresolvedTask{
			TaskID: t.ID,
			Unmet:  r.graph.UnmetDependencies(t.ID),
		})
	}
	r.logger.Error("deadlock detected", zap.Strings("unresolved", derr.TaskIDs()), zap.Strings("cycle", derr.Cycle))
	return derr
}

// abort cancels every in-flight unit, waits for their goroutines to report,
// and marks those tasks failed. Pending tasks stay pending.
func (r *run) abort(cause error, completions <-chan completion, sem *semaphore.Weighted) error {
	r.logger.Warn("run aborted, cancelling in-flight tasks", zap.Int("inflight", len(r.inflight)), zap.Error(cause))
	for _, cancel := range r.inflight {
		cancel()
	}
	for len(r.inflight) > 0 {
		c := <-completions
		sem.Release(1)
		r.settle(aborted(c), false)
	}
	return fmt.Errorf("%w: %w", ErrRunAborted, cause)
}

// aborted turns a completion that arrived during an abort into a failure.
func aborted(c completion) completion {
	if c.err == nil {
		c.err = ErrRunAborted
	} else {
		c.err = fmt.Errorf("%w: %w", ErrRunAborted, c.err)
	}
	c.output = nil
	c.timedOut = false
	return c
}

func (r *run) snapshot(task *models.Task) models.Snapshot {
	paths := make([]string, 0, len(r.files))
	for p := range r.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return models.Snapshot{
		RunID:     r.runID,
		Phase:     models.PhaseExecuting,
		Task:      *task.Clone(),
		Project:   r.project,
		Completed: append([]string(nil), r.completed...),
		Files:     paths,
		Context:   r.store.GetForUnit(task.Type),
	}
}

func (r *run) notify(e notify.Event) {
	e.RunID = r.runID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	r.notifier.Notify(e)
}

func (r *run) result(d time.Duration) *Result {
	res := &Result{
		Completed: r.completed,
		Failures:  r.failures,
		Summaries: r.summaries,
		Duration:  d,
	}
	for _, t := range r.tasks {
		res.Tasks = append(res.Tasks, t.Clone())
	}
	for _, f := range r.files {
		res.Files = append(res.Files, f)
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	for v := range r.env {
		res.EnvVars = append(res.EnvVars, v)
	}
	sort.Strings(res.EnvVars)
	return res
}
