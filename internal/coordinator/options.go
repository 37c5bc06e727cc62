package coordinator

import (
	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/notify"
	"github.com/ShayCichocki/forge/internal/persist"
	"github.com/ShayCichocki/forge/internal/scheduler"
)

// DefaultArchiveKey is the persister key the context store export is saved under.
const DefaultArchiveKey = "context-archive"

// RequiredConfig contains the minimal required configuration for a Coordinator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Planner produces the execution plan.
	Planner Planner
	// Units is the dispatch table from unit type to generation unit.
	Units scheduler.Dispatcher
	// Store is the context store shared by every task of a run.
	Store *memory.Store
}

// Option configures a Coordinator. Use With* functions to create Options.
type Option func(*coordinatorOptions)

// coordinatorOptions holds all optional configuration.
type coordinatorOptions struct {
	notifier      notify.Notifier
	persister     persist.Persister
	logger        *zap.Logger
	schedulerOpts []scheduler.Option
	archiveKey    string
	newRunID      func() string
}

// WithNotifier sets the sink for phase and task events.
func WithNotifier(n notify.Notifier) Option {
	return func(o *coordinatorOptions) { o.notifier = n }
}

// WithPersister enables cross-run reuse of the context archive.
func WithPersister(p persist.Persister) Option {
	return func(o *coordinatorOptions) { o.persister = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *coordinatorOptions) { o.logger = l }
}

// WithSchedulerOptions passes options through to the scheduler of each run.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(o *coordinatorOptions) { o.schedulerOpts = append(o.schedulerOpts, opts...) }
}

// WithArchiveKey overrides the persister key.
func WithArchiveKey(key string) Option {
	return func(o *coordinatorOptions) { o.archiveKey = key }
}

// WithRunIDFunc overrides run ID generation (mainly for testing).
func WithRunIDFunc(fn func() string) Option {
	return func(o *coordinatorOptions) { o.newRunID = fn }
}
