// Package signals lets another process stop a running forge by dropping a
// file into the project's .forge/signals directory.
package signals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StopFile is the signal file name that requests a stop.
const StopFile = "stop"

// pollInterval backs up the watcher in case it misses an event or could not start.
const pollInterval = time.Second

// ErrStopRequested is the cancellation cause when a stop file appears.
var ErrStopRequested = errors.New("stop requested")

// Dir returns the signals directory under a project root.
func Dir(root string) string {
	return filepath.Join(root, ".forge", "signals")
}

// RequestStop asks a run in root to stop.
func RequestStop(root string) error {
	dir := Dir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, StopFile), []byte(time.Now().UTC().Format(time.RFC3339)), 0644)
}

// StopWatcher watches the signals directory for a stop request.
type StopWatcher struct {
	dir    string
	logger *zap.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	stopped bool
}

// NewStopWatcher prepares the signals directory under root and removes any
// stale stop file left by an earlier run.
func NewStopWatcher(root string, logger *zap.Logger) (*StopWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := Dir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := os.Remove(filepath.Join(dir, StopFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	sw := &StopWatcher{dir: dir, logger: logger.Named("signals")}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher - will use polling fallback
		sw.logger.Debug("fsnotify unavailable, polling for stop file", zap.Error(err))
		return sw, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		sw.logger.Debug("watch signals directory failed, polling for stop file", zap.Error(err))
		return sw, nil
	}
	sw.watcher = watcher
	return sw, nil
}

// WithStop returns a context cancelled with ErrStopRequested when a stop file
// appears. The watch ends when the returned context is done; call the
// returned cancel function to release it.
func (sw *StopWatcher) WithStop(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go sw.watch(ctx, cancel)
	return ctx, func() { cancel(context.Canceled) }
}

// Stopped reports whether a stop request has been seen.
func (sw *StopWatcher) Stopped() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.stopped
}

// Close releases the underlying watcher.
func (sw *StopWatcher) Close() error {
	if sw.watcher == nil {
		return nil
	}
	return sw.watcher.Close()
}

func (sw *StopWatcher) watch(ctx context.Context, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if sw.watcher != nil {
		events = sw.watcher.Events
		errs = sw.watcher.Errors
	}

	for {
		if sw.check() {
			cancel(ErrStopRequested)
			return
		}
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(event.Name) == StopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				sw.markStopped()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			sw.logger.Debug("signal watcher error", zap.Error(err))
		case <-ticker.C:
		}
	}
}

// check also stats the file directly in case the watcher missed it.
func (sw *StopWatcher) check() bool {
	if _, err := os.Stat(filepath.Join(sw.dir, StopFile)); err == nil {
		sw.markStopped()
	}
	return sw.Stopped()
}

func (sw *StopWatcher) markStopped() {
	sw.mu.Lock()
	first := !sw.stopped
	sw.stopped = true
	sw.mu.Unlock()
	if first {
		sw.logger.Info("stop signal received", zap.String("dir", sw.dir))
	}
}
