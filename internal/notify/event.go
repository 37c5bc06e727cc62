// Package notify delivers run progress events to the surrounding application.
package notify

import (
	"time"

	"github.com/ShayCichocki/forge/pkg/models"
)

// EventType identifies the kind of run event.
type EventType string

const (
	// EventPhaseChanged is emitted when the run moves to a new phase.
	EventPhaseChanged EventType = "phase_changed"
	// EventTaskStarted is emitted when a task is dispatched.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted is emitted when a task's output has been recorded.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed is emitted when a task fails or is cascade-blocked.
	EventTaskFailed EventType = "task_failed"
)

// Event is a single run progress notification.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RunID identifies the run.
	RunID string
	// Phase is the run phase, for phase events.
	Phase string
	// TaskID is the related task, if applicable.
	TaskID string
	// UnitType is the unit handling the task, if applicable.
	UnitType models.UnitType
	// Message provides additional context.
	Message string
	// Error contains error details for failure events.
	Error error
	// Blocked marks a failure caused by a failed dependency.
	Blocked bool
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the task's run time, for completion and failure events.
	Duration time.Duration
}

// Notifier receives run events. Implementations must not block the caller
// for long; the scheduler notifies from its dispatch loop.
type Notifier interface {
	Notify(Event)
}

// Func adapts a function to the Notifier interface.
type Func func(Event)

// Notify calls f.
func (f Func) Notify(e Event) {
	f(e)
}

// Nop discards every event.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(Event) {}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

// Notify forwards e to every non-nil notifier.
func (m Multi) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}
