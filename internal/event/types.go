package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier, e.g. "build.started".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeChangeDetected    = "reload.change_detected"
	TypeStateChanged      = "reload.state_changed"
	TypeReloadCompleted   = "reload.completed"
	TypeReloadAborted     = "reload.aborted"
	TypeBuildStarted      = "build.started"
	TypeBuildFinished     = "build.finished"
	TypeGenerationLoaded  = "generation.loaded"
	TypeGenerationClosed  = "generation.closed"
	TypeWorkerStarted     = "worker.started"
	TypeWorkerCancelled   = "worker.cancelled"
	TypeWorkerExited      = "worker.exited"
	TypeShutdownRequested = "shutdown.requested"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Reload Cycle Events
// -----------------------------------------------------------------------------

// ChangeDetectedEvent is emitted when the watched tree's fingerprint moves.
type ChangeDetectedEvent struct {
	baseEvent
	Fingerprint uint64
}

// NewChangeDetectedEvent creates a ChangeDetectedEvent.
func NewChangeDetectedEvent(fingerprint uint64) ChangeDetectedEvent {
	return ChangeDetectedEvent{
		baseEvent:   newBaseEvent(TypeChangeDetected),
		Fingerprint: fingerprint,
	}
}

// StateChangedEvent is emitted on every controller state transition.
// States are carried by name ("idle", "building", "swapping").
type StateChangedEvent struct {
	baseEvent
	From    string
	To      string
	Pending bool
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(from, to string, pending bool) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeStateChanged),
		From:      from,
		To:        to,
		Pending:   pending,
	}
}

// ReloadCompletedEvent is emitted once the worker runs on a new generation.
type ReloadCompletedEvent struct {
	baseEvent
	From     uint64
	To       uint64
	Duration time.Duration // change picked up to new worker spawned
}

// NewReloadCompletedEvent creates a ReloadCompletedEvent.
func NewReloadCompletedEvent(from, to uint64, d time.Duration) ReloadCompletedEvent {
	return ReloadCompletedEvent{
		baseEvent: newBaseEvent(TypeReloadCompleted),
		From:      from,
		To:        to,
		Duration:  d,
	}
}

// ReloadAbortedEvent is emitted when a cycle returns to idle without a swap.
type ReloadAbortedEvent struct {
	baseEvent
	Generation uint64 // the generation that was being produced
	Stage      string // "build" or "load"
	Err        error
}

// NewReloadAbortedEvent creates a ReloadAbortedEvent.
func NewReloadAbortedEvent(generation uint64, stage string, err error) ReloadAbortedEvent {
	return ReloadAbortedEvent{
		baseEvent:  newBaseEvent(TypeReloadAborted),
		Generation: generation,
		Stage:      stage,
		Err:        err,
	}
}

// -----------------------------------------------------------------------------
// Build Events
// -----------------------------------------------------------------------------

// BuildStartedEvent is emitted before the build command runs.
type BuildStartedEvent struct {
	baseEvent
	Generation uint64
	Initial    bool
}

// NewBuildStartedEvent creates a BuildStartedEvent.
func NewBuildStartedEvent(generation uint64, initial bool) BuildStartedEvent {
	return BuildStartedEvent{
		baseEvent:  newBaseEvent(TypeBuildStarted),
		Generation: generation,
		Initial:    initial,
	}
}

// BuildFinishedEvent is emitted after the build command returns.
type BuildFinishedEvent struct {
	baseEvent
	Generation uint64
	Duration   time.Duration
	Err        error // nil on success
}

// NewBuildFinishedEvent creates a BuildFinishedEvent.
func NewBuildFinishedEvent(generation uint64, d time.Duration, err error) BuildFinishedEvent {
	return BuildFinishedEvent{
		baseEvent:  newBaseEvent(TypeBuildFinished),
		Generation: generation,
		Duration:   d,
		Err:        err,
	}
}

// Succeeded reports whether the build exited successfully.
func (e BuildFinishedEvent) Succeeded() bool { return e.Err == nil }

// -----------------------------------------------------------------------------
// Generation Events
// -----------------------------------------------------------------------------

// GenerationLoadedEvent is emitted when a generation's library is open.
type GenerationLoadedEvent struct {
	baseEvent
	Generation uint64
	Path       string
}

// NewGenerationLoadedEvent creates a GenerationLoadedEvent.
func NewGenerationLoadedEvent(generation uint64, path string) GenerationLoadedEvent {
	return GenerationLoadedEvent{
		baseEvent:  newBaseEvent(TypeGenerationLoaded),
		Generation: generation,
		Path:       path,
	}
}

// GenerationClosedEvent is emitted when a generation is released.
type GenerationClosedEvent struct {
	baseEvent
	Generation uint64
	Path       string
	Removed    bool // backing file deleted
}

// NewGenerationClosedEvent creates a GenerationClosedEvent.
func NewGenerationClosedEvent(generation uint64, path string, removed bool) GenerationClosedEvent {
	return GenerationClosedEvent{
		baseEvent:  newBaseEvent(TypeGenerationClosed),
		Generation: generation,
		Path:       path,
		Removed:    removed,
	}
}

// -----------------------------------------------------------------------------
// Worker Events
// -----------------------------------------------------------------------------

// WorkerStartedEvent is emitted when the worker goroutine enters HotMain.
type WorkerStartedEvent struct {
	baseEvent
	Generation uint64
}

// NewWorkerStartedEvent creates a WorkerStartedEvent.
func NewWorkerStartedEvent(generation uint64) WorkerStartedEvent {
	return WorkerStartedEvent{
		baseEvent:  newBaseEvent(TypeWorkerStarted),
		Generation: generation,
	}
}

// WorkerCancelledEvent is emitted when the supervisor sends the worker its
// single cancellation notification.
type WorkerCancelledEvent struct {
	baseEvent
	Generation uint64
	Reason     string // "reload" or "shutdown"
}

// NewWorkerCancelledEvent creates a WorkerCancelledEvent.
func NewWorkerCancelledEvent(generation uint64, reason string) WorkerCancelledEvent {
	return WorkerCancelledEvent{
		baseEvent:  newBaseEvent(TypeWorkerCancelled),
		Generation: generation,
		Reason:     reason,
	}
}

// WorkerExitedEvent is emitted when HotMain returns or panics.
type WorkerExitedEvent struct {
	baseEvent
	Generation uint64
	Err        error // non-nil if the worker panicked
}

// NewWorkerExitedEvent creates a WorkerExitedEvent.
func NewWorkerExitedEvent(generation uint64, err error) WorkerExitedEvent {
	return WorkerExitedEvent{
		baseEvent:  newBaseEvent(TypeWorkerExited),
		Generation: generation,
		Err:        err,
	}
}

// -----------------------------------------------------------------------------
// Shutdown Events
// -----------------------------------------------------------------------------

// ShutdownRequestedEvent is emitted when the supervisor observes the
// shutdown flag or a cancelled context.
type ShutdownRequestedEvent struct {
	baseEvent
	Source string // "signal" or "context"
}

// NewShutdownRequestedEvent creates a ShutdownRequestedEvent.
func NewShutdownRequestedEvent(source string) ShutdownRequestedEvent {
	return ShutdownRequestedEvent{
		baseEvent: newBaseEvent(TypeShutdownRequested),
		Source:    source,
	}
}
