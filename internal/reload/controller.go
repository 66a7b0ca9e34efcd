// Package reload drives the hot reload cycle: it watches for changes,
// rebuilds the unit, loads the new generation and moves the carried state
// from the old worker to a new one.
package reload

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/hotswap/internal/build"
	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/event"
	"github.com/Iron-Ham/hotswap/internal/library"
	"github.com/Iron-Ham/hotswap/internal/logging"
)

// DefaultInterval is the supervisor tick.
const DefaultInterval = 100 * time.Millisecond

// Detector reports whether the watched tree changed since the last poll.
type Detector interface {
	Poll() bool
}

// ShutdownHandler is the interrupt flag the supervisor consults once per tick.
type ShutdownHandler interface {
	Register() error
	Triggered() bool
	Unregister() error
}

// Config holds the controller's tunables.
type Config struct {
	// Interval is the supervisor tick. Defaults to DefaultInterval.
	Interval time.Duration
	// BuildDir is the working directory of every build.
	BuildDir string
}

// Dependencies are the collaborators the controller drives.
type Dependencies struct {
	Detector Detector
	Builder  build.Builder
	Store    *library.Store
	Invoker  *library.Invoker
	Shutdown ShutdownHandler
	Bus      *event.Bus     // optional
	Logger   *logging.Logger // optional
}

// Controller is the supervisor. Run must be called at most once.
type Controller struct {
	interval time.Duration
	buildDir string

	detector Detector
	builder  build.Builder
	store    *library.Store
	invoker  *library.Invoker
	shutdown ShutdownHandler
	bus      *event.Bus
	logger   *logging.Logger

	mu      sync.Mutex
	state   State
	pending bool
	current *library.Generation
	worker  *worker
}

// New validates deps and creates a Controller.
func New(cfg Config, deps Dependencies) (*Controller, error) {
	switch {
	case deps.Detector == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "reload: detector is required")
	case deps.Builder == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "reload: builder is required")
	case deps.Store == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "reload: store is required")
	case deps.Invoker == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "reload: invoker is required")
	case deps.Shutdown == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "reload: shutdown handler is required")
	}

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	bus := deps.Bus
	if bus == nil {
		bus = event.NewBus(logger)
	}

	return &Controller{
		interval: cfg.Interval,
		buildDir: cfg.BuildDir,
		detector: deps.Detector,
		builder:  deps.Builder,
		store:    deps.Store,
		invoker:  deps.Invoker,
		shutdown: deps.Shutdown,
		bus:      bus,
		logger:   logger.WithComponent("reload"),
	}, nil
}

// Bus returns the bus the controller publishes on.
func (c *Controller) Bus() *event.Bus {
	return c.bus
}

// State returns the current phase of the reload cycle.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports whether a change is waiting for the next cycle.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Generation returns the ID of the generation the worker runs, and false
// before the initial generation is live.
func (c *Controller) Generation() (library.GenerationID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0, false
	}
	return c.current.ID, true
}

// WorkerRunning reports whether a worker is inside HotMain.
func (c *Controller) WorkerRunning() bool {
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	return w != nil && !w.finished()
}

// RequestReload marks a change as pending. Requests made while a cycle is in
// flight coalesce into a single follow-up cycle.
func (c *Controller) RequestReload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = true
}

// Run loads the initial generation, starts the worker and supervises reloads
// until shutdown is requested or ctx is cancelled. It returns nil after an
// orderly shutdown and a fatal error otherwise.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.shutdown.Register(); err != nil {
		return err
	}

	if err := c.start(ctx); err != nil {
		return c.abort(err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if c.detector.Poll() {
			c.RequestReload()
			c.bus.Publish(event.NewChangeDetectedEvent(c.fingerprint()))
		}

		if c.beginCycle() {
			if err := c.cycle(ctx); err != nil {
				return c.fail(err)
			}
		}

		if err := c.checkWorker(); err != nil {
			return c.abort(err)
		}

		if c.shutdown.Triggered() {
			return c.stop("signal")
		}

		select {
		case <-ctx.Done():
			return c.stop("context")
		case <-ticker.C:
		}
	}
}

// start performs the initial build and load. Every failure here is fatal.
func (c *Controller) start(ctx context.Context) error {
	req := build.Request{Generation: 0, Artifact: c.store.Artifact(), Dir: c.buildDir}
	c.bus.Publish(event.NewBuildStartedEvent(0, true))
	started := time.Now()
	err := c.builder.Build(ctx, req)
	c.bus.Publish(event.NewBuildFinishedEvent(0, time.Since(started), err))
	if err != nil {
		return errors.NewBuildError("initial build failed", errors.Join(errors.ErrInitialBuild, err)).
			WithGeneration(0).
			WithKind(errors.KindConfiguration)
	}

	gen, err := c.store.LoadInitial()
	if err != nil {
		return err
	}
	c.bus.Publish(event.NewGenerationLoadedEvent(uint64(gen.ID), gen.Path))

	if err := c.invoker.Validate(gen); err != nil {
		return err
	}
	if err := c.invoker.Init(gen); err != nil {
		return err
	}

	c.spawn(gen)
	c.logger.Info("initial generation running", "generation", uint64(gen.ID), "path", gen.Path)
	return nil
}

// beginCycle takes the pending change and enters Building, if idle.
func (c *Controller) beginCycle() bool {
	c.mu.Lock()
	if !c.pending || c.state != Idle {
		c.mu.Unlock()
		return false
	}
	c.pending = false
	c.state = Building
	c.mu.Unlock()

	c.bus.Publish(event.NewStateChangedEvent(Idle.String(), Building.String(), false))
	return true
}

func (c *Controller) setState(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	pending := c.pending
	c.mu.Unlock()

	if from != to {
		c.bus.Publish(event.NewStateChangedEvent(from.String(), to.String(), pending))
	}
}

// cycle runs one reload. Build and load failures return the controller to
// Idle and leave the worker untouched; the returned error is always fatal.
func (c *Controller) cycle(ctx context.Context) error {
	started := time.Now()
	id := c.store.NextID()
	log := c.logger.WithGeneration(uint64(id))

	req := build.Request{Generation: uint64(id), Artifact: c.store.Artifact(), Dir: c.buildDir}
	c.bus.Publish(event.NewBuildStartedEvent(uint64(id), false))
	err := c.builder.Build(ctx, req)
	c.bus.Publish(event.NewBuildFinishedEvent(uint64(id), time.Since(started), err))
	if err != nil {
		if !errors.IsTransient(err) {
			return err
		}
		logError(log, "build failed, keeping current generation", err)
		c.bus.Publish(event.NewReloadAbortedEvent(uint64(id), "build", err))
		c.setState(Idle)
		return nil
	}

	next, err := c.store.PrepareNext()
	if err != nil {
		if !errors.IsTransient(err) {
			return err
		}
		logError(log, "load failed, keeping current generation", err)
		c.bus.Publish(event.NewReloadAbortedEvent(uint64(id), "load", err))
		c.setState(Idle)
		return nil
	}
	c.bus.Publish(event.NewGenerationLoadedEvent(uint64(next.ID), next.Path))

	if err := c.invoker.Validate(next); err != nil {
		if closeErr := c.release(next); closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}

	c.setState(Swapping)

	c.mu.Lock()
	old, w := c.current, c.worker
	c.mu.Unlock()

	if err := c.retire(w, "reload"); err != nil {
		return err
	}
	if err := c.invoker.PostMain(old); err != nil {
		return err
	}
	if err := c.release(old); err != nil {
		return err
	}

	c.spawn(next)
	c.setState(Idle)

	elapsed := time.Since(started)
	c.bus.Publish(event.NewReloadCompletedEvent(uint64(old.ID), uint64(next.ID), elapsed))
	log.Info("reloaded", "from", uint64(old.ID), "duration", elapsed.String())
	return nil
}

func (c *Controller) spawn(gen *library.Generation) {
	w := startWorker(c.invoker, gen)

	c.mu.Lock()
	c.current = gen
	c.worker = w
	c.mu.Unlock()

	c.bus.Publish(event.NewWorkerStartedEvent(uint64(gen.ID)))
}

// retire sends w its single cancellation and waits for HotMain to return.
// There is no timeout: a worker that ignores the cancellation blocks the
// supervisor.
func (c *Controller) retire(w *worker, reason string) error {
	if w == nil {
		return nil
	}
	if w.notify() {
		c.bus.Publish(event.NewWorkerCancelledEvent(uint64(w.gen.ID), reason))
	}
	err := w.wait()
	c.reportExit(w)
	return err
}

func (c *Controller) reportExit(w *worker) {
	if w.reported {
		return
	}
	w.reported = true
	c.bus.Publish(event.NewWorkerExitedEvent(uint64(w.gen.ID), w.err))
}

// checkWorker surfaces a worker that ended on its own.
func (c *Controller) checkWorker() error {
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()

	if w == nil || !w.finished() || w.reported {
		return nil
	}
	c.reportExit(w)
	if w.err != nil {
		return w.err
	}
	c.logger.WithGeneration(uint64(w.gen.ID)).Info("worker returned before cancellation")
	return nil
}

func (c *Controller) release(gen *library.Generation) error {
	if err := c.store.Close(gen); err != nil {
		return err
	}
	c.bus.Publish(event.NewGenerationClosedEvent(uint64(gen.ID), gen.Path, gen.Removed()))
	return nil
}

// stop is the orderly shutdown: one cancellation, wait for the worker,
// unregister the handler, hand the state to HotDrop and close the last
// generation.
func (c *Controller) stop(source string) error {
	c.logger.Info("shutting down", "source", source)
	c.bus.Publish(event.NewShutdownRequestedEvent(source))

	c.mu.Lock()
	w, gen := c.worker, c.current
	c.mu.Unlock()

	if err := c.retire(w, "shutdown"); err != nil {
		return c.abort(err)
	}
	if err := c.shutdown.Unregister(); err != nil {
		return c.abort(err)
	}
	if gen == nil {
		return nil
	}
	if err := c.invoker.Drop(gen); err != nil {
		return c.abort(err)
	}
	if err := c.release(gen); err != nil {
		return c.abort(err)
	}
	c.logger.Info("stopped", "generation", uint64(gen.ID), "handoffs", c.invoker.Custodian().Handoffs())
	return nil
}

// fail handles a fatal error from a reload cycle. A configuration error still
// gets an orderly stop so the running state reaches HotDrop; an invariant
// violation means the state can no longer be trusted.
func (c *Controller) fail(err error) error {
	if errors.IsInvariant(err) {
		return c.abort(err)
	}
	logError(c.logger, "reload failed", err)
	if stopErr := c.stop("error"); stopErr != nil {
		return errors.Join(err, stopErr)
	}
	return err
}

// abort tears everything down without calling HotDrop and returns err.
func (c *Controller) abort(err error) error {
	logError(c.logger, "aborting", err)

	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	if w != nil {
		// The worker's own error, if any, is already reported or superseded.
		_ = c.retire(w, "shutdown")
	}

	for _, id := range c.store.Live() {
		if gen, ok := c.store.Get(id); ok {
			_ = c.release(gen)
		}
	}

	if err := c.unregister(); err != nil {
		c.logger.Warn("failed to unregister shutdown handler", "error", err.Error())
	}
	return err
}

// logError logs err at the level its severity calls for.
func logError(log *logging.Logger, msg string, err error) {
	args := []any{"error", err.Error(), "kind", errors.KindOf(err).String()}
	switch errors.GetSeverity(err) {
	case errors.SeverityDebug:
		log.Debug(msg, args...)
	case errors.SeverityInfo:
		log.Info(msg, args...)
	case errors.SeverityWarning:
		log.Warn(msg, args...)
	default:
		log.Error(msg, args...)
	}
}

// fingerprint returns the detector's latest fingerprint when it exposes one.
func (c *Controller) fingerprint() uint64 {
	if d, ok := c.detector.(interface{ Last() uint64 }); ok {
		return d.Last()
	}
	return 0
}

func (c *Controller) unregister() error {
	type registered interface{ Registered() bool }
	if r, ok := c.shutdown.(registered); ok && !r.Registered() {
		return nil
	}
	return c.shutdown.Unregister()
}
