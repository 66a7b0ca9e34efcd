// Package shutdown turns an interactive interrupt into a flag the reload
// supervisor polls.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/logging"
)

// Handler owns the process's interrupt handling for the lifetime of the
// engine. The flag is set asynchronously and only ever goes from false to true.
type Handler struct {
	flag   atomic.Bool
	logger *logging.Logger

	mu         sync.Mutex
	registered bool
	signals    chan os.Signal
	done       chan struct{}
	notify     func(chan<- os.Signal, ...os.Signal)
	stop       func(chan<- os.Signal)
}

// New creates an unregistered Handler.
func New(logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Handler{
		logger: logger.WithComponent("shutdown"),
		notify: signal.Notify,
		stop:   signal.Stop,
	}
}

// Register starts intercepting the interrupt signal. It may be called once.
func (h *Handler) Register() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.registered {
		return errors.NewInvariantError("interrupt handler registered twice", errors.ErrAlreadyRegistered).
			WithComponent("shutdown")
	}

	h.signals = make(chan os.Signal, 1)
	h.done = make(chan struct{})
	h.notify(h.signals, interruptSignals()...)
	h.registered = true

	go h.listen(h.signals, h.done)
	h.logger.Debug("interrupt handler registered")
	return nil
}

func (h *Handler) listen(signals <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case sig := <-signals:
			h.logger.Info("interrupt received", "signal", sig.String())
			h.flag.Store(true)
		case <-done:
			return
		}
	}
}

// Triggered reports whether shutdown was requested.
func (h *Handler) Triggered() bool {
	return h.flag.Load()
}

// Trigger requests shutdown without a signal.
func (h *Handler) Trigger() {
	h.flag.Store(true)
}

// Unregister restores default interrupt handling. Unregistering a handler
// that was never registered is an invariant violation.
func (h *Handler) Unregister() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registered {
		return errors.NewInvariantError("unregister without register", errors.ErrNotRegistered).
			WithComponent("shutdown")
	}

	h.stop(h.signals)
	close(h.done)
	h.registered = false
	h.logger.Debug("interrupt handler unregistered")
	return nil
}

// Registered reports whether the handler currently intercepts interrupts.
func (h *Handler) Registered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registered
}
