package reload

import (
	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/library"
)

// worker runs HotMain of one generation on its own goroutine.
type worker struct {
	gen    *library.Generation
	cancel chan struct{}
	done   chan struct{}
	err    error // written before done is closed

	// Supervisor-only bookkeeping.
	notified bool
	reported bool
}

func startWorker(inv *library.Invoker, gen *library.Generation) *worker {
	w := &worker{
		gen:    gen,
		cancel: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run(inv)
	return w
}

func (w *worker) run(inv *library.Invoker) {
	defer close(w.done)

	var pc panics.Catcher
	pc.Try(func() {
		w.err = inv.Main(w.gen, w.cancel)
	})
	if r := pc.Recovered(); r != nil {
		w.err = errors.NewInvariantError(
			"worker panicked, carried state is lost",
			errors.Join(errors.ErrWorkerPanicked, r.AsError()),
		).WithComponent("reload")
	}
}

// notify sends the single cancellation notification. It never blocks: the
// channel has one slot and this is the only sender.
func (w *worker) notify() bool {
	if w.notified {
		return false
	}
	w.notified = true
	w.cancel <- struct{}{}
	return true
}

// wait blocks until HotMain has returned and reports its error.
func (w *worker) wait() error {
	<-w.done
	return w.err
}

func (w *worker) finished() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}
