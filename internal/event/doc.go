// Package event provides the pub-sub bus the reload engine reports through.
//
// The controller publishes one event per step of a reload cycle (change
// detected, build started and finished, generation loaded and closed, worker
// started, cancelled and exited, reload completed or aborted, shutdown
// requested). The console reporter and the metrics collector subscribe to the
// bus, so neither depends on the controller directly.
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers are called synchronously on the
// publishing goroutine; a panicking handler is logged and does not prevent
// delivery to the remaining handlers.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeBuildFinished, func(e event.Event) {
//	    finished := e.(event.BuildFinishedEvent)
//	    if !finished.Succeeded() {
//	        fmt.Println("build failed:", finished.Err)
//	    }
//	})
//	bus.Publish(event.NewBuildFinishedEvent(3, time.Second, nil))
package event
