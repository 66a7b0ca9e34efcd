// Package hot is imported by reloadable units built with -buildmode=plugin.
//
// A unit exports up to four entry points that the host resolves by name. The
// carried state type lives in its own package, not in the unit's package
// main:
//
//	// app/state/state.go
//	package state
//
//	type App struct{ Count int }
//
//	// app/main.go
//	package main
//
//	var HotInit = hot.Init(func() *state.App { return &state.App{} })
//	var HotMain = hot.Main(func(app *state.App, cancel <-chan struct{}) *state.App {
//	    tick := hot.NewTimer(time.Second)
//	    for !hot.Ended(cancel) {
//	        if tick.PollInterval() {
//	            app.Count++
//	        }
//	    }
//	    return app
//	})
//	var HotPostMain = hot.PostMain(func(app *state.App) *state.App { return app }) // optional
//	var HotDrop = hot.Drop(func(app *state.App) { app.Close() })                  // optional
//
// Every generation's package main is compiled under its own import path, so a
// type declared there is a different type in each generation and the first
// reload would fail the assertion below. The state package, and any other
// package the unit shares with earlier generations, must stay unchanged while
// the host runs: the runtime refuses to load a plugin built against a
// different version of an already loaded package. Edit package main freely;
// restart the host after changing the state package.
//
// The state crosses the plugin boundary as an untyped value. The adapters
// assert it back with [MustCast], so a unit whose state type no longer matches
// the running state aborts loudly instead of continuing with garbage. Units
// that prefer to migrate can export the untyped signatures directly and use
// [Cast].
//
// HotMain must return promptly once cancel delivers a value; returning is the
// only way to hand the state back for a swap.
package hot
