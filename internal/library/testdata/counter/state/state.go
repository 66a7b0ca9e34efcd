// Package state holds the value the counter unit carries across reloads.
package state

// Counter records every entry point call it passes through.
type Counter struct {
	Mains   int
	Posts   int
	Dropped bool
	// Units lists the import path of each generation that ran HotMain.
	Units []string
}
