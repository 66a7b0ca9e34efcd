// Package custodian holds the application state that survives code reloads.
//
// The state is an opaque value owned by exactly one party at a time: either
// the custodian or the entry point currently running. Take moves it out and
// Put moves it back; any other sequence is a bug in the engine and is reported
// as an invariant violation.
package custodian

import (
	"sync"

	"github.com/Iron-Ham/hotswap/internal/errors"
)

// Custodian is the single owner of the carried state between entry-point
// calls. It is safe for concurrent use.
type Custodian struct {
	mu       sync.Mutex
	value    any
	held     bool
	handoffs uint64
}

// New returns a custodian in the checked-out position: the first Put is
// expected to store the result of the initialization entry point.
func New() *Custodian {
	return &Custodian{}
}

// Take moves the state out of the custodian.
func (c *Custodian) Take() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.held {
		return nil, errors.NewInvariantError("take while state is checked out", errors.ErrStateCheckedOut).
			WithComponent("custodian")
	}
	v := c.value
	c.value = nil
	c.held = false
	c.handoffs++
	return v, nil
}

// Put moves the state back into the custodian.
func (c *Custodian) Put(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.held {
		return errors.NewInvariantError("put while state is held", errors.ErrStateAlreadyHeld).
			WithComponent("custodian")
	}
	c.value = v
	c.held = true
	c.handoffs++
	return nil
}

// Held reports whether the custodian currently owns the state.
func (c *Custodian) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// Handoffs counts completed Take and Put calls.
func (c *Custodian) Handoffs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handoffs
}
