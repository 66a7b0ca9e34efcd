package hot

import "time"

// EndedWait is how long Ended waits for a cancellation notification.
const EndedWait = 50 * time.Millisecond

// Ended waits up to EndedWait for a cancellation notification and reports
// whether one arrived. It doubles as the pacing sleep of a polling loop.
func Ended(cancel <-chan struct{}) bool {
	t := time.NewTimer(EndedWait)
	defer t.Stop()
	select {
	case <-cancel:
		return true
	case <-t.C:
		return false
	}
}

// Timer is a non-blocking interval check for polling loops.
type Timer struct {
	deadline time.Time
	interval time.Duration
	now      func() time.Time
}

// NewTimer returns a Timer whose first deadline is interval from now.
func NewTimer(interval time.Duration) *Timer {
	t := &Timer{interval: interval, now: time.Now}
	t.Reset()
	return t
}

// Poll reports whether the deadline has passed.
func (t *Timer) Poll() bool {
	return !t.now().Before(t.deadline)
}

// PollInterval is Poll that also restarts the interval when it fires.
func (t *Timer) PollInterval() bool {
	if !t.Poll() {
		return false
	}
	t.Reset()
	return true
}

// Reset moves the deadline to one interval from now.
func (t *Timer) Reset() {
	t.deadline = t.now().Add(t.interval)
}
