package hot

import (
	"github.com/sourcegraph/conc/panics"
)

// Thread is a goroutine with a single-slot cancellation channel.
type Thread[T any] struct {
	cancel chan struct{}
	done   chan struct{}
	result T
	err    error
}

// Spawn runs fn on a new goroutine. fn should return soon after cancel
// delivers a value.
func Spawn[T any](fn func(cancel <-chan struct{}) T) *Thread[T] {
	th := &Thread[T]{
		cancel: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(th.done)
		var pc panics.Catcher
		pc.Try(func() { th.result = fn(th.cancel) })
		if r := pc.Recovered(); r != nil {
			th.err = r.AsError()
		}
	}()
	return th
}

// Kill sends the cancellation notification and waits for fn to return.
// Calling Kill more than once only waits.
func (th *Thread[T]) Kill() {
	select {
	case th.cancel <- struct{}{}:
	default:
	}
	<-th.done
}

// Join waits for fn to return. A panic in fn is returned as an error.
func (th *Thread[T]) Join() (T, error) {
	<-th.done
	return th.result, th.err
}

// Done is closed once fn has returned.
func (th *Thread[T]) Done() <-chan struct{} {
	return th.done
}
