package shutdown

import (
	"os"
	"testing"
	"time"

	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/testutil"
)

// fakeSignals replaces signal.Notify and signal.Stop on h.
func fakeSignals(h *Handler) (deliver func(os.Signal), stopped *bool) {
	var target chan<- os.Signal
	stopped = new(bool)
	h.notify = func(c chan<- os.Signal, _ ...os.Signal) { target = c }
	h.stop = func(chan<- os.Signal) { *stopped = true }
	return func(sig os.Signal) { target <- sig }, stopped
}

func TestHandler_SignalSetsFlag(t *testing.T) {
	h := New(nil)
	deliver, stopped := fakeSignals(h)

	if err := h.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.Triggered() {
		t.Fatal("flag set before any signal")
	}

	deliver(os.Interrupt)
	testutil.Eventually(t, time.Second, h.Triggered, "flag after interrupt")

	if err := h.Unregister(); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if !*stopped {
		t.Error("Unregister should stop signal delivery")
	}
	if !h.Triggered() {
		t.Error("flag must stay set after unregister")
	}
}

func TestHandler_Trigger(t *testing.T) {
	h := New(nil)
	h.Trigger()
	if !h.Triggered() {
		t.Error("Trigger should set the flag")
	}
}

func TestHandler_RegisterTwice(t *testing.T) {
	h := New(nil)
	fakeSignals(h)

	if err := h.Register(); err != nil {
		t.Fatal(err)
	}
	defer h.Unregister()

	err := h.Register()
	if !errors.Is(err, errors.ErrAlreadyRegistered) || !errors.IsInvariant(err) {
		t.Errorf("second Register error = %v, want invariant ErrAlreadyRegistered", err)
	}
}

func TestHandler_UnregisterWithoutRegister(t *testing.T) {
	h := New(nil)
	err := h.Unregister()
	if !errors.Is(err, errors.ErrNotRegistered) {
		t.Fatalf("error = %v, want ErrNotRegistered", err)
	}
	if !errors.IsFatal(err) {
		t.Error("unregistering an unregistered handler is fatal")
	}
}

func TestHandler_ReRegisterAfterUnregister(t *testing.T) {
	h := New(nil)
	fakeSignals(h)

	if err := h.Register(); err != nil {
		t.Fatal(err)
	}
	if err := h.Unregister(); err != nil {
		t.Fatal(err)
	}
	if h.Registered() {
		t.Error("Registered() = true after Unregister")
	}
	if err := h.Unregister(); !errors.Is(err, errors.ErrNotRegistered) {
		t.Errorf("double Unregister error = %v", err)
	}
}
