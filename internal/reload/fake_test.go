package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/hotswap/internal/build"
	"github.com/Iron-Ham/hotswap/internal/custodian"
	"github.com/Iron-Ham/hotswap/internal/event"
	"github.com/Iron-Ham/hotswap/internal/library"
	"github.com/Iron-Ham/hotswap/internal/testutil"
)

const testArtifact = "/work/unit.so"

// fakeLib is a unit whose symbols are plain Go values.
type fakeLib map[string]any

func (l fakeLib) Lookup(name string) (any, error) {
	sym, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found", name)
	}
	return sym, nil
}

// unitFunc builds the symbols of one generation.
type unitFunc func(gen uint64) fakeLib

// fakeLoader reads the generation number the fake builder wrote into the
// artifact and asks unit for that generation's symbols.
type fakeLoader struct {
	fs   afero.Fs
	unit unitFunc

	mu   sync.Mutex
	fail func(gen uint64) error
}

func (l *fakeLoader) Open(path string) (library.Library, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, err
	}
	var gen uint64
	if _, err := fmt.Sscanf(string(data), "gen %d", &gen); err != nil {
		return nil, err
	}

	l.mu.Lock()
	fail := l.fail
	l.mu.Unlock()
	if fail != nil {
		if err := fail(gen); err != nil {
			return nil, err
		}
	}
	return l.unit(gen), nil
}

// fakeBuilder writes "gen N" to the artifact.
type fakeBuilder struct {
	fs afero.Fs

	calls   atomic.Int32
	started chan uint64

	mu      sync.Mutex
	fail    func(attempt int32, req build.Request) error
	release chan struct{} // when set, reload builds wait for it to close
}

func newFakeBuilder(fs afero.Fs) *fakeBuilder {
	return &fakeBuilder{fs: fs, started: make(chan uint64, 16)}
}

func (b *fakeBuilder) Build(ctx context.Context, req build.Request) error {
	attempt := b.calls.Add(1)

	b.mu.Lock()
	fail, release := b.fail, b.release
	b.mu.Unlock()

	select {
	case b.started <- req.Generation:
	default:
	}

	if release != nil && req.Generation > 0 {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		if err := fail(attempt, req); err != nil {
			return err
		}
	}
	if err := b.fs.MkdirAll(filepath.Dir(req.Artifact), 0755); err != nil {
		return err
	}
	return afero.WriteFile(b.fs, req.Artifact, fmt.Appendf(nil, "gen %d", req.Generation), 0755)
}

// fakeDetector reports one change per call to change.
type fakeDetector struct {
	mu      sync.Mutex
	changes int
}

func (d *fakeDetector) change() {
	d.mu.Lock()
	d.changes++
	d.mu.Unlock()
}

func (d *fakeDetector) Poll() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.changes == 0 {
		return false
	}
	d.changes--
	return true
}

type fakeShutdown struct {
	flag atomic.Bool

	mu           sync.Mutex
	registered   bool
	registers    int
	unregisters  int
	registerFail error
}

func (s *fakeShutdown) Register() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registerFail != nil {
		return s.registerFail
	}
	s.registered = true
	s.registers++
	return nil
}

func (s *fakeShutdown) Triggered() bool { return s.flag.Load() }

func (s *fakeShutdown) Unregister() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = false
	s.unregisters++
	return nil
}

func (s *fakeShutdown) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

func (s *fakeShutdown) unregisterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unregisters
}

// call is one entry point invocation seen by the recorder.
type call struct {
	name string
	gen  uint64
	in   int
	out  int
}

type recorder struct {
	mu    sync.Mutex
	calls []call

	active    atomic.Int32
	maxActive atomic.Int32
}

func (r *recorder) add(c call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recorder) named(name string) []call {
	var out []call
	for _, c := range r.snapshot() {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) enter() {
	n := r.active.Add(1)
	for {
		m := r.maxActive.Load()
		if n <= m || r.maxActive.CompareAndSwap(m, n) {
			return
		}
	}
}

func (r *recorder) exit() { r.active.Add(-1) }

// counterUnit carries an int: HotMain adds one when cancelled, HotPostMain
// adds ten.
func counterUnit(rec *recorder) unitFunc {
	return func(gen uint64) fakeLib {
		return fakeLib{
			library.SymbolInit: library.InitFunc(func() any {
				rec.add(call{name: "init", gen: gen})
				return 0
			}),
			library.SymbolMain: library.MainFunc(func(state any, cancel <-chan struct{}) any {
				rec.enter()
				defer rec.exit()
				n := state.(int)
				<-cancel
				rec.add(call{name: "main", gen: gen, in: n, out: n + 1})
				return n + 1
			}),
			library.SymbolPostMain: library.PostMainFunc(func(state any) any {
				n := state.(int)
				rec.add(call{name: "post", gen: gen, in: n, out: n + 10})
				return n + 10
			}),
			library.SymbolDrop: library.DropFunc(func(state any) {
				n := state.(int)
				rec.add(call{name: "drop", gen: gen, in: n})
			}),
		}
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *eventLog) add(e event.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) count(match func(event.Event) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if match(e) {
			n++
		}
	}
	return n
}

func cancelledFor(reason string) func(event.Event) bool {
	return func(e event.Event) bool {
		c, ok := e.(event.WorkerCancelledEvent)
		return ok && c.Reason == reason
	}
}

func abortedAt(stage string) func(event.Event) bool {
	return func(e event.Event) bool {
		a, ok := e.(event.ReloadAbortedEvent)
		return ok && a.Stage == stage
	}
}

func closedFor(id library.GenerationID) func(event.Event) bool {
	return func(e event.Event) bool {
		c, ok := e.(event.GenerationClosedEvent)
		return ok && c.Generation == uint64(id)
	}
}

// indexOf returns the position of the first event matching match, or -1.
func (l *eventLog) indexOf(match func(event.Event) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.events {
		if match(e) {
			return i
		}
	}
	return -1
}

type harness struct {
	t        *testing.T
	fs       afero.Fs
	store    *library.Store
	loader   *fakeLoader
	builder  *fakeBuilder
	detector *fakeDetector
	shutdown *fakeShutdown
	events   *eventLog
	ctrl     *Controller

	cancel context.CancelFunc
	errc   chan error
}

func newHarness(t *testing.T, unit unitFunc) *harness {
	t.Helper()

	fs := afero.NewMemMapFs()
	loader := &fakeLoader{fs: fs, unit: unit}
	store := library.NewStore(testArtifact, loader, library.StoreOptions{
		Fs:            fs,
		RetryInterval: time.Millisecond,
	})
	h := &harness{
		t:        t,
		fs:       fs,
		store:    store,
		loader:   loader,
		builder:  newFakeBuilder(fs),
		detector: &fakeDetector{},
		shutdown: &fakeShutdown{},
		events:   &eventLog{},
		errc:     make(chan error, 1),
	}

	bus := event.NewBus(nil)
	bus.SubscribeAll(h.events.add)

	ctrl, err := New(Config{Interval: 5 * time.Millisecond, BuildDir: "/work"}, Dependencies{
		Detector: h.detector,
		Builder:  h.builder,
		Store:    store,
		Invoker:  library.NewInvoker(custodian.New()),
		Shutdown: h.shutdown,
		Bus:      bus,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.ctrl = ctrl
	return h
}

// run starts the controller without waiting for the initial generation.
func (h *harness) run() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.t.Cleanup(cancel)
	go func() { h.errc <- h.ctrl.Run(ctx) }()
}

// start runs the controller and waits for generation 0's worker.
func (h *harness) start() {
	h.t.Helper()
	h.run()
	h.waitGeneration(0)
}

func (h *harness) waitGeneration(id library.GenerationID) {
	h.t.Helper()
	testutil.Eventually(h.t, 5*time.Second, func() bool {
		got, ok := h.ctrl.Generation()
		return ok && got == id && h.ctrl.State() == Idle && h.ctrl.WorkerRunning()
	}, fmt.Sprintf("worker running generation %d", id))
}

// wait returns Run's result.
func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("Run() did not return")
		return nil
	}
}

func (h *harness) exists(id library.GenerationID) bool {
	ok, err := afero.Exists(h.fs, h.store.PathFor(id))
	if err != nil {
		h.t.Fatalf("stat generation %d: %v", id, err)
	}
	return ok
}
