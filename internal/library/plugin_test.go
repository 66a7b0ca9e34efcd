package library

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/hotswap/internal/build"
	"github.com/Iron-Ham/hotswap/internal/config"
	"github.com/Iron-Ham/hotswap/internal/custodian"
	"github.com/Iron-Ham/hotswap/internal/library/testdata/counter/state"
	"github.com/Iron-Ham/hotswap/internal/testutil"
)

// requirePlugins skips unless this test binary can load plugins built by the
// go command on PATH.
func requirePlugins(t *testing.T) {
	t.Helper()
	testutil.SkipIfShort(t)

	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
	default:
		t.Skipf("plugins are not supported on %s", runtime.GOOS)
	}
	if raceEnabled || testing.CoverMode() != "" {
		t.Skip("plugins must be built with the same instrumentation as the host")
	}
	out, err := exec.Command("go", "env", "CGO_ENABLED", "CC").Output()
	if err != nil {
		t.Skipf("go command not available: %v", err)
	}
	env := strings.Fields(string(out))
	if len(env) < 2 || env[0] != "1" {
		t.Skip("cgo is disabled")
	}
	if _, err := exec.LookPath(env[1]); err != nil {
		t.Skipf("no C compiler: %v", err)
	}
}

func takeCounter(t *testing.T, c *custodian.Custodian) *state.Counter {
	t.Helper()
	v, err := c.Take()
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	counter, ok := v.(*state.Counter)
	if !ok {
		t.Fatalf("carried state has type %T, want *state.Counter", v)
	}
	if err := c.Put(counter); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return counter
}

func cancelled() <-chan struct{} {
	cancel := make(chan struct{}, 1)
	cancel <- struct{}{}
	return cancel
}

func TestPluginLoader_StateCrossesGenerations(t *testing.T) {
	requirePlugins(t)

	dir, err := filepath.Abs(filepath.Join("testdata", "counter"))
	if err != nil {
		t.Fatal(err)
	}
	var output bytes.Buffer
	builder, err := build.NewCommandBuilder(config.DefaultBuildCommand(),
		build.WithStaging(), build.WithOutput(&output, &output))
	if err != nil {
		t.Fatalf("NewCommandBuilder() error = %v", err)
	}

	artifact := filepath.Join(t.TempDir(), "counter.so")
	store := NewStore(artifact, PluginLoader{}, StoreOptions{})
	c := custodian.New()
	iv := NewInvoker(c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	buildGeneration := func(id GenerationID) {
		t.Helper()
		req := build.Request{Generation: uint64(id), Artifact: artifact, Dir: dir}
		if err := builder.Build(ctx, req); err != nil {
			t.Fatalf("build generation %d: %v\n%s", id, err, output.String())
		}
	}

	buildGeneration(0)
	gen0, err := store.LoadInitial()
	if err != nil {
		t.Fatalf("LoadInitial() error = %v", err)
	}
	if err := iv.Validate(gen0); err != nil {
		t.Fatalf("Validate(gen0) error = %v", err)
	}
	if err := iv.Init(gen0); err != nil {
		t.Fatalf("Init(gen0) error = %v", err)
	}
	if err := iv.Main(gen0, cancelled()); err != nil {
		t.Fatalf("Main(gen0) error = %v", err)
	}

	buildGeneration(store.NextID())
	gen1, err := store.PrepareNext()
	if err != nil {
		t.Fatalf("PrepareNext() error = %v", err)
	}
	if err := iv.Validate(gen1); err != nil {
		t.Fatalf("Validate(gen1) error = %v", err)
	}

	if err := iv.PostMain(gen0); err != nil {
		t.Fatalf("PostMain(gen0) error = %v", err)
	}
	if err := store.Close(gen0); err != nil {
		t.Fatalf("Close(gen0) error = %v", err)
	}
	if err := iv.Main(gen1, cancelled()); err != nil {
		t.Fatalf("Main(gen1) error = %v", err)
	}

	counter := takeCounter(t, c)
	if err := iv.Drop(gen1); err != nil {
		t.Fatalf("Drop(gen1) error = %v", err)
	}
	if c.Held() {
		t.Error("HotDrop should consume the state")
	}

	if counter.Mains != 2 || counter.Posts != 1 || !counter.Dropped {
		t.Errorf("counter = %+v, want 2 mains, 1 post and a drop", counter)
	}
	if len(counter.Units) != 2 || counter.Units[0] == counter.Units[1] {
		t.Fatalf("HotMain import paths = %v, want two distinct generations", counter.Units)
	}
	for i, unit := range counter.Units {
		want := strings.TrimPrefix(build.StagePackage(uint64(i)), "./")
		if !strings.HasSuffix(unit, want) {
			t.Errorf("generation %d ran from %q, want a path ending in %s", i, unit, want)
		}
	}

	if err := store.Close(gen1); err != nil {
		t.Fatalf("Close(gen1) error = %v", err)
	}
	if live := store.Live(); len(live) != 0 {
		t.Errorf("Live() = %v, want empty", live)
	}
	for _, id := range []GenerationID{0, 1} {
		if _, err := os.Stat(store.PathFor(id)); !os.IsNotExist(err) {
			t.Errorf("generation %d file still present: %v", id, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, build.StageDir)); !os.IsNotExist(err) {
		t.Errorf("staged packages left in %s: %v", dir, err)
	}
}

func TestPluginLoader_OpenErrors(t *testing.T) {
	requirePlugins(t)

	notPlugin := testutil.WriteFile(t, t.TempDir(), "junk.so", "not an ELF file")
	if _, err := (PluginLoader{}).Open(notPlugin); err == nil {
		t.Error("Open() of a non-plugin file should fail")
	} else if !strings.Contains(err.Error(), notPlugin) {
		t.Errorf("Open() error = %v, want it to name the file", err)
	}
	if _, err := (PluginLoader{}).Open(filepath.Join(t.TempDir(), "missing.so")); err == nil {
		t.Error("Open() of a missing file should fail")
	}
}
