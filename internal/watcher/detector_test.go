package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/testutil"
)

func TestDetector_PollIdempotentWithoutChanges(t *testing.T) {
	fs := testutil.SetupMemTree(t, memRoot, map[string]string{"main.go": "package main"})
	d, err := New(memRoot, Options{Fs: fs}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if d.Poll() {
		t.Error("first Poll on an unchanged tree reported a change")
	}
	if d.Poll() {
		t.Error("second Poll on an unchanged tree reported a change")
	}
}

func TestDetector_PollReportsEachChangeOnce(t *testing.T) {
	fs := testutil.SetupMemTree(t, memRoot, map[string]string{"main.go": "package main"})
	d, err := New(memRoot, Options{Fs: fs, Workers: 4}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	baseline := d.Last()
	if err := afero.WriteFile(fs, memRoot+"/main.go", []byte("package main // edited"), 0644); err != nil {
		t.Fatal(err)
	}

	if !d.Poll() {
		t.Fatal("Poll did not report the edit")
	}
	if d.Last() == baseline {
		t.Error("Last() should advance after a change")
	}
	if d.Poll() {
		t.Error("the same change was reported twice")
	}
}

func TestDetector_IgnoredChangesDoNotTrigger(t *testing.T) {
	fs := testutil.SetupMemTree(t, memRoot, map[string]string{"main.go": "package main"})
	d, err := New(memRoot, Options{Fs: fs, Ignore: []string{"*.so*"}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	for _, rel := range []string{"app.so", "app.so.0", ".git/HEAD", "main.go~"} {
		_ = fs.MkdirAll(filepath.Dir(filepath.Join(memRoot, rel)), 0755)
		if err := afero.WriteFile(fs, filepath.Join(memRoot, rel), []byte(rel), 0644); err != nil {
			t.Fatal(err)
		}
		if d.Poll() {
			t.Errorf("writing %s triggered a change", rel)
		}
	}
}

func TestDetector_RootUnreadableIsConfigurationError(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := New("/nowhere", Options{Fs: fs}, nil)
	if !errors.Is(err, errors.ErrRootUnreadable) {
		t.Fatalf("New error = %v, want ErrRootUnreadable", err)
	}
	if !errors.IsFatal(err) {
		t.Error("unreadable root at construction should be fatal")
	}
}

func TestDetector_RootVanishesAfterStart(t *testing.T) {
	fs := testutil.SetupMemTree(t, memRoot, map[string]string{"main.go": "package main"})
	d, err := New(memRoot, Options{Fs: fs}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if err := fs.RemoveAll(memRoot); err != nil {
		t.Fatal(err)
	}
	if d.Poll() {
		t.Error("a poll failure must be reported as unchanged")
	}
}

func TestDetector_NotifyNeedsOsFs(t *testing.T) {
	fs := testutil.SetupMemTree(t, memRoot, nil)
	d, err := New(memRoot, Options{Fs: fs, Notify: true}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if d.Notifying() {
		t.Error("notify mode should fall back to polling on a memory filesystem")
	}
}

func TestDetector_NotifyMode(t *testing.T) {
	testutil.SkipIfShort(t)

	root := testutil.SetupTree(t, map[string]string{
		"main.go":    "package main",
		"pkg/lib.go": "package pkg",
	})
	d, err := New(root, Options{Notify: true}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if !d.Notifying() {
		t.Skip("fsnotify unavailable on this platform")
	}

	// The first poll always walks once and finds nothing new.
	if d.Poll() {
		t.Error("initial walk reported a change")
	}
	if d.Poll() {
		t.Error("clean detector reported a change")
	}

	testutil.WriteFile(t, root, "pkg/lib.go", "package pkg // edited")
	testutil.Eventually(t, 2*time.Second, d.Poll, "edit in a watched subdirectory")

	testutil.WriteFile(t, root, "newdir/sub/file.go", "package sub")
	testutil.Eventually(t, 2*time.Second, d.Poll, "file in a newly created directory")

	testutil.WriteFile(t, root, "newdir/sub/file.go", "package sub // again")
	testutil.Eventually(t, 2*time.Second, d.Poll, "edit in a directory added after start")
}

func TestDetector_NotifyIgnoresExcluded(t *testing.T) {
	testutil.SkipIfShort(t)

	root := testutil.SetupTree(t, map[string]string{"main.go": "package main"})
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	d, err := New(root, Options{Notify: true}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()
	if !d.Notifying() {
		t.Skip("fsnotify unavailable on this platform")
	}
	d.Poll()

	testutil.WriteFile(t, root, "main.go~", "backup")
	testutil.WriteFile(t, root, ".git/index", "vcs")
	time.Sleep(200 * time.Millisecond)

	if d.Poll() {
		t.Error("excluded writes should not trigger a change")
	}
}
