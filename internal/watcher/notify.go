package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/hotswap/internal/logging"
)

// debounceInterval collapses the burst of events a single editor save emits.
const debounceInterval = 50 * time.Millisecond

// notifier marks the tree dirty when fsnotify reports a relevant event.
type notifier struct {
	watcher *fsnotify.Watcher
	root    string
	filter  *Filter
	logger  *logging.Logger

	dirty  atomic.Bool
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

func startNotifier(root string, filter *Filter, logger *logging.Logger) (*notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	n := &notifier{
		watcher: w,
		root:    root,
		filter:  filter,
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := w.Add(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	n.watchDirRecursive(root)

	// Anything that happened before the watch was in place is caught by
	// one full walk.
	n.dirty.Store(true)
	go n.loop()
	return n, nil
}

// watchDirRecursive adds every non-excluded directory below dir.
func (n *notifier) watchDirRecursive(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if n.excluded(p, true) {
			return filepath.SkipDir
		}
		if p != n.root {
			if err := n.watcher.Add(p); err != nil {
				n.logger.Debug("cannot watch directory", "path", p, "error", err.Error())
			}
		}
		return nil
	})
}

func (n *notifier) excluded(p string, isDir bool) bool {
	rel, err := filepath.Rel(n.root, p)
	if err != nil {
		return false
	}
	return n.filter.Excluded(filepath.ToSlash(rel), isDir)
}

func (n *notifier) loop() {
	defer close(n.done)

	debounce := time.NewTimer(debounceInterval)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-n.stopCh:
			return

		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			isDir := false
			if ev.Op&fsnotify.Create != 0 {
				isDir = isDirectory(ev.Name)
			}
			if n.excluded(ev.Name, isDir) {
				continue
			}
			if isDir {
				n.watchDirRecursive(ev.Name)
				if err := n.watcher.Add(ev.Name); err != nil {
					n.logger.Debug("cannot watch directory", "path", ev.Name, "error", err.Error())
				}
			}
			debounce.Reset(debounceInterval)

		case <-debounce.C:
			n.dirty.Store(true)

		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			// Dropped events (queue overflow) leave us blind; force a walk.
			n.logger.Warn("fsnotify error", "error", err.Error())
			n.dirty.Store(true)
		}
	}
}

// takeDirty reports and clears the dirty mark.
func (n *notifier) takeDirty() bool {
	return n.dirty.Swap(false)
}

func (n *notifier) close() {
	n.once.Do(func() {
		close(n.stopCh)
		_ = n.watcher.Close()
		<-n.done
	})
}

func isDirectory(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
