package watcher

import (
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/logging"
)

// Detector reports whether a tree changed since the previous poll.
type Detector struct {
	root      string
	fs        afero.Fs
	filter    *Filter
	threshold int64
	pool      *ants.Pool
	notify    *notifier
	logger    *logging.Logger

	mu   sync.Mutex
	last uint64
}

// New creates a Detector for root and records the baseline fingerprint.
// An unreadable root or an invalid ignore pattern is a configuration error.
func New(root string, opts Options, logger *logging.Logger) (*Detector, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithComponent("watcher")

	filter, err := NewFilter(opts.Ignore)
	if err != nil {
		return nil, errors.NewWatchError("invalid ignore pattern", err).WithKind(errors.KindConfiguration)
	}

	d := &Detector{
		root:      root,
		fs:        opts.Fs,
		filter:    filter,
		threshold: opts.SizeThreshold,
		logger:    logger,
	}

	if opts.Workers > 1 {
		d.pool, err = ants.NewPool(opts.Workers)
		if err != nil {
			return nil, errors.Wrap(err, "create hashing pool")
		}
	}

	if opts.Notify {
		if _, osBacked := opts.Fs.(*afero.OsFs); osBacked {
			d.notify, err = startNotifier(root, filter, logger)
			if err != nil {
				logger.Warn("fsnotify unavailable, polling every tick", "error", err.Error())
				d.notify = nil
			}
		} else {
			logger.Warn("notify mode needs the OS filesystem, polling every tick")
		}
	}

	d.last, err = d.Fingerprint()
	if err != nil {
		d.Close()
		var watchErr *errors.WatchError
		if errors.As(err, &watchErr) {
			watchErr.WithKind(errors.KindConfiguration)
		}
		return nil, err
	}
	logger.Debug("baseline fingerprint", "root", root, "fingerprint", d.last)
	return d, nil
}

// Fingerprint computes the current fingerprint without updating the baseline.
func (d *Detector) Fingerprint() (uint64, error) {
	return fingerprint(d.fs, d.root, d.filter, d.threshold, d.pool)
}

// Poll reports whether the fingerprint differs from the previous call (or
// from the baseline on the first call). It never fails: an unreadable root is
// logged and reported as unchanged.
func (d *Detector) Poll() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.notify != nil && !d.notify.takeDirty() {
		return false
	}

	fp, err := d.Fingerprint()
	if err != nil {
		d.logger.Warn("fingerprint failed, treating tree as unchanged", "error", err.Error())
		return false
	}
	changed := fp != d.last
	d.last = fp
	if changed {
		d.logger.Debug("tree changed", "fingerprint", fp)
	}
	return changed
}

// Last returns the fingerprint recorded by the most recent poll.
func (d *Detector) Last() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Notifying reports whether the fsnotify fast path is active.
func (d *Detector) Notifying() bool {
	return d.notify != nil
}

// Close stops the notify watcher and releases the hashing pool.
func (d *Detector) Close() {
	if d.notify != nil {
		d.notify.close()
	}
	if d.pool != nil {
		d.pool.Release()
	}
}
