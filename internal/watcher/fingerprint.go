package watcher

import (
	"hash/maphash"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/afero"
	"github.com/valyala/bytebufferpool"

	"github.com/Iron-Ham/hotswap/internal/errors"
)

// DefaultSizeThreshold is the file size at and above which only the size is
// fingerprinted.
const DefaultSizeThreshold int64 = 3_000_000

// signatureDivisor scales every per-file signature down before summing.
const signatureDivisor = 100

// processSeed is shared by every fingerprint in the process so results are
// comparable across calls.
var processSeed = sync.OnceValue(maphash.MakeSeed)

// Options configures fingerprinting and the Detector.
type Options struct {
	// Fs is the filesystem to walk. Defaults to the OS filesystem.
	Fs afero.Fs
	// SizeThreshold defaults to DefaultSizeThreshold.
	SizeThreshold int64
	// Ignore lists extra exclusion globs (see NewFilter).
	Ignore []string
	// Workers sizes the hashing pool. Values below 2 hash sequentially.
	Workers int
	// Notify enables the fsnotify fast path (OS filesystem only).
	Notify bool
}

func (o Options) withDefaults() Options {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.SizeThreshold <= 0 {
		o.SizeThreshold = DefaultSizeThreshold
	}
	return o
}

// Fingerprint computes the fingerprint of the tree at root.
func Fingerprint(afs afero.Fs, root string, opts Options) (uint64, error) {
	opts.Fs = afs
	opts = opts.withDefaults()

	filter, err := NewFilter(opts.Ignore)
	if err != nil {
		return 0, errors.NewWatchError("invalid ignore pattern", err).WithKind(errors.KindConfiguration)
	}

	var pool *ants.Pool
	if opts.Workers > 1 {
		pool, err = ants.NewPool(opts.Workers)
		if err != nil {
			return 0, errors.Wrap(err, "create hashing pool")
		}
		defer pool.Release()
	}
	return fingerprint(opts.Fs, root, filter, opts.SizeThreshold, pool)
}

// fingerprint walks root and sums the per-file signatures. Only a failure to
// read root itself is an error.
func fingerprint(afs afero.Fs, root string, filter *Filter, threshold int64, pool *ants.Pool) (uint64, error) {
	info, err := afs.Stat(root)
	if err != nil {
		return 0, errors.NewWatchError("stat root", errors.Join(errors.ErrRootUnreadable, err)).WithPath(root)
	}
	if !info.IsDir() {
		return 0, errors.NewWatchError("root is not a directory", errors.ErrRootUnreadable).WithPath(root)
	}

	var files []string
	walkErr := afero.Walk(afs, root, func(p string, fi fs.FileInfo, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if filter.Excluded(filepath.ToSlash(rel), fi.IsDir()) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.IsDir() {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if walkErr != nil {
		return 0, errors.NewWatchError("walk root", errors.Join(errors.ErrRootUnreadable, walkErr)).WithPath(root)
	}

	var total atomic.Uint64
	add := func(p string) {
		total.Add(signature(afs, p, threshold) / signatureDivisor)
	}

	if pool == nil {
		for _, e := range files {
			add(e)
		}
		return total.Load(), nil
	}

	var wg sync.WaitGroup
	for _, p := range files {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			add(p)
		}
		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	return total.Load(), nil
}

// signature returns the per-file contribution before scaling. The size is
// taken from the symlink target, not the link. Unreadable files contribute
// zero.
func signature(afs afero.Fs, path string, threshold int64) uint64 {
	info, err := afs.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	if size := info.Size(); size >= threshold {
		return uint64(size)
	}

	f, err := afs.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(f); err != nil {
		return 0
	}
	return maphash.Bytes(processSeed(), buf.B)
}
