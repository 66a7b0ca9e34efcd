package library

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/logging"
)

// GenerationID numbers the generations of the reloadable unit. IDs start at
// zero and are never reused within a process.
type GenerationID uint64

func (id GenerationID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Generation is one loaded copy of the unit, backed by its own file.
type Generation struct {
	ID   GenerationID
	Path string

	mu      sync.Mutex
	lib     Library
	closed  bool
	removed bool
}

// Closed reports whether the store has released this generation.
func (g *Generation) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Removed reports whether the backing file was deleted on close.
func (g *Generation) Removed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removed
}

// library returns the opened unit, or an invariant error once closed.
func (g *Generation) library() (Library, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, errors.NewInvariantError(
			fmt.Sprintf("call into generation %d after close", g.ID), errors.ErrGenerationClosed,
		).WithComponent("library")
	}
	return g.lib, nil
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Fs is the filesystem holding the artifact. Defaults to the OS filesystem.
	Fs afero.Fs
	// Logger receives store diagnostics. Defaults to a no-op logger.
	Logger *logging.Logger
	// RemoveRetries bounds extra attempts to delete a closed generation's file.
	RemoveRetries int
	// RetryInterval is the pause between deletion attempts. Defaults to 50ms.
	RetryInterval time.Duration
}

// Store copies the build artifact to a fresh per-generation path before each
// load and tracks every live generation.
type Store struct {
	artifact string
	loader   Loader
	fs       afero.Fs
	logger   *logging.Logger
	retries  int
	interval time.Duration

	next  atomic.Uint64
	arena cmap.ConcurrentMap[GenerationID, *Generation]
}

// NewStore creates a Store for the artifact path P. Generations are written
// to P.0, P.1, ...
func NewStore(artifact string, loader Loader, opts StoreOptions) *Store {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	return &Store{
		artifact: artifact,
		loader:   loader,
		fs:       opts.Fs,
		logger:   opts.Logger.WithComponent("library"),
		retries:  max(opts.RemoveRetries, 0),
		interval: opts.RetryInterval,
		arena:    cmap.NewStringer[GenerationID, *Generation](),
	}
}

// Artifact returns the path the build writes to.
func (s *Store) Artifact() string {
	return s.artifact
}

// PathFor returns the backing file path of a generation.
func (s *Store) PathFor(id GenerationID) string {
	return s.artifact + "." + id.String()
}

// NextID reports the ID the next load will use.
func (s *Store) NextID() GenerationID {
	return GenerationID(s.next.Load())
}

// LoadInitial loads generation 0. Failure is a configuration error.
func (s *Store) LoadInitial() (*Generation, error) {
	if !s.next.CompareAndSwap(0, 1) {
		return nil, errors.NewInvariantError("initial generation already loaded", nil).
			WithComponent("library")
	}
	g, err := s.load(0)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// PrepareNext increments the counter and loads the next generation from the
// current artifact. Failure is transient: the running generation is untouched.
func (s *Store) PrepareNext() (*Generation, error) {
	id := GenerationID(s.next.Add(1) - 1)
	g, err := s.load(id)
	if err != nil {
		var libErr *errors.LibraryError
		if errors.As(err, &libErr) {
			libErr.WithKind(errors.KindTransient)
		}
		return nil, err
	}
	return g, nil
}

func (s *Store) load(id GenerationID) (*Generation, error) {
	path := s.PathFor(id)
	log := s.logger.WithGeneration(uint64(id))

	if err := s.copyArtifact(path); err != nil {
		return nil, errors.NewLibraryError("copy artifact", errors.Join(errors.ErrLibraryCopy, err)).
			WithGeneration(uint64(id)).
			WithPath(path)
	}

	lib, err := s.loader.Open(path)
	if err != nil {
		if rmErr := s.fs.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn("failed to remove unloadable generation file", "path", path, "error", rmErr.Error())
		}
		return nil, errors.NewLibraryError("open generation", errors.Join(errors.ErrLibraryLoad, err)).
			WithGeneration(uint64(id)).
			WithPath(path)
	}

	g := &Generation{ID: id, Path: path, lib: lib}
	s.arena.Set(id, g)
	log.Info("generation loaded", "path", path)
	return g, nil
}

func (s *Store) copyArtifact(dst string) error {
	src, err := s.fs.Open(s.artifact)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", s.artifact)
	}

	out, err := s.fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Close releases a generation: it is removed from the live set, its library
// reference is dropped and its backing file deleted. Deletion failures are
// logged and do not fail the call. Closing a generation twice is an
// invariant violation.
func (s *Store) Close(g *Generation) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return errors.NewInvariantError(
			fmt.Sprintf("generation %d closed twice", g.ID), errors.ErrGenerationClosed,
		).WithComponent("library")
	}
	g.closed = true
	g.lib = nil
	g.mu.Unlock()

	s.arena.Remove(g.ID)
	log := s.logger.WithGeneration(uint64(g.ID))

	err := s.remove(g.Path)
	g.mu.Lock()
	g.removed = err == nil
	g.mu.Unlock()
	if err != nil {
		log.Warn("failed to delete generation file", "path", g.Path, "error", err.Error())
		return nil
	}
	log.Info("generation closed", "path", g.Path)
	return nil
}

func (s *Store) remove(path string) error {
	op := func() error {
		err := s.fs.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.interval), uint64(s.retries))
	return backoff.Retry(op, policy)
}

// Get returns a live generation by ID.
func (s *Store) Get(id GenerationID) (*Generation, bool) {
	return s.arena.Get(id)
}

// Live lists the IDs of generations that are loaded and not yet closed.
func (s *Store) Live() []GenerationID {
	ids := s.arena.Keys()
	slices.Sort(ids)
	return ids
}
