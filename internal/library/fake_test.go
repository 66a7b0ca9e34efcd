package library

import (
	"fmt"
	"sync"

	"github.com/spf13/afero"
)

// fakeLibrary serves symbols from a map.
type fakeLibrary map[string]any

func (l fakeLibrary) Lookup(name string) (any, error) {
	sym, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found", name)
	}
	return sym, nil
}

// fakeLoader opens any file that exists on fs and returns the library
// produced by build, keyed by path.
type fakeLoader struct {
	fs    afero.Fs
	build func(path string) fakeLibrary
	fail  error

	mu     sync.Mutex
	opened []string
}

func (l *fakeLoader) Open(path string) (Library, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	if _, err := l.fs.Stat(path); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.opened = append(l.opened, path)
	l.mu.Unlock()
	if l.build == nil {
		return fakeLibrary{}, nil
	}
	return l.build(path), nil
}
