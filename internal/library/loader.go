package library

import (
	"plugin"

	"github.com/Iron-Ham/hotswap/internal/errors"
)

// Library is an opened reloadable unit.
type Library interface {
	// Lookup returns the exported symbol with the given name.
	Lookup(name string) (any, error)
}

// Loader opens a reloadable unit from a file path.
type Loader interface {
	Open(path string) (Library, error)
}

// PluginLoader loads units built with -buildmode=plugin.
//
// The Go runtime never unmaps a plugin, and it refuses to open a plugin whose
// main package import path is already loaded. Every generation must be
// compiled from a package with its own import path; staged builds (see
// build.WithStaging) do that by copying the package to _hotswap/gen<N>.
// Overriding -pluginpath at link time does not work: the symbols keep the
// import path they were compiled under.
type PluginLoader struct{}

// Open implements Loader.
func (PluginLoader) Open(path string) (Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open plugin %s", path)
	}
	return pluginLibrary{p: p}, nil
}

type pluginLibrary struct {
	p *plugin.Plugin
}

func (l pluginLibrary) Lookup(name string) (any, error) {
	sym, err := l.p.Lookup(name)
	if err != nil {
		return nil, err
	}
	return sym, nil
}
