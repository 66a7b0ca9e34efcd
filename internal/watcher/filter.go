package watcher

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// vimWriteProbe is the temporary file vim creates to test directory writability.
const vimWriteProbe = "4913"

// Filter decides which paths are excluded from the fingerprint.
type Filter struct {
	patterns []glob.Glob
}

// NewFilter compiles extra exclusion globs. Patterns use '/' as separator and
// are matched against the slash-separated path relative to the root and
// against the base name.
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// Excluded reports whether rel (relative to the root, slash separated)
// should be skipped. For a directory, exclusion prunes the whole subtree.
func (f *Filter) Excluded(rel string, isDir bool) bool {
	rel = strings.TrimPrefix(rel, "./")
	if rel == "" || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".git" {
			return true
		}
	}

	base := path.Base(rel)
	if !isDir && (strings.HasSuffix(base, "~") || base == vimWriteProbe) {
		return true
	}
	if f == nil {
		return false
	}
	for _, g := range f.patterns {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}
