// Package watcher detects changes in a source tree by fingerprinting it.
//
// A fingerprint is one uint64 summarizing every eligible file under the root:
// files below a size threshold contribute a hash of their content, larger
// files contribute their size. Each contribution is divided by 100 and the
// contributions are summed with wrap-around, so the total does not depend on
// traversal or hashing order. The result is a lossy change signal, not a
// digest: a large file whose content changes without changing size goes
// unnoticed, and collisions are possible.
//
// Version-control internals (.git), editor backup files (name~) and the vim
// write probe (4913) never contribute; [Filter] adds user globs on top.
//
// In notify mode the [Detector] keeps an fsnotify watch on the tree and only
// walks it after an event, falling back to plain polling when the platform
// watcher cannot start.
package watcher
