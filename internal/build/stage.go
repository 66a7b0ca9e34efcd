package build

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// StageDir is the directory, under the build directory, that holds the
// per-generation copies of the unit's package. The leading underscore keeps
// it out of ./... patterns.
const StageDir = "_hotswap"

// StagePackage returns the package path, relative to the build directory,
// that generation id is compiled from when staging is enabled.
func StagePackage(id uint64) string {
	return "./" + path.Join(StageDir, fmt.Sprintf("gen%d", id))
}

// stage copies the files of the package in req.Dir into its generation's
// staging directory and returns a func that removes the copy.
//
// The toolchain compiles a plugin's main package under its import path, and
// the runtime refuses to open a second plugin whose path is already loaded.
// Building every generation from its own directory gives each one a fresh
// import path. Subdirectories are separate packages and are not copied;
// neither are test files.
func (b *CommandBuilder) stage(req Request) (string, func(), error) {
	pkg := StagePackage(req.Generation)
	root := filepath.Join(req.Dir, StageDir)
	dst := filepath.Join(req.Dir, filepath.FromSlash(pkg))
	cleanup := func() {
		if err := b.fs.RemoveAll(dst); err != nil {
			b.logger.WithGeneration(req.Generation).Warn("failed to remove staged package", "dir", dst, "error", err.Error())
		}
		// Fails while other generations are staged, which is fine.
		_ = b.fs.Remove(root)
	}

	entries, err := afero.ReadDir(b.fs, req.Dir)
	if err != nil {
		return "", nil, err
	}
	if err := b.fs.RemoveAll(dst); err != nil {
		return "", nil, err
	}
	if err := b.fs.MkdirAll(dst, 0o755); err != nil {
		return "", nil, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, "_test.go") ||
			strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		if entry.Mode()&os.ModeSymlink != 0 {
			if info, err := b.fs.Stat(filepath.Join(req.Dir, name)); err != nil || info.IsDir() {
				continue
			}
		}
		if err := b.copyFile(filepath.Join(req.Dir, name), filepath.Join(dst, name)); err != nil {
			cleanup()
			return "", nil, err
		}
	}
	return pkg, cleanup, nil
}

func (b *CommandBuilder) copyFile(src, dst string) error {
	in, err := b.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := b.fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
