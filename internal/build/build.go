// Package build runs the external command that compiles the reloadable unit.
package build

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/logging"
)

// Request describes one build.
type Request struct {
	// Generation is the ID the produced artifact will be loaded as.
	Generation uint64
	// Artifact is the path the build must write.
	Artifact string
	// Dir is the working directory of the build.
	Dir string
	// Package is the package to build, relative to Dir. The builder fills it
	// in: "." without staging, the generation's staged copy with it.
	Package string
}

// Builder produces the artifact for a request. Only success or failure
// matters; output goes wherever the implementation sends it.
type Builder interface {
	Build(ctx context.Context, req Request) error
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, req Request) error

// Build implements Builder.
func (f BuilderFunc) Build(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// CommandBuilder runs a templated argv as a subprocess.
type CommandBuilder struct {
	argv   []*template.Template
	stdout io.Writer
	stderr io.Writer
	logger *logging.Logger
	fs     afero.Fs
	staged bool
}

// Option configures a CommandBuilder.
type Option func(*CommandBuilder)

// WithOutput redirects the build's stdout and stderr. The default is the
// host process's own streams.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *CommandBuilder) {
		b.stdout = stdout
		b.stderr = stderr
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *CommandBuilder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithStaging builds every generation from its own copy of the package, see
// StagePackage. Commands refer to the copy as {{.Package}}.
func WithStaging() Option {
	return func(b *CommandBuilder) {
		b.staged = true
	}
}

// NewCommandBuilder parses every argv element as a text/template over Request.
func NewCommandBuilder(argv []string, opts ...Option) (*CommandBuilder, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.NewBuildError("empty build command", errors.ErrInvalidInput).
			WithKind(errors.KindConfiguration)
	}

	b := &CommandBuilder{
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: logging.NopLogger(),
		fs:     afero.NewOsFs(),
	}
	for i, arg := range argv {
		tmpl, err := template.New("arg").Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, errors.NewBuildError("parse build command", errors.Wrapf(err, "argument %d", i)).
				WithKind(errors.KindConfiguration)
		}
		b.argv = append(b.argv, tmpl)
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("build")
	return b, nil
}

// Render expands the argv for req.
func (b *CommandBuilder) Render(req Request) ([]string, error) {
	out := make([]string, 0, len(b.argv))
	var buf bytes.Buffer
	for _, tmpl := range b.argv {
		buf.Reset()
		if err := tmpl.Execute(&buf, req); err != nil {
			return nil, err
		}
		out = append(out, buf.String())
	}
	return out, nil
}

// Build runs the command and waits for it. A non-zero exit or a failure to
// start is a transient BuildError.
func (b *CommandBuilder) Build(ctx context.Context, req Request) error {
	req.Package = "."
	if b.staged {
		pkg, cleanup, err := b.stage(req)
		if err != nil {
			return errors.NewBuildError("stage package", errors.Join(errors.ErrBuildStart, err)).
				WithGeneration(req.Generation)
		}
		defer cleanup()
		req.Package = pkg
	}

	argv, err := b.Render(req)
	if err != nil {
		return errors.NewBuildError("render build command", err).WithGeneration(req.Generation)
	}
	line := strings.Join(argv, " ")
	log := b.logger.WithGeneration(req.Generation)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Stdout = b.stdout
	cmd.Stderr = b.stderr
	cmd.Env = append(os.Environ(), "HOTSWAP_GENERATION="+strconv.FormatUint(req.Generation, 10))
	configureProcessGroup(cmd)

	start := time.Now()
	log.Debug("build started", "command", line, "dir", req.Dir)

	if err := cmd.Start(); err != nil {
		return errors.NewBuildError("start build", errors.Join(errors.ErrBuildStart, err)).
			WithGeneration(req.Generation).
			WithCommand(line)
	}
	if err := cmd.Wait(); err != nil {
		cause := errors.Join(errors.ErrBuildFailed, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause = errors.Join(errors.ErrCanceled, ctxErr)
		}
		buildErr := errors.NewBuildError("build command failed", cause).
			WithGeneration(req.Generation).
			WithCommand(line)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			buildErr.WithExitCode(exitErr.ExitCode())
		}
		log.Warn("build failed", "duration", time.Since(start).String(), "error", err.Error())
		return buildErr
	}

	log.Debug("build finished", "duration", time.Since(start).String())
	return nil
}
