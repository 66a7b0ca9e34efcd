// Package errors provides centralized error definitions and error handling utilities
// for hotswap. It defines domain-specific errors, the fatal/transient taxonomy used by
// the reload engine, error constructors with context wrapping, and classification
// helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - LibraryError: loading, resolving or closing a reloadable unit generation
//   - BuildError: the external build command failed or could not start
//   - WatchError: the change detector could not read the watched tree
//   - InvariantError: the engine broke one of its own ownership rules
//
// # Kinds
//
// Every domain error carries a [Kind]:
//   - KindConfiguration: the setup is structurally wrong (missing symbol, unreadable
//     root, initial library does not load). Fatal, aborts startup.
//   - KindTransient: a single attempt failed (build failed, file vanished mid-poll).
//     Logged, the loop continues with the previous generation.
//   - KindInvariant: a bug in the engine itself (double take of the state).
//     Fatal.
//
// # Usage
//
//	err := errors.NewLibraryError("required symbol missing", errors.ErrSymbolNotFound).
//		WithSymbol("HotMain").
//		WithGeneration(3)
//
//	if errors.IsFatal(err) {
//		return err
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Kind classifies an error by how the engine reacts to it.
type Kind int

const (
	// KindTransient errors are recovered locally; the loop continues.
	KindTransient Kind = iota
	// KindConfiguration errors abort startup or the running session.
	KindConfiguration
	// KindInvariant errors indicate a bug in the engine and are fatal.
	KindInvariant
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConfiguration:
		return "configuration"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Library-related sentinel errors
var (
	// ErrSymbolNotFound indicates that an exported entry point is missing.
	ErrSymbolNotFound = New("symbol not found")
	// ErrSymbolSignature indicates that an entry point has an unexpected type.
	ErrSymbolSignature = New("symbol has unexpected signature")
	// ErrLibraryLoad indicates that a generation could not be opened.
	ErrLibraryLoad = New("library failed to load")
	// ErrLibraryCopy indicates that the artifact could not be copied to its generation path.
	ErrLibraryCopy = New("library copy failed")
	// ErrGenerationClosed indicates use of a generation after it was closed.
	ErrGenerationClosed = New("generation already closed")
)

// Build-related sentinel errors
var (
	// ErrBuildFailed indicates that the build command exited unsuccessfully.
	ErrBuildFailed = New("build failed")
	// ErrBuildStart indicates that the build command could not be started.
	ErrBuildStart = New("build command could not start")
	// ErrInitialBuild indicates that the very first build failed.
	ErrInitialBuild = New("initial build failed")
)

// Watch-related sentinel errors
var (
	// ErrRootUnreadable indicates that the watched root cannot be read.
	ErrRootUnreadable = New("watch root unreadable")
)

// State and lifecycle sentinel errors
var (
	// ErrStateCheckedOut indicates a take while the state is already checked out.
	ErrStateCheckedOut = New("state already checked out")
	// ErrStateAlreadyHeld indicates a put without a preceding take.
	ErrStateAlreadyHeld = New("state already held")
	// ErrWorkerPanicked indicates that user code panicked while holding the state.
	ErrWorkerPanicked = New("worker panicked")
	// ErrNotRegistered indicates unregistering a handler that was never registered.
	ErrNotRegistered = New("handler not registered")
	// ErrAlreadyRegistered indicates registering a handler twice.
	ErrAlreadyRegistered = New("handler already registered")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// HotswapError is the base interface for all hotswap errors.
type HotswapError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Kind returns how the engine reacts to this error.
	Kind() Kind

	// Severity returns the severity level of this error.
	Severity() Severity
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	kind     Kind
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Kind returns the error kind.
func (e *baseError) Kind() Kind {
	return e.kind
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// format renders "<prefix> [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// LibraryError represents errors related to loading and calling a generation.
//
// Example:
//
//	err := errors.NewLibraryError("required symbol missing", errors.ErrSymbolNotFound).
//		WithSymbol("HotInit")
//	fmt.Println(err) // "library error [symbol=HotInit]: required symbol missing: symbol not found"
type LibraryError struct {
	baseError
	Generation    uint64
	HasGeneration bool
	Path          string
	Symbol        string
}

// NewLibraryError creates a new LibraryError. Library errors default to
// configuration errors; loading a later generation downgrades them with WithKind.
func NewLibraryError(message string, cause error) *LibraryError {
	return &LibraryError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			kind:     KindConfiguration,
			severity: SeverityCritical,
		},
	}
}

// WithGeneration adds the generation id to the error context.
func (e *LibraryError) WithGeneration(id uint64) *LibraryError {
	e.Generation = id
	e.HasGeneration = true
	return e
}

// WithPath adds the backing file path to the error context.
func (e *LibraryError) WithPath(path string) *LibraryError {
	e.Path = path
	return e
}

// WithSymbol adds the symbol name to the error context.
func (e *LibraryError) WithSymbol(symbol string) *LibraryError {
	e.Symbol = symbol
	return e
}

// WithKind overrides the error kind.
func (e *LibraryError) WithKind(k Kind) *LibraryError {
	e.kind = k
	if k == KindTransient {
		e.severity = SeverityError
	}
	return e
}

// Error returns the formatted error message.
func (e *LibraryError) Error() string {
	var parts []string
	if e.HasGeneration {
		parts = append(parts, fmt.Sprintf("generation=%d", e.Generation))
	}
	if e.Symbol != "" {
		parts = append(parts, fmt.Sprintf("symbol=%s", e.Symbol))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("library error", parts)
}

// BuildError represents a failed invocation of the external build command.
type BuildError struct {
	baseError
	Generation uint64
	Command    string
	ExitCode   int
}

// NewBuildError creates a new BuildError. Build failures are transient: the
// previous generation keeps running and the next change triggers a new attempt.
func NewBuildError(message string, cause error) *BuildError {
	return &BuildError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			kind:     KindTransient,
			severity: SeverityWarning,
		},
		ExitCode: -1,
	}
}

// WithGeneration adds the generation the build was producing.
func (e *BuildError) WithGeneration(id uint64) *BuildError {
	e.Generation = id
	return e
}

// WithCommand adds the rendered command line.
func (e *BuildError) WithCommand(cmd string) *BuildError {
	e.Command = cmd
	return e
}

// WithExitCode adds the process exit code.
func (e *BuildError) WithExitCode(code int) *BuildError {
	e.ExitCode = code
	return e
}

// WithKind overrides the error kind.
func (e *BuildError) WithKind(k Kind) *BuildError {
	e.kind = k
	if k != KindTransient {
		e.severity = SeverityCritical
	}
	return e
}

// Error returns the formatted error message.
func (e *BuildError) Error() string {
	parts := []string{fmt.Sprintf("generation=%d", e.Generation)}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("cmd=%q", e.Command))
	}
	return e.format("build error", parts)
}

// WatchError represents a failure to read the watched tree.
type WatchError struct {
	baseError
	Path string
}

// NewWatchError creates a new WatchError. Watch errors are transient unless
// raised while constructing the detector.
func NewWatchError(message string, cause error) *WatchError {
	return &WatchError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			kind:     KindTransient,
			severity: SeverityWarning,
		},
	}
}

// WithPath adds the path that failed.
func (e *WatchError) WithPath(path string) *WatchError {
	e.Path = path
	return e
}

// WithKind overrides the error kind.
func (e *WatchError) WithKind(k Kind) *WatchError {
	e.kind = k
	if k != KindTransient {
		e.severity = SeverityCritical
	}
	return e
}

// Error returns the formatted error message.
func (e *WatchError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("watch error", parts)
}

// InvariantError represents a violated ownership or lifecycle rule inside the
// engine. It is always fatal.
type InvariantError struct {
	baseError
	Component string
}

// NewInvariantError creates a new InvariantError.
func NewInvariantError(message string, cause error) *InvariantError {
	return &InvariantError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			kind:     KindInvariant,
			severity: SeverityCritical,
		},
	}
}

// WithComponent names the component whose invariant broke.
func (e *InvariantError) WithComponent(name string) *InvariantError {
	e.Component = name
	return e
}

// Error returns the formatted error message.
func (e *InvariantError) Error() string {
	var parts []string
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("component=%s", e.Component))
	}
	return e.format("invariant violated", parts)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// KindOf returns the kind of err. Errors that do not implement HotswapError are
// treated as transient so unknown failures never silently kill the session.
func KindOf(err error) Kind {
	var hsErr HotswapError
	if As(err, &hsErr) {
		return hsErr.Kind()
	}
	return KindTransient
}

// IsFatal returns true for configuration and invariant errors.
//
// Example:
//
//	if err := ctrl.Run(ctx); errors.IsFatal(err) {
//	    os.Exit(1)
//	}
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	return k == KindConfiguration || k == KindInvariant
}

// IsTransient returns true for errors the engine recovers from locally.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindTransient
}

// IsInvariant returns true if err reports a bug in the engine.
func IsInvariant(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindInvariant
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement HotswapError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var hsErr HotswapError
	if As(err, &hsErr) {
		return hsErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike a bare fmt.Errorf call site, this returns nil for a nil error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
