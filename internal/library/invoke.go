package library

import (
	"fmt"
	"reflect"

	"github.com/Iron-Ham/hotswap/internal/custodian"
	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/logging"
)

// Exported entry points of a reloadable unit.
const (
	SymbolInit     = "HotInit"
	SymbolMain     = "HotMain"
	SymbolPostMain = "HotPostMain"
	SymbolDrop     = "HotDrop"
)

// Entry point signatures.
type (
	InitFunc     = func() any
	MainFunc     = func(state any, cancel <-chan struct{}) any
	PostMainFunc = func(state any) any
	DropFunc     = func(state any)
)

// Resolve looks up name in lib and asserts it to F. A symbol exported as a
// package-level variable holding a function is dereferenced.
func Resolve[F any](lib Library, name string) (F, error) {
	var zero F

	sym, err := lib.Lookup(name)
	if err != nil {
		return zero, errors.NewLibraryError("lookup", errors.Join(errors.ErrSymbolNotFound, err)).
			WithSymbol(name)
	}

	switch fn := sym.(type) {
	case F:
		if !isNilFunc(fn) {
			return fn, nil
		}
	case *F:
		if fn != nil && !isNilFunc(*fn) {
			return *fn, nil
		}
	}

	var want F
	return zero, errors.NewLibraryError(
		fmt.Sprintf("have %T, want %T", sym, want), errors.ErrSymbolSignature,
	).WithSymbol(name)
}

func isNilFunc(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Func && rv.IsNil()
}

// Invoker calls a generation's entry points, moving the carried state out of
// the custodian for the duration of each call and back afterwards.
type Invoker struct {
	custodian *custodian.Custodian
	logger    *logging.Logger
}

// NewInvoker creates an Invoker over c.
func NewInvoker(c *custodian.Custodian) *Invoker {
	return &Invoker{custodian: c, logger: logging.NopLogger()}
}

// WithLogger sets the logger used for optional-symbol diagnostics.
func (iv *Invoker) WithLogger(l *logging.Logger) *Invoker {
	if l != nil {
		iv.logger = l.WithComponent("invoker")
	}
	return iv
}

// Custodian returns the state holder the invoker moves values through.
func (iv *Invoker) Custodian() *custodian.Custodian {
	return iv.custodian
}

// Validate checks that g exports both required entry points with the right
// signatures. A failure is a configuration error.
func (iv *Invoker) Validate(g *Generation) error {
	lib, err := g.library()
	if err != nil {
		return err
	}
	if _, err := required[InitFunc](lib, g, SymbolInit); err != nil {
		return err
	}
	if _, err := required[MainFunc](lib, g, SymbolMain); err != nil {
		return err
	}
	return nil
}

// Init runs HotInit and hands its result to the custodian.
func (iv *Invoker) Init(g *Generation) error {
	lib, err := g.library()
	if err != nil {
		return err
	}
	fn, err := required[InitFunc](lib, g, SymbolInit)
	if err != nil {
		return err
	}
	return iv.custodian.Put(fn())
}

// Main runs HotMain with the carried state until it returns, then stores the
// state it hands back. It blocks for the lifetime of the worker.
func (iv *Invoker) Main(g *Generation, cancel <-chan struct{}) error {
	lib, err := g.library()
	if err != nil {
		return err
	}
	fn, err := required[MainFunc](lib, g, SymbolMain)
	if err != nil {
		return err
	}
	state, err := iv.custodian.Take()
	if err != nil {
		return err
	}
	return iv.custodian.Put(fn(state, cancel))
}

// PostMain runs HotPostMain if g exports it. Absence leaves the state untouched.
func (iv *Invoker) PostMain(g *Generation) error {
	lib, err := g.library()
	if err != nil {
		return err
	}
	fn, ok := optional[PostMainFunc](iv, lib, g, SymbolPostMain)
	if !ok {
		return nil
	}
	state, err := iv.custodian.Take()
	if err != nil {
		return err
	}
	return iv.custodian.Put(fn(state))
}

// Drop hands the final state to HotDrop if g exports it. The state is
// consumed; without the symbol it stays with the custodian.
func (iv *Invoker) Drop(g *Generation) error {
	lib, err := g.library()
	if err != nil {
		return err
	}
	fn, ok := optional[DropFunc](iv, lib, g, SymbolDrop)
	if !ok {
		return nil
	}
	state, err := iv.custodian.Take()
	if err != nil {
		return err
	}
	fn(state)
	return nil
}

func required[F any](lib Library, g *Generation, name string) (F, error) {
	fn, err := Resolve[F](lib, name)
	if err != nil {
		var libErr *errors.LibraryError
		if errors.As(err, &libErr) {
			libErr.WithGeneration(uint64(g.ID)).WithPath(g.Path)
		}
		return fn, err
	}
	return fn, nil
}

func optional[F any](iv *Invoker, lib Library, g *Generation, name string) (F, bool) {
	fn, err := Resolve[F](lib, name)
	if err == nil {
		return fn, true
	}
	if errors.Is(err, errors.ErrSymbolSignature) {
		iv.logger.WithGeneration(uint64(g.ID)).Warn("optional entry point ignored", "symbol", name, "error", err.Error())
	}
	return fn, false
}
