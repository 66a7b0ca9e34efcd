package hot

import (
	"fmt"
	"reflect"
	"strings"
)

// StateTypeError reports a carried state whose dynamic type is not the one a
// unit expects. Want and Got are qualified with the full package path, so two
// generations' copies of a type declared in package main are told apart.
type StateTypeError struct {
	Want string
	Got  string
}

func (e *StateTypeError) Error() string {
	msg := fmt.Sprintf("hot: state has type %s, unit expects %s", e.Got, e.Want)
	if baseName(e.Got) == baseName(e.Want) {
		msg += " (types declared in package main are new in every generation; " +
			"declare the state in a package the unit imports)"
	}
	return msg
}

// Cast asserts state to T.
func Cast[T any](state any) (T, error) {
	if v, ok := state.(T); ok {
		return v, nil
	}
	var zero T
	return zero, &StateTypeError{
		Want: typeName(reflect.TypeFor[T]()),
		Got:  typeName(reflect.TypeOf(state)),
	}
}

// MustCast asserts state to T and panics with a *StateTypeError otherwise.
func MustCast[T any](state any) T {
	v, err := Cast[T](state)
	if err != nil {
		panic(err)
	}
	return v
}

// typeName is like reflect.Type.String but with the full package path.
func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	var prefix string
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		prefix += "*"
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return prefix + t.String()
	}
	return prefix + t.PkgPath() + "." + t.Name()
}

// baseName strips the package path from a typeName result.
func baseName(name string) string {
	stars := len(name) - len(strings.TrimLeft(name, "*"))
	return name[:stars] + name[strings.LastIndex(name, ".")+1:]
}
