// Command counter is a reloadable unit used by the plugin loading tests.
package main

import (
	"reflect"

	"github.com/Iron-Ham/hotswap/internal/library/testdata/counter/state"
	"github.com/Iron-Ham/hotswap/pkg/hot"
)

type unit struct{}

var HotInit = hot.Init(func() *state.Counter { return &state.Counter{} })

var HotMain = hot.Main(func(c *state.Counter, cancel <-chan struct{}) *state.Counter {
	for !hot.Ended(cancel) {
	}
	c.Mains++
	c.Units = append(c.Units, reflect.TypeOf(unit{}).PkgPath())
	return c
})

var HotPostMain = hot.PostMain(func(c *state.Counter) *state.Counter {
	c.Posts++
	return c
})

var HotDrop = hot.Drop(func(c *state.Counter) { c.Dropped = true })

func main() {}
