//go:build unix

package shutdown

import (
	"os"

	"golang.org/x/sys/unix"
)

// interruptSignals lists the signals treated as a shutdown request. Only the
// interactive interrupt is intercepted; SIGTERM keeps its default behavior.
func interruptSignals() []os.Signal {
	return []os.Signal{unix.SIGINT}
}
