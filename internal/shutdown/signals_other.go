//go:build !unix

package shutdown

import "os"

func interruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
