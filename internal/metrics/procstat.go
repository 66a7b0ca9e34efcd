package metrics

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// residentBytes reports the resident set size of the current process.
func residentBytes() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return mem.RSS, nil
}
