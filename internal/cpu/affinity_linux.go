//go:build linux

package cpu

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pin restricts the calling OS thread to a single core chosen from workerID.
// Must be called after runtime.LockOSThread().
func pin(workerID int) error {
	core := coreFor(workerID)

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(core)

	// 0 = calling thread
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return fmt.Errorf("sched_setaffinity core %d: %w", core, err)
	}
	return nil
}
