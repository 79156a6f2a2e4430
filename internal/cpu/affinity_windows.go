//go:build windows

package cpu

import (
	"fmt"
	"syscall"
)

var (
	kernel32              = syscall.NewLazyDLL("kernel32.dll")
	setThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
	getCurrentThread      = kernel32.NewProc("GetCurrentThread")
)

// pin restricts the calling OS thread to a single core chosen from workerID.
// Bit N of the affinity mask selects CPU N.
func pin(workerID int) error {
	core := coreFor(workerID)
	if core >= 64 {
		core %= 64
	}

	handle, _, _ := getCurrentThread.Call()
	prev, _, err := setThreadAffinityMask.Call(handle, uintptr(1)<<uint(core))
	if prev == 0 {
		return fmt.Errorf("SetThreadAffinityMask core %d: %w", core, err)
	}
	return nil
}
