// Package cpu binds pool workers to operating-system threads.
package cpu

import "runtime"

// NumCPU returns the number of logical CPUs available to the process.
func NumCPU() int {
	return runtime.NumCPU()
}

// BindWorker locks the calling goroutine to its own OS thread so that a
// blocking closure occupies a dedicated thread rather than a scheduler P's
// shared one. When pin is true the thread is additionally restricted to
// one core, picked round-robin from workerID.
//
// On error the goroutine has already been unlocked. Otherwise the returned
// release func must be called (usually deferred) when the worker exits.
func BindWorker(workerID int, pin bool) (release func(), err error) {
	runtime.LockOSThread()

	if pin {
		if err := pinCurrent(workerID); err != nil {
			runtime.UnlockOSThread()
			return nil, err
		}
	}

	return runtime.UnlockOSThread, nil
}

// pinCurrent is swapped out by tests to simulate a refused pinning.
var pinCurrent = pin

func coreFor(workerID int) int {
	n := runtime.NumCPU()
	core := workerID % n
	if core < 0 {
		core += n
	}
	return core
}
