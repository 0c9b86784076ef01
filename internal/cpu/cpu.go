// Package cpu pins pool workers to cores so CPU-bound transforms do not
// migrate between cores mid-frame.
package cpu

import "runtime"

// PinWorker locks the calling goroutine to its OS thread and, where the
// platform allows it, binds that thread to core workerID. The returned
// release function must be deferred by the worker; it restores the thread's
// previous affinity before handing the thread back to the scheduler. The
// second result is the core actually used, or -1 when only the thread lock
// was applied.
func PinWorker(workerID int) (release func(), core int) {
	runtime.LockOSThread()

	core, restore, err := pin(workerID)
	if err != nil {
		return runtime.UnlockOSThread, -1
	}

	return func() {
		restore()
		runtime.UnlockOSThread()
	}, core
}
