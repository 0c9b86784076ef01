//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pin binds the calling OS thread to core cpuID modulo the number of CPUs
// and returns a function restoring the previous mask. The caller must hold
// runtime.LockOSThread until it has called restore.
func pin(cpuID int) (core int, restore func(), err error) {
	cpuID %= runtime.NumCPU()
	if cpuID < 0 {
		cpuID += runtime.NumCPU()
	}

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil { // 0 = calling thread
		return -1, nil, err
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID)

	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return -1, nil, err
	}
	return cpuID, func() { _ = unix.SchedSetaffinity(0, &prev) }, nil
}
