//go:build linux

package task

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/dash-project/dartrt/cmn/nlog"
)

// bindWorker pins the calling goroutine's OS thread to CPU id%NumCPU
// (spec section 4.8's BIND_THREADS/BIND_THREADS_VERBOSE), the worker's
// one-time setup before it starts pulling ready tasks. sched_setaffinity
// only affects the calling thread, so the goroutine must stay locked to
// it for the pin to mean anything.
func bindWorker(id int, verbose bool) {
	n := runtime.NumCPU()
	if n == 0 {
		return
	}
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(id % n)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		if verbose {
			nlog.Warnln("task: bind_threads: sched_setaffinity:", err)
		}
		return
	}
	if verbose {
		nlog.Infof("task: worker %d bound to cpu %d", id, id%n)
	}
}
