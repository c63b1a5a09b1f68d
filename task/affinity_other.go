//go:build !linux

package task

import "github.com/dash-project/dartrt/cmn/nlog"

// bindWorker is a no-op off Linux: sched_setaffinity has no portable
// equivalent, so BIND_THREADS is honored only on the platform the spec's
// original implementation targets.
func bindWorker(id int, verbose bool) {
	if verbose {
		nlog.Warnln("task: bind_threads requested but not supported on this platform")
	}
}
