// Package mono provides monotonic-clock timestamps for interval
// measurements that must never be perturbed by wall-clock adjustment:
// the progress thread's poll interval, the idle-thread sleep policy, and
// phase/task timing diagnostics.
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since package initialization.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the elapsed duration since a NanoTime reading t0.
func Since(t0 int64) time.Duration { return time.Duration(NanoTime() - t0) }
