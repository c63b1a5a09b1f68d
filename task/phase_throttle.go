package task

import "sync"

// phaseThrottle bounds how far ahead of the oldest still-active phase a
// new task's phase may be, implementing spec.md:130's MAX_ACTIVE_PHASES
// producer throttle: a unit that races far ahead of its slowest
// dependency producer would otherwise grow the dependency graph and the
// task pool without bound.
type phaseThrottle struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count map[int]int // phase -> number of tasks created at that phase not yet terminal
}

func newPhaseThrottle() *phaseThrottle {
	pt := &phaseThrottle{count: make(map[int]int)}
	pt.cond = sync.NewCond(&pt.mu)
	return pt
}

// oldestActiveLocked returns the lowest phase with at least one active
// task, or phase itself if none are active (nothing to wait behind).
func (pt *phaseThrottle) oldestActiveLocked(phase int) int {
	oldest := phase
	for p, n := range pt.count {
		if n > 0 && p < oldest {
			oldest = p
		}
	}
	return oldest
}

// enter blocks until phase is within maxActive of the oldest active
// phase, then records one active task at phase. maxActive <= 0 is
// treated as 1 (no lookahead).
func (pt *phaseThrottle) enter(phase, maxActive int) {
	if maxActive <= 0 {
		maxActive = 1
	}
	pt.mu.Lock()
	for phase-pt.oldestActiveLocked(phase) >= maxActive {
		pt.cond.Wait()
	}
	pt.count[phase]++
	pt.mu.Unlock()
}

// leave marks one task at phase as having reached a terminal state,
// waking any enter call that may now be within the window.
func (pt *phaseThrottle) leave(phase int) {
	pt.mu.Lock()
	pt.count[phase]--
	if pt.count[phase] <= 0 {
		delete(pt.count, phase)
	}
	pt.mu.Unlock()
	pt.cond.Broadcast()
}
