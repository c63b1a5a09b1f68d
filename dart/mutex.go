package dart

import (
	"fmt"
	"runtime"

	"github.com/dash-project/dartrt/core/segment"
	"github.com/dash-project/dartrt/transport"
)

// TeamMutex is the team-wide mutex of spec section 4.9, "built from a
// shared atomic word plus the RMA compare-and-swap primitive": the
// lock word lives at offset 0 of the team's reserved shared segment,
// and Lock/Unlock drive it purely through transport.Driver's
// CompareAndSwap, with no local fast path — correct across every unit
// contending for it, not just goroutines within this process.
type TeamMutex struct {
	driver transport.Driver
	win    transport.WinHandle
	unit   int // the shared segment's home unit (the lock word's location)
}

const (
	lockOffset  = 0
	lockFree    = 0
	lockHeld    = 1
)

// newTeamMutex binds a TeamMutex to seg, which must already carry a
// registered transport window (rma.AllocSharedWindow).
func newTeamMutex(seg *segment.Segment, d transport.Driver) (*TeamMutex, error) {
	win, ok := seg.TWin.(transport.WinHandle)
	if !ok {
		return nil, fmt.Errorf("dart: shared segment has no transport window")
	}
	return &TeamMutex{driver: d, win: win, unit: 0}, nil
}

// Lock spins a compare-and-swap against the lock word until it
// observes the word was free, yielding the goroutine between attempts
// so other local workers (and the OS scheduler) get a turn — the
// closest idiomatic-Go match for the spinlock spec section 4.9
// describes, since there is no blocking wait primitive over a remote
// atomic word.
func (m *TeamMutex) Lock() {
	for {
		prev, err := m.driver.CompareAndSwap(m.win, m.unit, lockOffset, lockFree, lockHeld)
		if err == nil && prev == lockFree {
			return
		}
		runtime.Gosched()
	}
}

// TryLock attempts the swap once and reports whether it succeeded.
func (m *TeamMutex) TryLock() (bool, error) {
	prev, err := m.driver.CompareAndSwap(m.win, m.unit, lockOffset, lockFree, lockHeld)
	if err != nil {
		return false, err
	}
	return prev == lockFree, nil
}

// Unlock releases the lock. Calling Unlock without holding the lock is
// a caller bug, as with sync.Mutex.
func (m *TeamMutex) Unlock() {
	if _, err := m.driver.CompareAndSwap(m.win, m.unit, lockOffset, lockHeld, lockFree); err != nil {
		panic(fmt.Sprintf("dart: team mutex unlock: %v", err))
	}
}
