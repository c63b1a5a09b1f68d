// Package shmem implements transport.Driver entirely within one
// process's address space: every simulated unit is a logical rank
// sharing the same Go heap, modeled on the original DART shared-memory
// backend (dart-impl/shmem/src/dart_malloc.c, shmem_p2p_sysv.c) which
// maps one SysV segment per window visible to every rank on the same
// node. Because there is truly one address space, every Put/Get here
// completes both locally and remotely before returning — this driver
// is the concrete backend behind the RMA engine's shared-memory fast
// path (spec section 4.5) and the reference implementation used by this
// repo's tests, in place of a real MPI/GASPI build.
package shmem

import (
	"fmt"
	"sync"

	"github.com/dash-project/dartrt/cmn/debug"
	"github.com/dash-project/dartrt/transport"
)

type window struct {
	mu      sync.Mutex
	regions [][]byte // regions[rank] is that rank's registered buffer
	disp    []int64

	amMu  sync.Mutex
	amBuf [][]amMsg // amBuf[rank] is rank's inbound circular buffer
	amCap int
}

type amMsg struct {
	fnID    uint32
	payload []byte
}

// sharedState is everything multiple ranks must observe consistently;
// it is held by pointer so that NewSharedWorld's per-rank Driver values
// all serialize through the same mutex instead of each copying their
// own (copying a live sync.Mutex would desynchronize the very state it
// guards).
type sharedState struct {
	mu      sync.Mutex
	nextWin transport.WinHandle
	windows map[transport.WinHandle]*window

	nextComm transport.CommHandle
	comms    map[transport.CommHandle][]int // members, by world rank

	// tagWindow lets every member of comm agree on which shared window
	// object a given logical window (identified by tag) resolves to,
	// independent of the order or interleaving in which each rank
	// happens to call RegisterWindow (see windowFor).
	tagWindow map[windowTag]transport.WinHandle

	collMu     sync.Mutex
	collRounds map[transport.CommHandle]*collRound
}

// windowTag identifies one logical window within a communicator.
// Callers that need their RegisterWindow calls to converge on the same
// window across ranks (every collective segment allocation, and the
// AMQ) pass a tag stable across every member — rma.alloc.go uses the
// segment id, which every member computes identically (spec section
// 4.4's deterministic id-counter requirement); amq uses a fixed
// reserved tag since a team has exactly one AMQ window.
type windowTag struct {
	comm transport.CommHandle
	tag  int64
}

// Driver is an in-process transport.Driver simulating `size` ranks.
type Driver struct {
	rank int
	size int
	*sharedState
}

// NewWorld creates a driver for the calling rank within a `size`-unit
// world. All ranks in one test/process should instead be built with
// NewSharedWorld so Put/Get/collectives can actually move bytes
// between distinct rank views; NewWorld is for single-rank unit tests.
func NewWorld(rank, size int) *Driver {
	return NewSharedWorld(size)[rank]
}

// NewSharedWorld returns `size` *Driver values that share the same
// window/comm tables, modeling one process's view per rank the way a
// SysV-shmem backend's multiple attaching processes would.
func NewSharedWorld(size int) []*Driver {
	st := &sharedState{
		windows:    make(map[transport.WinHandle]*window),
		comms:      make(map[transport.CommHandle][]int),
		tagWindow:  make(map[windowTag]transport.WinHandle),
		collRounds: make(map[transport.CommHandle]*collRound),
		nextWin:    1,
		nextComm:   2,
	}
	world := make([]int, size)
	for i := range world {
		world[i] = i
	}
	st.comms[transport.CommHandle(1)] = world

	out := make([]*Driver, size)
	for r := 0; r < size; r++ {
		out[r] = &Driver{rank: r, size: size, sharedState: st}
	}
	return out
}

func (d *Driver) Rank() int                   { return d.rank }
func (d *Driver) Size() int                   { return d.size }
func (d *Driver) World() transport.CommHandle { return transport.CommHandle(1) }

func (d *Driver) Split(parent transport.CommHandle, members []int) (transport.CommHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.comms[parent]; !ok {
		return 0, fmt.Errorf("shmem: unknown parent communicator")
	}
	if len(members) == 0 {
		return 0, nil // null team/communicator
	}
	isMember := false
	for _, m := range members {
		if m == d.rank {
			isMember = true
			break
		}
	}
	if !isMember {
		return 0, nil
	}
	h := d.nextComm
	d.nextComm++
	cp := append([]int{}, members...)
	d.comms[h] = cp
	return h, nil
}

// Barrier, Bcast, Gather, Scatter, Allgather, Reduce and Allreduce are
// implemented in collective.go: every rank's call rendezvouses on a
// shared per-communicator round so the last arriver can move bytes
// directly between the other goroutines' buffers, the way dart_barrier
// et al. ultimately call down into MPI's collectives in the original
// MPI backend (dart-impl/mpi/src/dart_communication.c).

func (d *Driver) RegisterWindow(comm transport.CommHandle, tag int64, localBuf []byte) (transport.WinHandle, []int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.comms[comm]
	if !ok {
		return 0, nil, fmt.Errorf("shmem: unknown communicator")
	}
	w, handle := d.windowFor(comm, tag, members)
	w.mu.Lock()
	w.regions[d.rankIndex(members)] = localBuf
	w.mu.Unlock()
	disp := make([]int64, len(members))
	for i := range disp {
		disp[i] = 0
	}
	return handle, disp, nil
}

// windowFor mints a fresh window the first time any member of comm
// registers against a given tag, and hands every other member the same
// window object thereafter — agreement depends only on every rank
// using the same tag for "the same" logical window (see windowTag),
// not on any particular call order or interleaving across ranks.
func (d *Driver) windowFor(comm transport.CommHandle, tag int64, members []int) (*window, transport.WinHandle) {
	key := windowTag{comm: comm, tag: tag}
	if h, ok := d.tagWindow[key]; ok {
		return d.windows[h], h
	}
	h := d.nextWin
	d.nextWin++
	w := &window{
		regions: make([][]byte, len(members)),
		amBuf:   make([][]amMsg, len(members)),
		amCap:   64,
	}
	d.windows[h] = w
	d.tagWindow[key] = h
	return w, h
}

func (d *Driver) rankIndex(members []int) int {
	for i, m := range members {
		if m == d.rank {
			return i
		}
	}
	return -1
}

func (d *Driver) DeregisterWindow(w transport.WinHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.windows, w)
	return nil
}

func (d *Driver) win(h transport.WinHandle) (*window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[h]
	if !ok {
		return nil, fmt.Errorf("shmem: unknown window %d", h)
	}
	return w, nil
}

func (d *Driver) Put(h transport.WinHandle, destUnit int, destOff int64, src []byte) (transport.OpID, error) {
	w, err := d.win(h)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if destUnit < 0 || destUnit >= len(w.regions) || w.regions[destUnit] == nil {
		return 0, fmt.Errorf("shmem: put to unregistered rank %d", destUnit)
	}
	dst := w.regions[destUnit]
	debug.Assertf(destOff >= 0 && int(destOff)+len(src) <= len(dst), "shmem: put out of bounds dest=%d off=%d len=%d cap=%d", destUnit, destOff, len(src), len(dst))
	copy(dst[destOff:], src)
	return transport.OpID(1), nil
}

func (d *Driver) Get(h transport.WinHandle, srcUnit int, srcOff int64, dst []byte) (transport.OpID, error) {
	w, err := d.win(h)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if srcUnit < 0 || srcUnit >= len(w.regions) || w.regions[srcUnit] == nil {
		return 0, fmt.Errorf("shmem: get from unregistered rank %d", srcUnit)
	}
	src := w.regions[srcUnit]
	debug.Assertf(srcOff >= 0 && int(srcOff)+len(dst) <= len(src), "shmem: get out of bounds src=%d off=%d len=%d cap=%d", srcUnit, srcOff, len(dst), len(src))
	copy(dst, src[srcOff:int(srcOff)+len(dst)])
	return transport.OpID(1), nil
}

func (d *Driver) Test(transport.OpID) (bool, error) { return true, nil }
func (d *Driver) Wait(transport.OpID) error         { return nil }
func (d *Driver) Flush(transport.WinHandle, int) error { return nil }
func (d *Driver) FlushAll(transport.WinHandle) error   { return nil }

func (d *Driver) CompareAndSwap(h transport.WinHandle, unit int, off int64, old, new uint64) (uint64, error) {
	w, err := d.win(h)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if unit < 0 || unit >= len(w.regions) || w.regions[unit] == nil {
		return 0, fmt.Errorf("shmem: cas on unregistered rank %d", unit)
	}
	buf := w.regions[unit]
	if int(off)+8 > len(buf) {
		return 0, fmt.Errorf("shmem: cas out of bounds")
	}
	cur := le64(buf[off:])
	if cur == old {
		putLe64(buf[off:], new)
	}
	return cur, nil
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLe64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

func (d *Driver) AMSend(h transport.WinHandle, target int, fnID uint32, payload []byte) (bool, error) {
	w, err := d.win(h)
	if err != nil {
		return false, err
	}
	w.amMu.Lock()
	defer w.amMu.Unlock()
	if target < 0 || target >= len(w.amBuf) {
		return false, fmt.Errorf("shmem: am to out-of-range rank %d", target)
	}
	if len(w.amBuf[target]) >= w.amCap {
		return false, nil // ERR_AGAIN: remote buffer full
	}
	cp := append([]byte{}, payload...)
	w.amBuf[target] = append(w.amBuf[target], amMsg{fnID: fnID, payload: cp})
	return true, nil
}

func (d *Driver) AMPoll(h transport.WinHandle, deliver func(fnID uint32, payload []byte)) int {
	w, err := d.win(h)
	if err != nil {
		return 0
	}
	w.amMu.Lock()
	members := len(w.amBuf)
	var mine int
	if members > 0 {
		mine = d.rank
	}
	pending := w.amBuf[mine]
	w.amBuf[mine] = nil
	w.amMu.Unlock()

	for _, m := range pending {
		deliver(m.fnID, m.payload)
	}
	return len(pending)
}

func (d *Driver) Close() error { return nil }
