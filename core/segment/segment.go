// Package segment implements the per-team segment registry of spec
// section 4.3: a closed-addressing table keyed by segment id, two
// monotonic id counters (collective, registered) with matching
// freelists, and the shared-memory-peer fast-path lookup the RMA
// engine's dispatch depends on.
//
// The registry is not internally synchronized (spec section 4.3: "The
// allocator is not thread-safe on its own"); every exported method here
// assumes the caller holds the owning team's registry mutex (spec
// section 5), acquired before the call and released before any
// transport call the result of the call leads to.
package segment

import (
	"fmt"

	"github.com/dash-project/dartrt/core/gptr"
)

// Kind distinguishes how a segment's memory was obtained.
type Kind int

const (
	KindCollectiveAllocated Kind = iota
	KindCollectiveRegistered
	KindProcessLocal
)

// Flags is a bitmask of per-segment state flags (spec section 3).
type Flags uint32

const (
	FlagLocalAddrValid Flags = 1 << iota
	FlagNeedsSync
)

// PeerBases models the tagged variant of design note (spec section 9,
// "Shared-memory fast path"): a segment either has no shared-memory
// peer base pointers at all (WindowOnly) or a full per-peer table
// (WindowPlusPeers). RMA dispatch matches on this variant instead of
// null-checking a slice. Within one process's address space a "base
// pointer" is simply the peer's backing byte slice; a multi-node
// backend would instead store a raw uintptr into an mmap'd region and
// the RMA engine would need unsafe.Pointer arithmetic to dereference
// it, which this single-process reference backend has no need for.
type PeerBases struct {
	peers [][]byte // nil => WindowOnly
}

// WindowOnly reports the segment has no shared-memory fast path.
func (p PeerBases) WindowOnly() bool { return p.peers == nil }

// BaseFor returns teamUnit's backing buffer within the shared-memory
// window, if this segment has one.
func (p PeerBases) BaseFor(teamUnit int) ([]byte, bool) {
	if p.peers == nil || teamUnit < 0 || teamUnit >= len(p.peers) {
		return nil, false
	}
	return p.peers[teamUnit], true
}

// NewPeerBases builds a WindowPlusPeers variant from one backing buffer
// per team member (index by team-unit).
func NewPeerBases(bases [][]byte) PeerBases {
	cp := append([][]byte{}, bases...)
	return PeerBases{peers: cp}
}

// Segment is a registered, team-wide addressable memory region.
type Segment struct {
	ID     gptr.SegmentID
	Size   int64
	Kind   Kind
	Flags  Flags
	Disp   []int64 // per-team-member displacement; len == team.size, or nil
	Peers  PeerBases
	Base   []byte // caller's own backing buffer
	TWin   any    // transport window handle (opaque to this package)
	ShmWin any     // shared-memory window handle, if any
}

// Registry is the per-team segment table plus its two id counters and
// freelists.
type Registry struct {
	teamSize int
	table    map[gptr.SegmentID]*Segment

	nextCollective  int16 // starts at 1 (0 is SegShared)
	nextRegistered  int16 // starts at -2 (-1 is SegLocal)
	freeCollective  []gptr.SegmentID
	freeRegistered  []gptr.SegmentID
}

// NewRegistry creates an empty registry for a team of teamSize members,
// pre-seeding segment 0 as the team's reserved shared window.
func NewRegistry(teamSize int) *Registry {
	r := &Registry{
		teamSize:       teamSize,
		table:          make(map[gptr.SegmentID]*Segment),
		nextCollective: 1,
		nextRegistered: -2,
	}
	r.table[gptr.SegShared] = &Segment{ID: gptr.SegShared, Kind: KindCollectiveAllocated}
	return r
}

// Alloc rents a segment descriptor of the given kind, assigns it the
// next id from the matching counter (reusing a freed id if one is
// available), inserts it into the table, and returns it.
func (r *Registry) Alloc(kind Kind, size int64) (*Segment, error) {
	var id gptr.SegmentID
	switch kind {
	case KindProcessLocal:
		id = gptr.SegLocal
		if _, exists := r.table[id]; exists {
			return nil, fmt.Errorf("segment: process-local segment already registered")
		}
	case KindCollectiveRegistered:
		if n := len(r.freeRegistered); n > 0 {
			id = r.freeRegistered[n-1]
			r.freeRegistered = r.freeRegistered[:n-1]
		} else {
			id = gptr.SegmentID(r.nextRegistered)
			r.nextRegistered--
		}
	default: // KindCollectiveAllocated
		if n := len(r.freeCollective); n > 0 {
			id = r.freeCollective[n-1]
			r.freeCollective = r.freeCollective[:n-1]
		} else {
			id = gptr.SegmentID(r.nextCollective)
			r.nextCollective++
		}
	}
	seg := &Segment{ID: id, Size: size, Kind: kind, Disp: make([]int64, r.teamSize)}
	r.table[id] = seg
	return seg, nil
}

// Lookup returns the segment descriptor for id, O(1).
func (r *Registry) Lookup(id gptr.SegmentID) (*Segment, bool) {
	s, ok := r.table[id]
	return s, ok
}

// Free removes id from the table and returns it to the matching
// freelist (process-local and the reserved shared segment are never
// freed).
func (r *Registry) Free(id gptr.SegmentID) error {
	seg, ok := r.table[id]
	if !ok {
		return fmt.Errorf("segment: no such segment %d", id)
	}
	if id == gptr.SegShared || seg.Kind == KindProcessLocal {
		return fmt.Errorf("segment: cannot free reserved segment %d", id)
	}
	delete(r.table, id)
	if seg.Kind == KindCollectiveRegistered {
		r.freeRegistered = append(r.freeRegistered, id)
	} else {
		r.freeCollective = append(r.freeCollective, id)
	}
	return nil
}

// Displacement returns seg.Disp[teamUnit] if present, else 0 (spec
// section 4.3).
func Displacement(seg *Segment, teamUnit int) int64 {
	if seg.Disp == nil || teamUnit < 0 || teamUnit >= len(seg.Disp) {
		return 0
	}
	return seg.Disp[teamUnit]
}

// BasePtrForShmPeer returns peer's backing buffer within a shared-memory
// window, when the segment has one (spec section 4.3, the RMA engine's
// load/store fast path).
func BasePtrForShmPeer(seg *Segment, peer int) ([]byte, bool) {
	return seg.Peers.BaseFor(peer)
}

// Ordered returns every live segment id in ascending order, the order
// spec section 4.3 requires for binary search over the table.
func (r *Registry) Ordered() []gptr.SegmentID {
	ids := make([]gptr.SegmentID, 0, len(r.table))
	for id := range r.table {
		ids = append(ids, id)
	}
	// insertion sort is fine: segment counts per team are small and
	// this runs only for diagnostics/binary-search rebuilds, never on
	// the RMA hot path (which uses Lookup's map directly).
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
