package task

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/dash-project/dartrt/cmn/cos"
	"github.com/dash-project/dartrt/core/gptr"
)

// DepKind classifies one task dependency (spec.md:63's tuple
// "(global-pointer, kind, phase)"). DepDirect is the one kind with no
// global pointer at all — a plain task-to-task edge — and never
// touches Graph's segment table; see Dependency.Pred.
type DepKind int

const (
	DepIn DepKind = iota
	DepOut
	DepInOut
	DepDelayedIn
	DepCopyin
	DepDirect
)

// writeRecord is one OUT/INOUT registration, or one pending IN/COPYIN/
// DELAYED_IN reader, tagged with the phase it was created at.
type writeRecord struct {
	phase int
	task  *Task
}

type segSlot struct {
	// writes holds every OUT/INOUT seen so far, kept sorted ascending by
	// phase so a later query for "the latest write at or before phase p"
	// is correct even when two phases' Create calls race each other
	// through Resolve in the opposite order from their phase counter's
	// logical advance.
	writes  []writeRecord
	readers []writeRecord
}

// latestWriteAtOrBefore returns the highest-phase write with phase <=
// p — spec.md:63's "matches the latest OUT/INOUT in any phase ≤ p".
func (s *segSlot) latestWriteAtOrBefore(p int) (writeRecord, bool) {
	i := sort.Search(len(s.writes), func(i int) bool { return s.writes[i].phase > p })
	if i == 0 {
		return writeRecord{}, false
	}
	return s.writes[i-1], true
}

// insertWrite keeps s.writes sorted by phase on insert.
func (s *segSlot) insertWrite(w writeRecord) {
	i := sort.Search(len(s.writes), func(i int) bool { return s.writes[i].phase > w.phase })
	s.writes = append(s.writes, writeRecord{})
	copy(s.writes[i+1:], s.writes[i:])
	s.writes[i] = w
}

// Graph is the per-segment, offset-keyed dependency table spec section
// 4.8 step 2 describes: "local dependencies are inserted into a
// per-segment hash map keyed by offset." Keys are hashed with xxhash
// over (segment id, offset), matching SPEC_FULL.md's domain-stack
// wiring for that hash.
type Graph struct {
	mu    sync.Mutex
	table map[uint32]*segSlot
}

// NewGraph returns an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{table: make(map[uint32]*segSlot)}
}

func depKey(seg gptr.SegmentID, offset int64) uint32 {
	var b [12]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(seg))
	binary.LittleEndian.PutUint64(b[4:12], uint64(offset))
	return cos.XXHash32(b[:])
}

// Resolve registers t's dependency of kind, tagged at phase, on (seg,
// offset), wiring up whatever predecessor edges spec section 4.8 step
// 2 / spec.md:63 call for:
//   - IN/COPYIN/DELAYED_IN at phase p edges from the latest OUT/INOUT
//     at a phase <= p (no edge if none exists yet).
//   - OUT/INOUT at phase p edges from the latest OUT/INOUT at a phase
//     <= p, and from every reader registered at a phase <= p since
//     (the WAR hazard); those readers are then cleared, since this
//     write now dominates them. Readers from a later phase are left
//     untouched — they are outside this write's window and still need
//     their own matching write.
//
// It returns the number of edges added to t's pending count (the
// caller adds the same count to t.depCount before t can become ready,
// since Resolve may be called once per dependency while the task is
// still being built). DepDirect is never passed here — see
// Scheduler.Create, which wires it directly against Dependency.Pred.
func (g *Graph) Resolve(t *Task, kind DepKind, seg gptr.SegmentID, offset int64, phase int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := depKey(seg, offset)
	slot, ok := g.table[key]
	if !ok {
		slot = &segSlot{}
		g.table[key] = slot
	}

	added := 0
	switch kind {
	case DepIn, DepCopyin, DepDelayedIn:
		if w, ok := slot.latestWriteAtOrBefore(phase); ok && g.waitOn(t, w.task) {
			added++
		}
		slot.readers = append(slot.readers, writeRecord{phase: phase, task: t})
	case DepOut, DepInOut:
		if w, ok := slot.latestWriteAtOrBefore(phase); ok && g.waitOn(t, w.task) {
			added++
		}
		stillPending := slot.readers[:0:0]
		for _, r := range slot.readers {
			if r.phase <= phase {
				if g.waitOn(t, r.task) {
					added++
				}
			} else {
				stillPending = append(stillPending, r)
			}
		}
		slot.readers = stillPending
		slot.insertWrite(writeRecord{phase: phase, task: t})
	}
	return added
}

// waitOn registers t as a dependent of pred, returning false if pred
// has already completed (no edge needed).
func (g *Graph) waitOn(t *Task, pred *Task) bool {
	pred.mu.Lock()
	defer pred.mu.Unlock()
	if pred.State() == StateDone || pred.State() == StateCancelled {
		return false
	}
	pred.dependents = append(pred.dependents, t)
	return true
}
