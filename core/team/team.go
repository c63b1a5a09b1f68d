// Package team implements the team tree and group-of-units value type
// of spec sections 3 and 4.4. A Team is created collectively over its
// parent: every caller in the parent passes the same Group, members of
// that group get back a live child Team, everyone else gets the null
// team (spec invariant: a team whose member set is empty from the
// caller's view still completes collectively).
package team

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dash-project/dartrt/core/group"
	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/core/segment"
	"github.com/dash-project/dartrt/transport"
)

// ID names a team; the universal team created at init is fixed to 0
// (spec section 3).
type ID int32

const Universe ID = 0

// Domain is the opaque locality descriptor a team exposes per unit
// (supplemented per SPEC_FULL.md from dart_domain_locality_t in
// original_source/dart-impl/base); Locality fills it with placeholder
// values.
type Domain struct {
	Tag      string
	Host     string
	NumCores int
	NumaID   int
}

// Team is the live, in-process representation of one node in the team
// tree (spec section 3). Cyclic parent/child/sibling links are dense
// IDs into Registry's arena, not pointers (spec section 9, "cyclic
// structures -> arena + index").
type Team struct {
	ID       ID
	Parent   ID
	HasParent bool
	Level    int
	Children []ID

	Comm transport.CommHandle
	Size int
	Me   gptr.TeamUnit // NotAMember if the caller is not in this team

	Group *group.Group // members, by global unit id, in team-unit order
	Segs  *segment.Registry

	mu           sync.Mutex // guards Segs for callers that take it via Lock/Unlock (spec section 5); segment.Registry does not take it
	nextChild    int32
	freeChildIDs []int32
}

// Lock acquires the team-wide mutex guarding the segment registry and
// buddy pools within it (spec section 5).
func (t *Team) Lock() { t.mu.Lock() }

// Unlock releases the team-wide mutex.
func (t *Team) Unlock() { t.mu.Unlock() }

// IsNull reports whether t is the null team a non-member receives from
// Create.
func (t *Team) IsNull() bool { return t == nil }

// IsMember reports whether the calling process has a live position in
// this team.
func (t *Team) IsMember() bool { return t != nil && t.Me.IsMember() }

// GlobalUnitOf translates a team-local unit to its global unit id.
func (t *Team) GlobalUnitOf(tu gptr.TeamUnit) (gptr.GlobalUnit, bool) {
	return t.Group.GlobalAt(int(tu))
}

// TeamUnitOf translates a global unit id to its position in this team.
func (t *Team) TeamUnitOf(gu gptr.GlobalUnit) (gptr.TeamUnit, bool) {
	i, ok := t.Group.LocalOf(gu)
	if !ok {
		return gptr.NotAMember, false
	}
	return gptr.TeamUnit(i), true
}

func (t *Team) String() string {
	return fmt.Sprintf("team(%d, level=%d, size=%d, me=%d)", t.ID, t.Level, t.Size, t.Me)
}

// allocChildID returns the smallest unused child-slot id, reusing a
// freed one if available, so every member of the parent computes the
// same id for the same Create call without communicating it (spec
// section 4.4).
func (t *Team) allocChildID() int32 {
	if n := len(t.freeChildIDs); n > 0 {
		sort.Slice(t.freeChildIDs, func(i, j int) bool { return t.freeChildIDs[i] < t.freeChildIDs[j] })
		id := t.freeChildIDs[0]
		t.freeChildIDs = t.freeChildIDs[1:]
		return id
	}
	id := t.nextChild
	t.nextChild++
	return id
}
