package team

import (
	"fmt"

	"github.com/dash-project/dartrt/core/group"
	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/core/segment"
	"github.com/dash-project/dartrt/transport"
)

// MaxDepth and MaxFanout bound the team tree (spec section 3: "Maximum
// depth and fan-out are fixed at build time").
const (
	MaxDepth  = 32
	MaxFanout = 256
)

// Registry is one process's view of the team tree: the set of teams
// this process knows about, rooted at the universal team created at
// Init. Every public method assumes the caller is driving a collective
// call consistently with every other member (spec section 5); nothing
// here communicates on its own beyond the transport.Driver.Split calls
// a Create issues.
type Registry struct {
	self   gptr.GlobalUnit
	driver transport.Driver

	teams      map[ID]*Team
	nextTeamID int32
}

// NewRegistry creates the universal team (id 0) containing every unit
// the driver's world communicator knows about, and returns a Registry
// rooted there (spec section 4.9, init).
func NewRegistry(self gptr.GlobalUnit, d transport.Driver, universe []gptr.GlobalUnit) *Registry {
	r := &Registry{self: self, driver: d, teams: make(map[ID]*Team), nextTeamID: 1}
	g := group.FromUnits(universe)
	me, _ := g.LocalOf(self)
	root := &Team{
		ID:    Universe,
		Level: 0,
		Comm:  d.World(),
		Size:  g.Size(),
		Me:    gptr.TeamUnit(me),
		Group: g,
		Segs:  segment.NewRegistry(g.Size()),
	}
	r.teams[Universe] = root
	return r
}

// Root returns the universal team.
func (r *Registry) Root() *Team { return r.teams[Universe] }

// Lookup returns the locally known team for id, if any.
func (r *Registry) Lookup(id ID) (*Team, bool) {
	t, ok := r.teams[id]
	return t, ok
}

// Create forms a child team of parent from group g, collective over
// parent (spec section 3, section 4.4). Every member of parent must
// call Create with an equal g, in the same relative order as every
// other member, for the returned team ids and team-unit numbering to
// agree process-to-process — the same requirement spec.md places on
// any collective call.
func (r *Registry) Create(parent *Team, g *group.Group) (*Team, error) {
	if parent == nil || !parent.IsMember() {
		return nil, fmt.Errorf("team: create must be called by a member of parent")
	}
	if parent.Level+1 >= MaxDepth {
		return nil, fmt.Errorf("team: max team depth %d exceeded", MaxDepth)
	}
	if len(parent.Children) >= MaxFanout {
		return nil, fmt.Errorf("team: max fan-out %d exceeded", MaxFanout)
	}

	worldRanks := make([]int, 0, g.Size())
	for _, u := range g.Units() {
		worldRanks = append(worldRanks, int(u))
	}
	comm, err := r.driver.Split(parent.Comm, worldRanks)
	if err != nil {
		return nil, fmt.Errorf("team: split failed: %w", err)
	}

	// The smallest-unused-slot counter is what makes the child id
	// deterministic across every member without any extra
	// communication: all members observe the same sequence of Create
	// calls against the same parent (spec section 4.4).
	slot := parent.allocChildID()
	id := ID(r.nextTeamID)
	r.nextTeamID++

	child := &Team{
		ID:        id,
		Parent:    parent.ID,
		HasParent: true,
		Level:     parent.Level + 1,
		Comm:      comm,
		Group:     g,
		Size:      g.Size(),
		Me:        gptr.NotAMember,
	}
	if me, ok := g.LocalOf(r.self); ok {
		child.Me = gptr.TeamUnit(me)
		child.Segs = segment.NewRegistry(g.Size())
	}

	for int32(len(parent.Children)) <= slot {
		parent.Children = append(parent.Children, -1)
	}
	parent.Children[slot] = id
	r.teams[id] = child
	if !child.IsMember() {
		return nil, nil // null team: the call still completed collectively
	}
	return child, nil
}

// liveChildren counts the non-freed slots in a Children slice. Slots
// are overwritten with -1 in place when a child is destroyed, never
// removed, so len(children) alone can't tell a team with live children
// apart from one whose children have all already been destroyed.
func liveChildren(children []ID) int {
	n := 0
	for _, c := range children {
		if c >= 0 {
			n++
		}
	}
	return n
}

// Destroy tears down t, collective over t's members; fails if t still
// has live children (spec section 3: "Destruction is collective over
// the team's members and must precede parent destruction").
func (r *Registry) Destroy(t *Team) error {
	if t == nil {
		return nil // destroying a null team handle is a no-op
	}
	if live := liveChildren(t.Children); live > 0 {
		return fmt.Errorf("team: cannot destroy team %d with %d live children", t.ID, live)
	}
	if t.HasParent {
		if parent, ok := r.teams[t.Parent]; ok {
			for i, c := range parent.Children {
				if c == t.ID {
					parent.Children[i] = -1
					parent.freeChildIDs = append(parent.freeChildIDs, int32(i))
					break
				}
			}
		}
	}
	delete(r.teams, t.ID)
	return nil
}

// Parent returns t's parent team, or (nil, false) if t is the universe.
func (r *Registry) Parent(t *Team) (*Team, bool) {
	if !t.HasParent {
		return nil, false
	}
	p, ok := r.teams[t.Parent]
	return p, ok
}

// Depth returns t's level in the tree (0 for the universal team).
func (r *Registry) Depth(t *Team) int { return t.Level }

// ChildAt returns t's i-th live child, in ascending slot order (freed
// slots are skipped).
func (r *Registry) ChildAt(t *Team, i int) (*Team, bool) {
	seen := 0
	for _, c := range t.Children {
		if c < 0 {
			continue
		}
		if seen == i {
			ch, ok := r.teams[c]
			return ch, ok
		}
		seen++
	}
	return nil, false
}

// SharedMemPeers returns the team-unit positions of members that share
// this process's memory (SPEC_FULL.md supplement, grounded on
// dart_locality.c's shared-memory domain grouping). In this repo's
// single-process shmem backend every member of every team shares
// memory with every other, so every member is returned. The RMA
// engine's fast path does not call this; it uses each segment's Peers
// table.
func SharedMemPeers(t *Team) []gptr.TeamUnit {
	out := make([]gptr.TeamUnit, t.Size)
	for i := range out {
		out[i] = gptr.TeamUnit(i)
	}
	return out
}

// Locality returns the opaque domain descriptor for a team-unit (SPEC_FULL
// supplement). It consults no domain tree: every unit gets a fixed
// placeholder (tag "unit<tu>", host "localhost", one core, NUMA id 0).
func Locality(t *Team, tu gptr.TeamUnit) Domain {
	return Domain{Tag: fmt.Sprintf("unit%d", tu), Host: "localhost", NumCores: 1, NumaID: 0}
}
