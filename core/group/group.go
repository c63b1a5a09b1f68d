// Package group implements the Group value type of spec sections 3 and
// 4.4: an unordered set of global unit ids, capped at MaxSize members,
// stored as two parallel arrays (global->local, local->global) with
// sentinel -1 for absent entries. Groups are pure value objects; every
// set operation rebuilds the dual arrays from scratch rather than
// mutating in place, matching the spec's description of group_union
// etc. "rebuilding the dual arrays by scanning g2l."
package group

import (
	"sort"

	"github.com/dash-project/dartrt/core/gptr"
)

// MaxSize is the group size cap (spec section 3 names 256 as the
// example cap).
const MaxSize = 256

const absent int32 = -1

// Group is an unordered set of global unit ids.
type Group struct {
	g2l  [MaxSize]int32 // global unit id -> local index, or absent
	l2g  []gptr.GlobalUnit
	size int
}

// New returns an empty group.
func New() *Group {
	g := &Group{}
	for i := range g.g2l {
		g.g2l[i] = absent
	}
	return g
}

// FromUnits returns a group containing exactly the given units
// (duplicates collapsed).
func FromUnits(units []gptr.GlobalUnit) *Group {
	g := New()
	for _, u := range units {
		g = g.Add(u)
	}
	return g
}

// Size returns the cached member count.
func (g *Group) Size() int { return g.size }

// Contains reports whether u is a member.
func (g *Group) Contains(u gptr.GlobalUnit) bool {
	if u < 0 || int(u) >= MaxSize {
		return false
	}
	return g.g2l[u] != absent
}

// LocalOf returns u's local index within the group, or (-1, false).
func (g *Group) LocalOf(u gptr.GlobalUnit) (int, bool) {
	if !g.Contains(u) {
		return -1, false
	}
	return int(g.g2l[u]), true
}

// GlobalAt returns the global unit id at local index i.
func (g *Group) GlobalAt(i int) (gptr.GlobalUnit, bool) {
	if i < 0 || i >= len(g.l2g) {
		return 0, false
	}
	return g.l2g[i], true
}

// Units returns the members in ascending local-index order (the order
// they were added/rebuilt in).
func (g *Group) Units() []gptr.GlobalUnit {
	out := make([]gptr.GlobalUnit, len(g.l2g))
	copy(out, g.l2g)
	return out
}

// Add returns a new group with u added (a no-op copy if u is already a
// member or the cap would be exceeded).
func (g *Group) Add(u gptr.GlobalUnit) *Group {
	if g.Contains(u) || u < 0 || int(u) >= MaxSize {
		return g.clone()
	}
	if g.size >= MaxSize {
		return g.clone()
	}
	units := append(append([]gptr.GlobalUnit{}, g.l2g...), u)
	return rebuild(units)
}

// Remove returns a new group with u removed.
func (g *Group) Remove(u gptr.GlobalUnit) *Group {
	if !g.Contains(u) {
		return g.clone()
	}
	units := make([]gptr.GlobalUnit, 0, len(g.l2g))
	for _, v := range g.l2g {
		if v != u {
			units = append(units, v)
		}
	}
	return rebuild(units)
}

func (g *Group) clone() *Group { return rebuild(g.l2g) }

func rebuild(units []gptr.GlobalUnit) *Group {
	g := New()
	seen := make(map[gptr.GlobalUnit]bool, len(units))
	for _, u := range units {
		if seen[u] || u < 0 || int(u) >= MaxSize {
			continue
		}
		seen[u] = true
		g.g2l[u] = int32(len(g.l2g))
		g.l2g = append(g.l2g, u)
	}
	g.size = len(g.l2g)
	return g
}

// Union returns a new group containing every member of a or b.
func Union(a, b *Group) *Group {
	units := append(append([]gptr.GlobalUnit{}, a.l2g...), b.l2g...)
	return rebuild(units)
}

// Intersect returns a new group containing members of both a and b.
func Intersect(a, b *Group) *Group {
	var units []gptr.GlobalUnit
	for _, u := range a.l2g {
		if b.Contains(u) {
			units = append(units, u)
		}
	}
	return rebuild(units)
}

// Difference returns a new group with a's members minus b's members.
func Difference(a, b *Group) *Group {
	var units []gptr.GlobalUnit
	for _, u := range a.l2g {
		if !b.Contains(u) {
			units = append(units, u)
		}
	}
	return rebuild(units)
}

// Equal reports whether a and b contain exactly the same members.
func Equal(a, b *Group) bool {
	if a.Size() != b.Size() {
		return false
	}
	for _, u := range a.l2g {
		if !b.Contains(u) {
			return false
		}
	}
	return true
}

// Split partitions g into n contiguous chunks whose sizes differ by at
// most one, remainder distributed to the low-index parts (spec section
// 4.4). Members are ordered ascending by global unit id before
// splitting so the partition is deterministic across callers.
func Split(g *Group, n int) []*Group {
	if n <= 0 {
		return nil
	}
	units := append([]gptr.GlobalUnit{}, g.l2g...)
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })

	out := make([]*Group, n)
	base := len(units) / n
	rem := len(units) % n
	pos := 0
	for i := 0; i < n; i++ {
		chunk := base
		if i < rem {
			chunk++
		}
		out[i] = rebuild(units[pos : pos+chunk])
		pos += chunk
	}
	return out
}
