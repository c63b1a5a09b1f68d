// Package buddy implements the power-of-two buddy allocator of spec
// section 4.2: a contiguous 2^L-byte region with a 2*2^L-1 node tree
// stored as a flat byte array, each node in {free, used, split, full}.
// The allocator is not thread-safe on its own (spec: "callers must
// serialize, typically via a team-wide mutex") — Pool exposes no
// internal locking, matching core/segment's registry which guards it
// with the team-wide mutex described in spec section 5.
package buddy

import (
	"fmt"

	"github.com/dash-project/dartrt/cmn/cos"
	"github.com/dash-project/dartrt/cmn/debug"
)

type state byte

const (
	free state = iota
	used
	split
	full
)

// Pool is a buddy-managed region of 2^levels bytes.
type Pool struct {
	levels int // L: pool size is 1<<levels bytes
	nodes  []state
	// minBlock is the smallest block size in bytes; requests round up
	// to max(minBlock, next_pow2(size)).
	minBlock int
}

// NewPool creates a buddy pool spanning poolSize bytes (rounded up to a
// power of two) with a minimum block size of minBlock bytes (also
// rounded up to a power of two, and at least 1).
func NewPool(poolSize int, minBlock int) *Pool {
	if minBlock < 1 {
		minBlock = 1
	}
	minBlock = int(cos.NextPow2(uint64(minBlock)))
	rounded := int(cos.NextPow2(uint64(poolSize)))
	if rounded < minBlock {
		rounded = minBlock
	}
	levels := int(cos.Log2(uint64(rounded / minBlock)))
	n := 1<<(levels+1) - 1
	return &Pool{levels: levels, nodes: make([]state, n), minBlock: minBlock}
}

// Size returns the total pool size in bytes.
func (p *Pool) Size() int { return p.minBlock << p.levels }

// BytesUsed returns the number of bytes currently allocated (the sum
// of every used leaf's block size), for the stats package's gauge.
func (p *Pool) BytesUsed() int { return p.bytesInState(0, used) }

// BytesFree returns the complement of BytesUsed within Size.
func (p *Pool) BytesFree() int { return p.Size() - p.BytesUsed() }

func (p *Pool) bytesInState(idx int, want state) int {
	switch p.nodes[idx] {
	case want:
		return p.blockSize(idx)
	case split, full:
		// full's children are always themselves used or full
		// (propagateUp's invariant), so both states need to recurse to
		// find every used leaf underneath.
		left, right := children(idx)
		return p.bytesInState(left, want) + p.bytesInState(right, want)
	default:
		return 0
	}
}

func levelOf(nodeLevels, idx int) int {
	// index 0 is the root (size = pool); each level down halves size.
	lvl := 0
	i := idx + 1
	for i > 1 {
		i >>= 1
		lvl++
	}
	return lvl
}

func (p *Pool) blockSize(idx int) int {
	lvl := levelOf(p.levels, idx)
	return p.minBlock << (p.levels - lvl)
}

// offsetOf returns the byte offset of the block at idx within the pool.
func (p *Pool) offsetOf(idx int) int {
	lvl := levelOf(p.levels, idx)
	firstAtLevel := 1<<lvl - 1
	posInLevel := idx - firstAtLevel
	return posInLevel * p.blockSize(idx)
}

// Alloc rounds size up to a power of two (spec: zero returns one unit,
// the "open question" resolved in spec.md section 9) and returns the
// byte offset of a free block of at least that size, or (-1, false) if
// the pool has no block large enough.
func (p *Pool) Alloc(size int) (int, bool) {
	want := int(cos.NextPow2(uint64(cos.Max(size, 1))))
	if want < p.minBlock {
		want = p.minBlock
	}
	if want > p.Size() {
		return -1, false
	}
	idx, ok := p.allocAt(0, want)
	if !ok {
		return -1, false
	}
	return p.offsetOf(idx), true
}

// allocAt descends from node idx looking for a free block of exactly
// `want` bytes, splitting larger free nodes as it goes.
func (p *Pool) allocAt(idx int, want int) (int, bool) {
	sz := p.blockSize(idx)
	if sz < want {
		return -1, false
	}
	switch p.nodes[idx] {
	case used, full:
		return -1, false
	case free:
		if sz == want {
			p.nodes[idx] = used
			p.propagateUp(idx)
			return idx, true
		}
		// split and descend into left child.
		p.nodes[idx] = split
		left, right := children(idx)
		p.nodes[left] = free
		p.nodes[right] = free
		got, ok := p.allocAt(left, want)
		if ok {
			p.propagateUp(idx)
		}
		return got, ok
	case split:
		left, right := children(idx)
		if got, ok := p.allocAt(left, want); ok {
			p.propagateUp(idx)
			return got, true
		}
		if got, ok := p.allocAt(right, want); ok {
			p.propagateUp(idx)
			return got, true
		}
		return -1, false
	}
	return -1, false
}

func children(idx int) (left, right int) {
	return 2*idx + 1, 2*idx + 2
}

func parentOf(idx int) (int, bool) {
	if idx == 0 {
		return 0, false
	}
	return (idx - 1) / 2, true
}

// propagateUp recomputes idx's own ancestors' state bottom-up: a node
// is full iff both children are used/full, free iff both children are
// free, and split otherwise.
func (p *Pool) propagateUp(idx int) {
	for {
		parent, ok := parentOf(idx)
		if !ok {
			return
		}
		left, right := children(parent)
		ls, rs := p.nodes[left], p.nodes[right]
		switch {
		case ls == full && rs == full, (ls == full || ls == used) && (rs == full || rs == used):
			p.nodes[parent] = full
		case ls == free && rs == free:
			p.nodes[parent] = free
		default:
			p.nodes[parent] = split
		}
		idx = parent
	}
}

// Free returns the block at byte offset off to the pool, merging free
// sibling pairs bottom-up (spec section 4.2).
func (p *Pool) Free(off int) error {
	idx, ok := p.findByOffset(0, off)
	if !ok {
		return fmt.Errorf("buddy: no allocated block at offset %d", off)
	}
	debug.Assert(p.nodes[idx] == used, "buddy: freeing a non-used block")
	p.nodes[idx] = free
	p.mergeUp(idx)
	return nil
}

func (p *Pool) findByOffset(idx int, off int) (int, bool) {
	lo := p.offsetOf(idx)
	hi := lo + p.blockSize(idx)
	if off < lo || off >= hi {
		return -1, false
	}
	switch p.nodes[idx] {
	case used:
		if lo == off {
			return idx, true
		}
		return -1, false
	case split, full:
		// a full node's children are always themselves used or full
		// (propagateUp's invariant), so the target block can still be
		// underneath it; only a leaf actually marked free is dead weight.
		left, right := children(idx)
		if got, ok := p.findByOffset(left, off); ok {
			return got, true
		}
		return p.findByOffset(right, off)
	default:
		return -1, false
	}
}

func (p *Pool) mergeUp(idx int) {
	for {
		parent, ok := parentOf(idx)
		if !ok {
			return
		}
		old := p.nodes[parent]
		left, right := children(parent)
		ls, rs := p.nodes[left], p.nodes[right]
		switch {
		case ls == free && rs == free:
			p.nodes[parent] = free
		case (ls == full || ls == used) && (rs == full || rs == used):
			p.nodes[parent] = full
		default:
			p.nodes[parent] = split
		}
		if p.nodes[parent] == old {
			return
		}
		idx = parent
	}
}
