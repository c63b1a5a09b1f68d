package buddy_test

import (
	"math/rand"
	"testing"

	"github.com/dash-project/dartrt/core/buddy"
)

func TestAllocFreeRoundtrip(t *testing.T) {
	p := buddy.NewPool(1024, 8)
	off, ok := p.Alloc(100)
	if !ok {
		t.Fatal("alloc failed")
	}
	if err := p.Free(off); err != nil {
		t.Fatalf("free failed: %v", err)
	}
	// the whole pool must be available again.
	off2, ok := p.Alloc(p.Size())
	if !ok {
		t.Fatalf("full-pool alloc after single free/merge should succeed, offset=%d", off2)
	}
}

func TestZeroSizeAllocatesOneUnit(t *testing.T) {
	p := buddy.NewPool(1024, 8)
	off, ok := p.Alloc(0)
	if !ok {
		t.Fatal("zero-size alloc should succeed per spec open question")
	}
	if err := p.Free(off); err != nil {
		t.Fatalf("free failed: %v", err)
	}
}

func TestExhaustion(t *testing.T) {
	p := buddy.NewPool(128, 8)
	if _, ok := p.Alloc(256); ok {
		t.Fatal("alloc larger than pool must fail")
	}
}

func TestFreeThroughFullNode(t *testing.T) {
	// Two same-size allocations fill a 2-leaf pool, driving the root
	// straight from split to full without ever exhausting the whole
	// pool; Free must still be able to find and release either leaf.
	p := buddy.NewPool(2, 1)
	a, ok := p.Alloc(1)
	if !ok {
		t.Fatal("first alloc failed")
	}
	b, ok := p.Alloc(1)
	if !ok {
		t.Fatal("second alloc failed")
	}
	if err := p.Free(a); err != nil {
		t.Fatalf("free of a block under a full node failed: %v", err)
	}
	if err := p.Free(b); err != nil {
		t.Fatalf("free of the other block failed: %v", err)
	}
	if _, ok := p.Alloc(p.Size()); !ok {
		t.Fatal("pool should be fully merged back to one free block")
	}
}

func TestFreeOneSiblingReallowsAllocOfTheOther(t *testing.T) {
	// A parent that goes full must stop blocking allocation in its
	// still-allocated sibling's subtree once the other sibling frees:
	// mergeUp has to keep propagating past a node whose state actually
	// changed, not stop at the first parent it touches.
	p := buddy.NewPool(4, 1)
	a, ok := p.Alloc(1)
	if !ok {
		t.Fatal("alloc a failed")
	}
	b, ok := p.Alloc(1)
	if !ok {
		t.Fatal("alloc b failed")
	}
	c, ok := p.Alloc(2)
	if !ok {
		t.Fatal("alloc c failed")
	}
	if err := p.Free(a); err != nil {
		t.Fatalf("free a: %v", err)
	}
	if err := p.Free(b); err != nil {
		t.Fatalf("free b: %v", err)
	}
	// a and b's 2-leaf subtree is now fully free again; a fresh
	// size-2 allocation must be able to land there.
	d, ok := p.Alloc(2)
	if !ok {
		t.Fatal("alloc after freeing both siblings should succeed")
	}
	if err := p.Free(c); err != nil {
		t.Fatalf("free c: %v", err)
	}
	if err := p.Free(d); err != nil {
		t.Fatalf("free d: %v", err)
	}
	if _, ok := p.Alloc(p.Size()); !ok {
		t.Fatal("pool should be fully merged back to one free block")
	}
}

func TestRandomRoundtrip1024Blocks(t *testing.T) {
	const poolSize = 1 << 20
	p := buddy.NewPool(poolSize, 8)
	sizes := []int{8, 16, 32, 64}
	r := rand.New(rand.NewSource(1))
	offs := make([]int, 0, 1024)
	for i := 0; i < 1024; i++ {
		s := sizes[r.Intn(len(sizes))]
		off, ok := p.Alloc(s)
		if !ok {
			t.Fatalf("alloc %d failed at iteration %d", s, i)
		}
		offs = append(offs, off)
	}
	for i := len(offs) - 1; i >= 0; i-- {
		if err := p.Free(offs[i]); err != nil {
			t.Fatalf("free failed at %d: %v", i, err)
		}
	}
	if _, ok := p.Alloc(poolSize); !ok {
		t.Fatal("pool should be fully merged back to one free block")
	}
}
