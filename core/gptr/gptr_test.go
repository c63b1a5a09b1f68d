package gptr_test

import (
	"testing"

	"github.com/dash-project/dartrt/core/gptr"
)

func TestNullPointer(t *testing.T) {
	if !gptr.Null.IsNull() {
		t.Fatal("Null must report IsNull")
	}
	if gptr.Null.Unit != -1 || gptr.Null.Segment != 0 || gptr.Null.Offset != 0 {
		t.Fatalf("Null fields mismatch: %+v", gptr.Null)
	}
}

func TestArithmeticPreservesUnitAndSegment(t *testing.T) {
	g := gptr.GlobalPtr{Unit: 3, Segment: 7, Offset: 100}
	g2 := g.Add(42)
	if g2.Unit != g.Unit || g2.Segment != g.Segment {
		t.Fatalf("arithmetic must preserve unit/segment: %+v -> %+v", g, g2)
	}
	if g2.Offset != 142 {
		t.Fatalf("expected offset 142, got %d", g2.Offset)
	}
}

func TestSetAddrGetAddrRoundtrip(t *testing.T) {
	g := gptr.GlobalPtr{Unit: 1, Segment: -1}
	g = g.SetAddr(0xDEADBEEF)
	if !g.HasLocalAddr() {
		t.Fatal("expected local-addr flag set")
	}
	got := g.SetAddr(g.GetAddr())
	if got != g {
		t.Fatalf("setaddr(getaddr(p)) != p: %+v vs %+v", got, g)
	}
}

func TestWireRoundtrip(t *testing.T) {
	g := gptr.GlobalPtr{Unit: -5, Segment: 1234, Flags: gptr.FlagGlobal, Offset: 0x1122334455667788}
	got := gptr.FromWire(g.ToWire())
	if got != g {
		t.Fatalf("wire roundtrip mismatch: %+v vs %+v", got, g)
	}
}

func TestSameLocationIgnoresFlags(t *testing.T) {
	a := gptr.GlobalPtr{Unit: 2, Segment: 5, Offset: 10, Flags: gptr.FlagGlobal}
	b := gptr.GlobalPtr{Unit: 2, Segment: 5, Offset: 10}
	if !gptr.SameLocation(a, b) {
		t.Fatal("expected same location despite differing flags")
	}
}
