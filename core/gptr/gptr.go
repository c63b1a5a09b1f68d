// Package gptr implements the 128-bit global pointer of spec section 3:
// a (unit, segment, flags, offset) tuple that addresses any byte in the
// distributed address space. The bit layout is fixed ABI (spec section
// 6) so GlobalPtr is a plain, comparable struct with explicit field
// widths rather than a packed 128-bit integer — arithmetic and
// predicates operate on the typed fields directly, and ToWire/FromWire
// produce the exact on-wire 128-bit layout for transport extensions
// that need it.
package gptr

import "encoding/binary"

// Flag is a bitmask over the 16-bit flags field.
type Flag uint16

const (
	// FlagLocalAddr marks offset as a process-local virtual address
	// rather than a segment-relative byte offset.
	FlagLocalAddr Flag = 1 << iota
	// FlagGlobal marks UnitID as a global-unit id rather than a
	// team-scoped one.
	FlagGlobal
)

// SegmentID is a team-local, 16-bit signed segment identifier. Segment
// 0 is reserved for a team's shared window; negative ids designate the
// process-local pool (spec section 3).
type SegmentID int16

const (
	// SegShared is every team's reserved symmetric-window segment.
	SegShared SegmentID = 0
	// SegLocal is the process-local pool's segment id.
	SegLocal SegmentID = -1
)

// GlobalPtr is the 128-bit global pointer.
//
//	bits 0..31   Unit    (team-scoped unless FlagGlobal is set)
//	bits 32..47  Segment
//	bits 48..63  Flags
//	bits 64..127 Offset  (byte offset within segment, or virtual address)
type GlobalPtr struct {
	Unit    int32
	Segment SegmentID
	Flags   Flag
	Offset  uint64
}

// Null is the (-1, 0, 0, 0) null global pointer (spec section 3).
var Null = GlobalPtr{Unit: -1}

// IsNull reports whether g equals the null global pointer.
func (g GlobalPtr) IsNull() bool { return g == Null }

// Add returns g with its offset advanced by n bytes. Unit and Segment
// are unchanged; crossing a segment boundary is undefined behavior the
// caller must avoid (spec section 3).
func (g GlobalPtr) Add(n int64) GlobalPtr {
	g.Offset = uint64(int64(g.Offset) + n)
	return g
}

// AddStride is Add generalized to a strided walk of count elements of
// elemSize bytes each, as used by collective/task-dependency code that
// indexes into a segment by element rather than by byte.
func (g GlobalPtr) AddStride(count int64, elemSize int64) GlobalPtr {
	return g.Add(count * elemSize)
}

// HasLocalAddr reports whether Offset should be interpreted as a
// process-local virtual address rather than a segment-relative offset.
func (g GlobalPtr) HasLocalAddr() bool { return g.Flags&FlagLocalAddr != 0 }

// IsGlobalUnit reports whether Unit is a global-unit id (as opposed to
// team-scoped).
func (g GlobalPtr) IsGlobalUnit() bool { return g.Flags&FlagGlobal != 0 }

// SetAddr returns g with Offset replaced by addr and FlagLocalAddr set,
// satisfying the round-trip property of spec section 8:
// gptr_setaddr(p, gptr_getaddr(p)) == p whenever p is already local.
func (g GlobalPtr) SetAddr(addr uint64) GlobalPtr {
	g.Offset = addr
	g.Flags |= FlagLocalAddr
	return g
}

// GetAddr returns Offset, valid only when HasLocalAddr is true.
func (g GlobalPtr) GetAddr() uint64 { return g.Offset }

// ToWire encodes g into the fixed 128-bit (16-byte) wire layout.
func (g GlobalPtr) ToWire() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(g.Unit))
	binary.LittleEndian.PutUint16(b[4:6], uint16(g.Segment))
	binary.LittleEndian.PutUint16(b[6:8], uint16(g.Flags))
	binary.LittleEndian.PutUint64(b[8:16], g.Offset)
	return b
}

// FromWire decodes the fixed 128-bit wire layout produced by ToWire.
func FromWire(b [16]byte) GlobalPtr {
	return GlobalPtr{
		Unit:    int32(binary.LittleEndian.Uint32(b[0:4])),
		Segment: SegmentID(binary.LittleEndian.Uint16(b[4:6])),
		Flags:   Flag(binary.LittleEndian.Uint16(b[6:8])),
		Offset:  binary.LittleEndian.Uint64(b[8:16]),
	}
}

// SameLocation reports whether a and b name the same (unit, segment,
// offset), independent of flags — the equality used by dependency
// matching (spec section 3, "Task dependency").
func SameLocation(a, b GlobalPtr) bool {
	return a.Unit == b.Unit && a.Segment == b.Segment && a.Offset == b.Offset
}
