// Package stack implements the lock-free intrusive LIFO freelist of spec
// section 4.1: elements embed a Node, the head is a (ABA-counter, node
// pointer) pair updated with a double-width compare-and-swap, and a
// successful push or pop always bumps the counter so a popped node can
// never be mistaken for one still on the stack by a concurrent CAS.
//
// Go has no portable double-width CAS over an arbitrary pointer width,
// so the head is packed into a single uint64 (32-bit counter, 32-bit
// dense index into a caller-owned arena) and updated with
// sync/atomic.CompareAndSwapUint64 on a single word — the same
// fallback spec section 4.1 describes for targets lacking a native
// double-width atomic, except the "mutex" in that fallback is replaced
// here by packing the index to fit one machine word, which keeps the
// structure lock-free rather than merely correct.
package stack

import (
	"sync/atomic"

	"github.com/dash-project/dartrt/cmn/debug"
)

// Node is embedded by any element that wants to live on a Stack. index
// is the element's slot in the owning Arena; next is the index of the
// element below it on the stack, or nilIndex.
type Node struct {
	next uint32
}

const nilIndex = ^uint32(0)

// Arena is the caller-owned backing store a Stack indexes into. Callers
// implement it over their own slice of elements (task structs, RMA
// handles, segment descriptors, ...) so the stack itself never
// allocates.
type Arena interface {
	// NodeAt returns a pointer to the Node embedded in the element at
	// index i.
	NodeAt(i uint32) *Node
}

// Stack is a lock-free LIFO over indices into an Arena. The zero value,
// combined with a non-nil Arena, is an empty stack.
type Stack struct {
	head  uint64 // high 32 bits: ABA counter, low 32 bits: index or nilIndex
	arena Arena
}

func New(a Arena) *Stack {
	s := &Stack{arena: a}
	s.head = pack(0, nilIndex)
	return s
}

func pack(aba uint32, idx uint32) uint64 {
	return uint64(aba)<<32 | uint64(idx)
}

func unpack(h uint64) (aba uint32, idx uint32) {
	return uint32(h >> 32), uint32(h)
}

// Push makes the element at index i the new top of the stack.
func (s *Stack) Push(i uint32) {
	debug.Assert(i != nilIndex, "stack: cannot push the nil index")
	n := s.arena.NodeAt(i)
	for {
		old := atomic.LoadUint64(&s.head)
		aba, top := unpack(old)
		atomic.StoreUint32(&n.next, top)
		newHead := pack(aba+1, i)
		if atomic.CompareAndSwapUint64(&s.head, old, newHead) {
			return
		}
	}
}

// Pop removes and returns the top element's index, or (nilIndex, false)
// if the stack is empty.
func (s *Stack) Pop() (uint32, bool) {
	for {
		old := atomic.LoadUint64(&s.head)
		aba, top := unpack(old)
		if top == nilIndex {
			return nilIndex, false
		}
		n := s.arena.NodeAt(top)
		next := atomic.LoadUint32(&n.next)
		newHead := pack(aba+1, next)
		if atomic.CompareAndSwapUint64(&s.head, old, newHead) {
			return top, true
		}
	}
}

// Empty reports whether the stack currently has no elements. Racy by
// construction against concurrent Push/Pop; intended for diagnostics
// and the finalize drain loop, not for synchronization.
func (s *Stack) Empty() bool {
	_, top := unpack(atomic.LoadUint64(&s.head))
	return top == nilIndex
}

// Drain pops every element and calls fn on each index, in LIFO order.
// Used by finalize (spec section 4.1 "Finalize pops until empty").
func (s *Stack) Drain(fn func(i uint32)) {
	for {
		i, ok := s.Pop()
		if !ok {
			return
		}
		fn(i)
	}
}

// NodeAt returns n unchanged; it takes no index and does not look up an
// arena element. Arena implementations return &elems[i].node directly
// and do not call it.
func NodeAt(n *Node) *Node { return n }
