// Package rma implements the one-sided GET/PUT engine of spec section
// 4.5: non-blocking get/put with handles, wait/test, fence, and the
// local/remote completion distinctions the table in that section
// specifies. Handles are allocated from a lock-free freelist
// (core/stack, per spec section 4.1) so the hot dispatch path never
// allocates.
package rma

import (
	"fmt"

	"github.com/dash-project/dartrt/cmn"
	"github.com/dash-project/dartrt/cmn/atomic"
	"github.com/dash-project/dartrt/core/stack"
	"github.com/dash-project/dartrt/transport"
)

// Handle is an opaque identifier for one outstanding RMA operation
// (spec GLOSSARY). It is never constructed directly by callers; use
// Engine.Get/Put/GetHandle/PutHandle.
type Handle struct {
	node stack.Node

	inUse    atomic.Bool
	engine   *Engine
	index    uint32
	op       transport.OpID
	win      transport.WinHandle
	srcBuf   []byte // kept for wait_local's "source buffer safe to reuse" semantics
	failed   bool
	shmFast  bool // completed synchronously via the shared-memory fast path
}

type handleArena struct{ handles []Handle }

func (a *handleArena) NodeAt(i uint32) *stack.Node { return &a.handles[i].node }

// Pool is a fixed-capacity freelist of Handle values.
type Pool struct {
	arena *handleArena
	free  *stack.Stack
}

func newPool(capacity int) *Pool {
	a := &handleArena{handles: make([]Handle, capacity)}
	s := stack.New(a)
	for i := capacity - 1; i >= 0; i-- {
		s.Push(uint32(i))
	}
	return &Pool{arena: a, free: s}
}

func (p *Pool) get() (*Handle, error) {
	i, ok := p.free.Pop()
	if !ok {
		return nil, fmt.Errorf("rma: handle pool exhausted: %w", cmn.ErrAgain)
	}
	h := &p.arena.handles[i]
	h.index = i
	h.inUse.Store(true)
	h.failed = false
	h.shmFast = false
	return h, nil
}

func (p *Pool) put(h *Handle) {
	h.inUse.Store(false)
	h.srcBuf = nil
	p.free.Push(h.index)
}

// inUseCount scans the arena for handles still checked out, for the
// stats package's gauge. It is diagnostic-only: never called on the
// RMA hot path.
func (p *Pool) inUseCount() int {
	n := 0
	for i := range p.arena.handles {
		if p.arena.handles[i].inUse.Load() {
			n++
		}
	}
	return n
}

// WaitLocal blocks until h's source/destination buffer is safe to reuse
// (local completion only, spec section 4.5 table).
func (h *Handle) WaitLocal() error {
	if h.shmFast {
		return nil
	}
	return h.engine.driver.Wait(h.op)
}

// Wait blocks until h reaches both local and remote completion.
func (h *Handle) Wait() error {
	if err := h.WaitLocal(); err != nil {
		return err
	}
	if h.shmFast {
		return nil
	}
	return h.engine.driver.Flush(h.win, -1)
}

// TestLocal is the non-blocking poll counterpart of WaitLocal.
func (h *Handle) TestLocal() (bool, error) {
	if h.shmFast {
		return true, nil
	}
	return h.engine.driver.Test(h.op)
}

// Test polls h without blocking. It reports local completion only, the
// same result as TestLocal; unlike Wait, it does not flush for remote
// completion.
func (h *Handle) Test() (bool, error) {
	return h.TestLocal()
}

// Release returns h to its engine's handle pool. Callers must not use
// h after calling Release.
func (h *Handle) Release() {
	h.engine.pool.put(h)
}
