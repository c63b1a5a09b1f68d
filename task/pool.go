package task

import (
	"fmt"

	"github.com/dash-project/dartrt/core/stack"
)

type arena struct{ tasks []Task }

func (a *arena) NodeAt(i uint32) *stack.Node { return &a.tasks[i].node }

// Pool is the fixed-capacity task freelist (spec section 4.1's
// lock-free stack, reused here exactly as rma.Pool reuses it for RMA
// handles).
type Pool struct {
	arena *arena
	free  *stack.Stack
}

// NewPool returns a pool of capacity pre-allocated Task slots.
func NewPool(capacity int) *Pool {
	a := &arena{tasks: make([]Task, capacity)}
	s := stack.New(a)
	for i := capacity - 1; i >= 0; i-- {
		s.Push(uint32(i))
	}
	return &Pool{arena: a, free: s}
}

// Get rents a zeroed task from the pool, assigning it id.
func (p *Pool) Get(id int64) (*Task, error) {
	i, ok := p.free.Pop()
	if !ok {
		return nil, fmt.Errorf("task: pool exhausted")
	}
	t := &p.arena.tasks[i]
	*t = Task{ID: id, idx: i}
	return t, nil
}

// Put returns t to the freelist. Callers must not use t afterward.
func (p *Pool) Put(t *Task) {
	p.free.Push(t.idx)
}
