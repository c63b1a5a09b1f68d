// Package task implements the scheduler of spec section 4.8: a fixed
// worker pool draining one shared ready queue, a per-segment dependency
// graph gating task readiness, phases, cancel, and COPYIN prefetch.
//
// Tasks are not suspended: each task's action runs to completion on one
// of the NumThreads worker goroutines. A task that blocks (waiting on an
// RMA handle, a channel or a lock) keeps its worker busy until it
// returns, and that worker runs no other ready task meanwhile. Yield
// only checks the cancel flag.
package task

import (
	"fmt"
	"sync"

	"github.com/dash-project/dartrt/cmn/atomic"
	"github.com/dash-project/dartrt/core/stack"
)

// State is a task's position in the state machine spec section 4.8
// diagrams (create -> waiting/queued -> running -> done/cancelled).
type State int32

const (
	StateCreate State = iota
	StateWaiting
	StateQueued
	StateRunning
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreate:
		return "create"
	case StateWaiting:
		return "waiting"
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ActionFn is the user code a task runs once its dependencies are
// satisfied. A returned error is recorded on the task and the worker
// goes on. A panic aborts the process, except a panic with
// errCancelled, which the worker loop recognizes as a cooperative
// cancel rather than a crash; a returned errCancelled likewise marks
// the task cancelled.
type ActionFn func(t *Task) error

// Task is one scheduler-managed unit of work.
type Task struct {
	node stack.Node
	idx  uint32

	ID     int64
	Phase  int
	Action ActionFn
	Parent *Task

	state    atomic.Int32
	depCount atomic.Int32
	children atomic.Int32

	mu         sync.Mutex
	dependents []*Task // tasks that wait on this one

	err error
}

func (t *Task) State() State { return State(t.state.Load()) }

func (t *Task) setState(s State) { t.state.Store(int32(s)) }

func (t *Task) String() string {
	return fmt.Sprintf("task(%d, phase=%d, state=%s)", t.ID, t.Phase, t.State())
}
