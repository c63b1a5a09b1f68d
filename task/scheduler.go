package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dash-project/dartrt/cmn/atomic"
	"github.com/dash-project/dartrt/cmn/nlog"
	"github.com/dash-project/dartrt/collective"
	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/core/stack"
	"github.com/dash-project/dartrt/core/team"
	"github.com/dash-project/dartrt/transport"
	"golang.org/x/sync/semaphore"
)

// errCancelled is the sentinel Action may return, or the scheduler
// itself raises via recover, to unwind a task cooperatively without
// aborting the process (spec section 4.8, "Cancellation"): the
// closest idiomatic-Go analogue of the spec's longjmp-out-of-task.
var errCancelled = errors.New("task: cancelled")

// Scheduler owns the fixed worker pool, the team-shared ready queue,
// the dependency graph and the phase counters of spec section 4.8.
//
// There is no per-worker local ready queue: every ready task is pushed
// to one shared queue and NumThreads persistent workers drain it. A
// counting semaphore released on each push is the signal idle workers
// wait on under IDLE_THREAD=WAIT.
type Scheduler struct {
	cfg      Config
	pool     *Pool
	ready    *stack.Stack
	graph    *Graph
	throttle *phaseThrottle

	wake *semaphore.Weighted // released once per push; workers Acquire to wait for work

	phase       atomic.Int32
	cancelled   atomic.Bool
	activeTasks atomic.Int32
	nextID      atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New returns a scheduler with the given fixed task-pool capacity,
// configured from cfg.
func New(cfg Config, capacity int) *Scheduler {
	pool := NewPool(capacity)
	return &Scheduler{
		cfg:      cfg,
		pool:     pool,
		ready:    stack.New(&readyArena{pool: pool}),
		graph:    NewGraph(),
		throttle: newPhaseThrottle(),
		wake:     semaphore.NewWeighted(int64(capacity)),
		stopCh:   make(chan struct{}),
	}
}

// readyArena indexes into the scheduler's task pool arena, so the
// shared ready stack and the freelist stack are two independent
// stack.Stack instances over the same backing slice (spec section
// 4.1's arena-reuse pattern, also used by rma.Pool).
type readyArena struct{ pool *Pool }

func (a *readyArena) NodeAt(i uint32) *stack.Node { return &a.pool.arena.tasks[i].node }

// Start launches cfg.NumThreads persistent worker goroutines. d is
// accepted for symmetry with the progress-thread/AMQ polling this
// scheduler's caller (package dart) drives alongside it.
func (s *Scheduler) Start(d transport.Driver) {
	for i := 0; i < s.cfg.NumThreads; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
}

// Stop signals every worker to exit after draining currently-ready
// work and waits for them to return.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) workerLoop(id int) {
	defer s.wg.Done()
	if s.cfg.BindThreads {
		bindWorker(id, s.cfg.BindThreadsVerbose)
	}
	for {
		idx, ok := s.ready.Pop()
		if !ok {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if !s.idle() {
				return
			}
			continue
		}
		t := &s.pool.arena.tasks[idx]
		s.run(t)
	}
}

// idle applies cfg.IdlePolicy when the ready queue is empty. It always
// returns true; workerLoop checks stopCh itself before idling.
func (s *Scheduler) idle() bool {
	switch s.cfg.IdlePolicy {
	case IdlePoll:
		return true
	case IdleWait:
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.IdleSleep)
		defer cancel()
		_ = s.wake.Acquire(ctx, 1)
		return true
	default: // IdleSleep
		time.Sleep(s.cfg.IdleSleep)
		return true
	}
}

// Submit creates a task running action at the current phase with no
// dependencies, immediately ready.
func (s *Scheduler) Submit(action ActionFn) (*Task, error) {
	return s.Create(action, nil)
}

// Create allocates a new task, adds each dep via the dependency graph,
// and enqueues it once every edge is either already satisfied or
// wired. deps may be nil.
func (s *Scheduler) Create(action ActionFn, deps []Dependency) (*Task, error) {
	t, err := s.pool.Get(s.nextID.Inc())
	if err != nil {
		return nil, err
	}
	t.Action = action
	t.Phase = int(s.phase.Load())
	s.throttle.enter(t.Phase, s.cfg.MaxActivePhases)
	s.activeTasks.Inc()

	pending := 0
	for _, dep := range deps {
		if dep.Kind == DepDirect {
			if dep.Pred != nil && s.graph.waitOn(t, dep.Pred) {
				pending++
			}
			continue
		}
		pending += s.graph.Resolve(t, dep.Kind, dep.Segment, dep.Offset, t.Phase)
	}
	t.depCount.Store(int32(pending))
	if pending == 0 {
		s.enqueue(t)
	} else {
		t.setState(StateWaiting)
	}
	return t, nil
}

// Dependency names one of a task's data-flow edges at creation time
// (spec section 4.8 step 1/2). Pred is only read for DepDirect, the one
// kind with no global pointer: a plain edge onto a specific predecessor
// task, bypassing the segment-keyed graph entirely.
type Dependency struct {
	Kind    DepKind
	Segment gptr.SegmentID
	Offset  int64
	Pred    *Task
}

func (s *Scheduler) enqueue(t *Task) {
	t.setState(StateQueued)
	s.ready.Push(t.idx)
	s.wake.Release(1)
}

func (s *Scheduler) run(t *Task) {
	t.setState(StateRunning)
	final := StateDone
	var resultErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if r == errCancelled {
					final = StateCancelled
					resultErr = errCancelled
					return
				}
				panic(r) // spec section 4.8: action exceptions abort the process
			}
		}()
		if s.cancelled.Load() {
			final, resultErr = StateCancelled, errCancelled
			return
		}
		if err := t.Action(t); err != nil {
			resultErr = err
			if errors.Is(err, errCancelled) {
				final = StateCancelled
			}
		}
	}()

	if t.Parent != nil {
		t.Parent.children.Dec()
	}
	s.finish(t, final, resultErr)
	s.activeTasks.Dec()
	s.throttle.leave(t.Phase)
	s.pool.Put(t)
}

// finish transitions t to its terminal state and drains its dependents
// atomically with that transition (guarded by t.mu, the same lock
// Graph.waitOn checks under) so a dependency being wired concurrently
// can never race past a completion it should have waited for (spec
// section 4.8 step 4: "A task becomes ready when its outstanding
// dependency counter reaches zero").
func (s *Scheduler) finish(t *Task, final State, err error) {
	t.mu.Lock()
	t.setState(final)
	t.err = err
	dependents := t.dependents
	t.dependents = nil
	t.mu.Unlock()

	for _, dep := range dependents {
		if dep.depCount.Dec() == 0 {
			s.enqueue(dep)
		}
	}
}

// Yield cooperatively checks the cancel flag, the point spec section
// 4.8 names as one of the three suspension points workers notice a
// pending cancellation at.
func (s *Scheduler) Yield() {
	if s.cancelled.Load() {
		panic(errCancelled)
	}
}

// PhaseAdvance bumps this unit's local phase counter (spec section
// 4.8). Tasks created after this call are tagged with the new phase.
func (s *Scheduler) PhaseAdvance() int {
	return int(s.phase.Inc())
}

// Phase returns the current local phase counter.
func (s *Scheduler) Phase() int { return int(s.phase.Load()) }

// PhaseResync is a collective barrier over the phase counter (spec
// section 4.8: "phase_resync(team) is a collective barrier").
func (s *Scheduler) PhaseResync(d transport.Driver, t *team.Team) error {
	return collective.Barrier(d, t)
}

// ActiveTasks returns the number of tasks currently live (queued,
// waiting or running), for the stats package's gauge.
func (s *Scheduler) ActiveTasks() int32 { return s.activeTasks.Load() }

// CancelBcast starts global cancellation (spec section 4.8): it sets
// the local cancel flag and calls bcast, which the caller supplies to
// broadcast the cancel message to every unit, then unwinds the
// calling goroutine with errCancelled — the caller must run inside a
// func recovering it, which a task's run() already does.
func (s *Scheduler) CancelBcast(bcast func() error) error {
	s.cancelled.Store(true)
	if err := bcast(); err != nil {
		nlog.Errorln("cancel_bcast: broadcast failed:", err)
	}
	panic(errCancelled)
}

// CancelBarrier is CancelBcast's collective counterpart: every unit
// enters voluntarily and rendezvouses before the flag clears.
func (s *Scheduler) CancelBarrier(d transport.Driver, t *team.Team) error {
	s.cancelled.Store(true)
	if err := collective.Barrier(d, t); err != nil {
		return err
	}
	s.cancelled.Store(false)
	return nil
}
