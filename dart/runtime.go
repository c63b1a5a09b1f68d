// Package dart implements init/finalize (spec section 4.9): opening
// the transport, creating the default (universal) team, constructing
// the process-local buddy pool and its backing segment, starting the
// task scheduler and the default active-message queue, and the
// team-wide mutex built from the shared segment plus the driver's
// compare-and-swap primitive.
package dart

import (
	"fmt"

	"github.com/dash-project/dartrt/amq"
	"github.com/dash-project/dartrt/core/buddy"
	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/core/segment"
	"github.com/dash-project/dartrt/core/team"
	"github.com/dash-project/dartrt/rma"
	"github.com/dash-project/dartrt/stats"
	"github.com/dash-project/dartrt/task"
	"github.com/dash-project/dartrt/transport"
)

// DefaultLocalPoolSize and DefaultMinBlock size the per-unit process-local
// buddy pool when the caller doesn't override them.
const (
	DefaultLocalPoolSize = 64 << 20
	DefaultMinBlock      = 64
	DefaultTaskCapacity  = 1 << 16
	DefaultAMQCapacity   = 1024
	DefaultAMQPayload    = 4096
	sharedWordSize       = 8
)

// Runtime is the live, process-wide state one call to Init produces.
type Runtime struct {
	Driver    transport.Driver
	Registry  *team.Registry
	Root      *team.Team
	Engine    *rma.Engine
	LocalPool *buddy.Pool
	LocalSeg  *segment.Segment
	Scheduler *task.Scheduler
	Funcs     *amq.FunctionRegistry
	AMQ       *amq.Queue
	Copyin    *task.CopyinResponder
	Mutex     *TeamMutex
	Stats     *stats.Registry

	teardownOrder []*team.Team
}

// Options overrides Init's defaults; the zero value uses every
// default above.
type Options struct {
	LocalPoolSize int
	MinBlock      int
	TaskConfig    task.Config
	TaskCapacity  int
	AMQCapacity   int
	AMQPayload    int
}

// Init must be called once per process (spec section 4.9). d is an
// already-opened transport (this repo's reference backend is built by
// transport/shmem.NewWorld/NewSharedWorld; a real deployment's
// launcher would instead hand Init an MPI- or GASPI-backed Driver).
func Init(d transport.Driver, opts Options) (*Runtime, error) {
	if opts.LocalPoolSize == 0 {
		opts.LocalPoolSize = DefaultLocalPoolSize
	}
	if opts.MinBlock == 0 {
		opts.MinBlock = DefaultMinBlock
	}
	if opts.TaskCapacity == 0 {
		opts.TaskCapacity = DefaultTaskCapacity
	}
	if opts.AMQCapacity == 0 {
		opts.AMQCapacity = DefaultAMQCapacity
	}
	if opts.AMQPayload == 0 {
		opts.AMQPayload = DefaultAMQPayload
	}
	if opts.TaskConfig.NumThreads == 0 {
		opts.TaskConfig = task.LoadConfig()
	}

	universe := make([]gptr.GlobalUnit, d.Size())
	for i := range universe {
		universe[i] = gptr.GlobalUnit(i)
	}
	reg := team.NewRegistry(gptr.GlobalUnit(d.Rank()), d, universe)
	root := reg.Root()

	sharedBuf := make([]byte, sharedWordSize)
	sharedSeg, err := rma.AllocSharedWindow(root, d, sharedBuf)
	if err != nil {
		return nil, fmt.Errorf("dart: init: shared segment: %w", err)
	}
	mu, err := newTeamMutex(sharedSeg, d)
	if err != nil {
		return nil, fmt.Errorf("dart: init: team mutex: %w", err)
	}

	localBuf := make([]byte, opts.LocalPoolSize)
	localSeg, err := rma.AllocProcessLocal(root, localBuf)
	if err != nil {
		return nil, fmt.Errorf("dart: init: local segment: %w", err)
	}
	pool := buddy.NewPool(opts.LocalPoolSize, opts.MinBlock)

	sched := task.New(opts.TaskConfig, opts.TaskCapacity)
	sched.Start(d)

	engine := rma.NewEngine(root, d)

	funcs := amq.NewFunctionRegistry(256)
	q, err := amq.Open(d, root, opts.AMQPayload, opts.AMQCapacity, funcs)
	if err != nil {
		sched.Stop()
		return nil, fmt.Errorf("dart: init: amq: %w", err)
	}
	// Registered unconditionally, at the same point in every unit's init
	// sequence, so the two function ids this mints agree process-to-process
	// regardless of whether COPYIN_IMPL=SENDRECV is ever actually selected.
	copyinResp := task.RegisterCopyinResponder(funcs, engine, q)

	rt := &Runtime{
		Driver:        d,
		Registry:      reg,
		Root:          root,
		Engine:        engine,
		LocalPool:     pool,
		LocalSeg:      localSeg,
		Scheduler:     sched,
		Funcs:         funcs,
		AMQ:           q,
		Copyin:        copyinResp,
		Mutex:         mu,
		teardownOrder: []*team.Team{root},
	}
	rt.Stats = stats.New(d.Rank(), stats.Sources{
		Scheduler: sched,
		Engine:    engine,
		LocalPool: pool,
		AMQ:       q,
	})
	return rt, nil
}

// TrackTeam records a child team for reverse-order teardown at
// Finalize, the order spec section 3 requires ("destruction ...  must
// precede parent destruction").
func (rt *Runtime) TrackTeam(t *team.Team) {
	rt.teardownOrder = append(rt.teardownOrder, t)
}

// Finalize drains in-flight RMA, shuts the scheduler, tears down every
// tracked team in reverse creation order, and closes the transport
// (spec section 4.9).
func (rt *Runtime) Finalize() error {
	if err := rt.Engine.FlushAll(gptr.GlobalPtr{Unit: int32(rt.Driver.Rank()), Segment: gptr.SegShared}); err != nil {
		return fmt.Errorf("dart: finalize: flush_all: %w", err)
	}
	rt.Scheduler.Stop()
	if err := rt.AMQ.Close(); err != nil {
		return fmt.Errorf("dart: finalize: amq close: %w", err)
	}
	for i := len(rt.teardownOrder) - 1; i >= 0; i-- {
		t := rt.teardownOrder[i]
		if t == rt.Root {
			continue // the universal team is torn down implicitly by Close
		}
		if err := rt.Registry.Destroy(t); err != nil {
			return fmt.Errorf("dart: finalize: destroy team %d: %w", t.ID, err)
		}
	}
	return rt.Driver.Close()
}
