// Package transport defines the abstract wire driver the runtime core
// consumes (spec section 1: "the transport backend (MPI/GASPI/shared
// memory) treated as an abstract wire driver"). The core never talks to
// MPI or GASPI directly; every collective, one-sided transfer and
// active-message send goes through this interface, and a concrete
// implementation (package transport/shmem in this repo) plugs in at
// init.
package transport

import "github.com/dash-project/dartrt/cmn"

// CommHandle is an opaque communicator handle a Driver hands back from
// Open/Split; the core never inspects it, only threads it through.
type CommHandle uint64

// WinHandle is an opaque RMA window handle, one per registered segment.
type WinHandle uint64

// OpID identifies one outstanding non-blocking RMA operation.
type OpID uint64

// Driver is the full surface a transport backend must implement. Every
// method is collective/blocking unless documented otherwise; the RMA
// and collectives layers are responsible for the non-blocking
// handle/wait contract described in spec section 4.5 — Driver itself
// exposes only synchronous primitives plus a poll-based completion
// check for one-sided ops, which is what a driver like MPI-RMA or
// GASPI actually offers.
type Driver interface {
	// Rank returns this process's rank within the driver's world
	// communicator (the global-unit id).
	Rank() int
	// Size returns the world communicator's size.
	Size() int

	// Split creates a sub-communicator over the given world ranks,
	// collective over parent. Ranks not present in members get the
	// zero CommHandle and must not use the result.
	Split(parent CommHandle, members []int) (CommHandle, error)
	World() CommHandle

	Barrier(comm CommHandle) error
	Bcast(comm CommHandle, root int, buf []byte) error
	Gather(comm CommHandle, root int, send []byte, recv []byte) error
	Scatter(comm CommHandle, root int, send []byte, recv []byte) error
	Allgather(comm CommHandle, send []byte, recv []byte) error
	Reduce(comm CommHandle, root int, send, recv []byte, op cmn.ReduceOp, dt cmn.DType, user *cmn.UserReduction) error
	Allreduce(comm CommHandle, send, recv []byte, op cmn.ReduceOp, dt cmn.DType, user *cmn.UserReduction) error

	// RegisterWindow exposes localBuf (per-rank, possibly different
	// lengths) as an RMA-accessible window over comm, returning an
	// opaque handle plus the per-rank byte displacement table. tag
	// identifies the logical window being registered and must be the
	// same value on every member's call for the calls to resolve to
	// one shared window (e.g. a segment id, which every member computes
	// identically); callers that only ever register one window per comm
	// may pass any fixed constant.
	RegisterWindow(comm CommHandle, tag int64, localBuf []byte) (WinHandle, []int64, error)
	DeregisterWindow(w WinHandle) error

	// Put/Get are non-blocking; completion is observed via Test/Wait.
	// destUnit/srcUnit are positions within the communicator win was
	// registered over (team-units), not world ranks.
	Put(win WinHandle, destUnit int, destOff int64, src []byte) (OpID, error)
	Get(win WinHandle, srcUnit int, srcOff int64, dst []byte) (OpID, error)

	Test(op OpID) (done bool, err error)
	Wait(op OpID) error
	// Flush blocks until every outstanding put/get to unit on win has
	// reached remote completion.
	Flush(win WinHandle, unit int) error
	FlushAll(win WinHandle) error

	// CompareAndSwap implements the atomic primitive team-wide mutexes
	// are built from (spec section 4.9).
	CompareAndSwap(win WinHandle, unit int, off int64, old, new uint64) (uint64, error)

	// AMSend delivers a small active-message payload to target's
	// per-team circular buffer (spec section 4.7); ErrAgain-shaped
	// failure is surfaced as (false, nil).
	AMSend(win WinHandle, target int, fnID uint32, payload []byte) (sent bool, err error)
	// AMPoll drains any messages that have arrived in the local
	// buffer for win, invoking deliver(fnID, payload) for each.
	AMPoll(win WinHandle, deliver func(fnID uint32, payload []byte)) int

	Close() error
}
