// Package collective implements the team-wide collective operations of
// spec section 4.6 — barrier, bcast, gather, scatter, allgather,
// reduce and allreduce — as thin, team-aware wrappers over a
// transport.Driver. Every call here is collective over t: every live
// member of t must call the same operation, in the same order, or the
// call blocks forever (spec section 4.6 contract (a)).
//
// This package does no byte movement itself; it only translates
// team-unit ids into the driver's comm-local root argument and
// forwards. The actual data motion for this repo's reference backend
// lives in transport/shmem's rendezvous-based collective methods.
package collective

import (
	"fmt"

	"github.com/dash-project/dartrt/cmn"
	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/core/team"
	"github.com/dash-project/dartrt/transport"
)

// Barrier blocks the caller until every member of t has called
// Barrier.
func Barrier(d transport.Driver, t *team.Team) error {
	if !t.IsMember() {
		return fmt.Errorf("collective: barrier called by a non-member")
	}
	return d.Barrier(t.Comm)
}

// Bcast copies buf from root's view into every other member's buf.
func Bcast(d transport.Driver, t *team.Team, root gptr.TeamUnit, buf []byte) error {
	if err := checkMember(t, root); err != nil {
		return err
	}
	return d.Bcast(t.Comm, int(root), buf)
}

// Gather concatenates every member's send buffer into root's recv
// buffer, ordered by team-unit id; recv is ignored on non-root
// callers.
func Gather(d transport.Driver, t *team.Team, root gptr.TeamUnit, send, recv []byte) error {
	if err := checkMember(t, root); err != nil {
		return err
	}
	return d.Gather(t.Comm, int(root), send, recv)
}

// Scatter splits root's send buffer evenly across every member's recv
// buffer, ordered by team-unit id; send is ignored on non-root
// callers.
func Scatter(d transport.Driver, t *team.Team, root gptr.TeamUnit, send, recv []byte) error {
	if err := checkMember(t, root); err != nil {
		return err
	}
	return d.Scatter(t.Comm, int(root), send, recv)
}

// Allgather is Gather composed with a Bcast to every member (spec
// section 4.6: "allgather may be implemented directly or as
// gather(0) + bcast(0)"); this repo's shmem backend fuses the two into
// one rendezvous round.
func Allgather(d transport.Driver, t *team.Team, send, recv []byte) error {
	if !t.IsMember() {
		return fmt.Errorf("collective: allgather called by a non-member")
	}
	return d.Allgather(t.Comm, send, recv)
}

// Reduce combines every member's send buffer into root's recv buffer
// using op over dt-typed elements (or user, for op=cmn.OpUser /
// dt=cmn.TypeUser); recv is ignored on non-root callers.
func Reduce(d transport.Driver, t *team.Team, root gptr.TeamUnit, send, recv []byte, op cmn.ReduceOp, dt cmn.DType, user *cmn.UserReduction) error {
	if err := checkMember(t, root); err != nil {
		return err
	}
	return d.Reduce(t.Comm, int(root), send, recv, op, dt, user)
}

// Allreduce is Reduce followed by a broadcast of the result to every
// member.
func Allreduce(d transport.Driver, t *team.Team, send, recv []byte, op cmn.ReduceOp, dt cmn.DType, user *cmn.UserReduction) error {
	if !t.IsMember() {
		return fmt.Errorf("collective: allreduce called by a non-member")
	}
	return d.Allreduce(t.Comm, send, recv, op, dt, user)
}

func checkMember(t *team.Team, root gptr.TeamUnit) error {
	if !t.IsMember() {
		return fmt.Errorf("collective: called by a non-member")
	}
	if root < 0 || int(root) >= t.Size {
		return fmt.Errorf("collective: root %d out of range for team of size %d", root, t.Size)
	}
	return nil
}
