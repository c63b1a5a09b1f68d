// Package amq implements the per-team active-message queue of spec
// section 4.7: open/try_send/process/process_blocking/bcast over a
// one-sided-RMA-delivered circular buffer per team member.
package amq

import (
	"fmt"

	"github.com/dash-project/dartrt/cmn/atomic"
	"github.com/dash-project/dartrt/cmn/nlog"
	"github.com/dash-project/dartrt/collective"
	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/core/team"
	"github.com/dash-project/dartrt/transport"
)

// Queue is one team's active-message queue (spec GLOSSARY: AMQ).
type Queue struct {
	team       *team.Team
	driver     transport.Driver
	win        transport.WinHandle
	registry   *FunctionRegistry
	maxPayload int

	outstandingSent atomic.Int64 // sends accepted by TrySend, not yet accounted for by a local Process drain
}

// Open registers q's circular buffer, one per team member, for
// messages of at most payloadSize bytes each (spec section 4.7).
// capacity is accepted but not used: the buffer depth is fixed by the
// transport backend. reg resolves fn_id to a local handler and must
// already carry the same registrations on every member of team.
func Open(d transport.Driver, t *team.Team, payloadSize, capacity int, reg *FunctionRegistry) (*Queue, error) {
	if !t.IsMember() {
		return nil, fmt.Errorf("amq: open called by a non-member")
	}
	// amqWindowTag is a reserved, fixed tag distinct from every real
	// segment id (spec section 3 caps collective ids well below this)
	// since every team has exactly one AMQ window.
	const amqWindowTag = int64(1) << 40
	win, _, err := d.RegisterWindow(t.Comm, amqWindowTag, make([]byte, 0))
	if err != nil {
		return nil, fmt.Errorf("amq: open: %w", err)
	}
	_ = capacity // this repo's shmem reference backend fixes its circular buffer depth; see transport/shmem's window.amCap
	return &Queue{team: t, driver: d, win: win, registry: reg, maxPayload: payloadSize}, nil
}

// Self returns this unit's own team-local position, the destination a
// peer should address a reply to (task.CopyinResponder's SENDRECV path
// uses this to tell a request's responder where to send its answer).
func (q *Queue) Self() gptr.TeamUnit { return q.team.Me }

// TrySend attempts a non-blocking enqueue of payload, tagged fnID,
// into target's buffer. Returns (false, nil) — AGAIN, per spec section
// 6/7's return-code contract — when target's buffer is full.
func (q *Queue) TrySend(target gptr.TeamUnit, fnID uint32, payload []byte) (bool, error) {
	if len(payload) > q.maxPayload {
		return false, fmt.Errorf("amq: payload %d exceeds queue max %d", len(payload), q.maxPayload)
	}
	gu, ok := q.team.GlobalUnitOf(target)
	if !ok {
		return false, fmt.Errorf("amq: target %d is not a member of this team", target)
	}
	ok, err := q.driver.AMSend(q.win, int(gu), fnID, frameEncode(payload))
	if ok {
		q.outstandingSent.Inc()
	}
	return ok, err
}

// Process drains every message currently in this unit's local buffer,
// invoking each one's registered action, and returns how many were
// delivered.
func (q *Queue) Process() int {
	var delivered int
	q.driver.AMPoll(q.win, func(fnID uint32, framed []byte) {
		payload, err := frameDecode(framed)
		if err != nil {
			nlog.Warnln(err)
			delivered++
			return
		}
		if err := q.registry.dispatch(fnID, payload); err != nil {
			nlog.Warnln(err) // a bad fn id never aborts process(); it's just dropped
		}
		delivered++
	})
	if delivered > 0 {
		q.outstandingSent.Add(-int64(delivered))
	}
	return delivered
}

// OutstandingSent reports how many of this unit's own TrySend/Bcast
// sends have not yet been accounted for by a local Process drain — an
// approximate, sender-side view of AMQ backlog depth (the transport
// gives no inbound-peek API to measure a receiver's true queue depth
// directly), for the stats package's gauge.
func (q *Queue) OutstandingSent() int64 { return q.outstandingSent.Load() }

// ProcessBlocking synchronizes every member of q's team at a barrier,
// then drains until every message in flight at that barrier has been
// consumed (spec section 4.7). Because this repo's reference transport
// delivers messages synchronously (AMSend already deposits the payload
// in the target's buffer before returning), the barrier alone is
// sufficient: by the time every member reaches it, no further sends
// from this round can still be in flight, so a single Process drains
// everything the barrier was waiting for.
func (q *Queue) ProcessBlocking() (int, error) {
	if err := collective.Barrier(q.driver, q.team); err != nil {
		return 0, err
	}
	return q.Process(), nil
}

// Bcast fans fnID/payload out to every member of q's team (spec
// section 4.7), retrying members that return AGAIN until every send
// has been accepted.
func (q *Queue) Bcast(fnID uint32, payload []byte) error {
	for tu := 0; tu < q.team.Size; tu++ {
		for {
			ok, err := q.TrySend(gptr.TeamUnit(tu), fnID, payload)
			if err != nil {
				return err
			}
			if ok {
				break
			}
			q.Process() // drain our own inbound backlog while waiting for room downstream
		}
	}
	return nil
}

// Close releases q's underlying transport window.
func (q *Queue) Close() error {
	return q.driver.DeregisterWindow(q.win)
}
