package rma

import (
	"fmt"

	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/core/segment"
	"github.com/dash-project/dartrt/core/team"
	"github.com/dash-project/dartrt/transport"
)

// AllocCollective registers a team-segment collectively: every member
// passes its own local buffer (possibly different sizes), and every
// member gets back a Segment with the agreed id and the driver's
// displacement table (spec sections 4.3, 4.5). It does not fill in the
// shared-memory peer table; until FinalizeSharedMem sets seg.Peers,
// the RMA engine reaches this segment through the driver.
//
// Callers must invoke this with the team-wide mutex held (spec section
// 5); it is exposed here, rather than folded into Engine, because
// segment allocation is a team/segment-registry concern independent of
// any one engine instance.
func AllocCollective(t *team.Team, d transport.Driver, localBuf []byte) (*segment.Segment, error) {
	seg, err := t.Segs.Alloc(segment.KindCollectiveAllocated, int64(len(localBuf)))
	if err != nil {
		return nil, err
	}
	win, disp, err := d.RegisterWindow(t.Comm, int64(seg.ID), localBuf)
	if err != nil {
		return nil, err
	}
	seg.TWin = win
	seg.Disp = disp
	seg.Base = localBuf
	return seg, nil
}

// FinalizeSharedMem fills in seg.Peers from every team member's own
// AllocCollective result once all members have registered (this repo's
// single-process reference backend can observe every rank's buffer
// directly; a multi-node backend would instead leave WindowOnly() true
// here and rely purely on the driver).
func FinalizeSharedMem(seg *segment.Segment, perUnitBufs [][]byte) {
	seg.Peers = segment.NewPeerBases(perUnitBufs)
}

// AllocSharedWindow backs the team's reserved shared segment (spec
// section 3's SegShared, id 0) with a real transport window over
// localBuf, collectively across every member. It is the segment the
// team-wide mutex of spec section 4.9 ("built from a shared atomic
// word plus the RMA compare-and-swap primitive") stores its lock word
// in — unlike AllocCollective, it mutates the placeholder descriptor
// NewRegistry already seeded at id 0 instead of minting a new id.
func AllocSharedWindow(t *team.Team, d transport.Driver, localBuf []byte) (*segment.Segment, error) {
	seg, ok := t.Segs.Lookup(gptr.SegShared)
	if !ok {
		return nil, fmt.Errorf("rma: team %d has no reserved shared segment", t.ID)
	}
	win, disp, err := d.RegisterWindow(t.Comm, int64(seg.ID), localBuf)
	if err != nil {
		return nil, err
	}
	seg.TWin = win
	seg.Disp = disp
	seg.Base = localBuf
	seg.Size = int64(len(localBuf))
	return seg, nil
}

// AllocProcessLocal rents the process-local pool segment (segment id
// -1, spec section 3) backed by buf. It is never collective.
func AllocProcessLocal(t *team.Team, buf []byte) (*segment.Segment, error) {
	seg, err := t.Segs.Alloc(segment.KindProcessLocal, int64(len(buf)))
	if err != nil {
		return nil, err
	}
	seg.Base = buf
	seg.Peers = segment.NewPeerBases([][]byte{buf})
	return seg, nil
}

// RegisterExternal wires an already-allocated, non-collectively-owned
// buffer into the registry (team_memalloc's "registered" variant, spec
// section 4.3's registered counter and freelist, distinct from
// collective allocation).
func RegisterExternal(t *team.Team, d transport.Driver, buf []byte) (*segment.Segment, error) {
	seg, err := t.Segs.Alloc(segment.KindCollectiveRegistered, int64(len(buf)))
	if err != nil {
		return nil, err
	}
	win, disp, err := d.RegisterWindow(t.Comm, int64(seg.ID), buf)
	if err != nil {
		return nil, err
	}
	seg.TWin = win
	seg.Disp = disp
	seg.Base = buf
	return seg, nil
}
