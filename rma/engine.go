package rma

import (
	"fmt"

	"github.com/dash-project/dartrt/cmn/debug"
	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/core/segment"
	"github.com/dash-project/dartrt/core/team"
	"github.com/dash-project/dartrt/transport"
)

// DefaultPoolCapacity is the per-engine handle pool size; exceeding it
// surfaces ErrAgain-shaped exhaustion (ERR_AGAIN per spec section 6/7)
// rather than blocking or growing, matching the fixed per-thread
// freelist spec section 4.5 describes.
const DefaultPoolCapacity = 4096

// Engine is the RMA engine bound to one team: gptr.GlobalPtr values it
// is handed are resolved against that team's segment registry (spec
// section 4.5).
type Engine struct {
	team   *team.Team
	driver transport.Driver
	pool   *Pool
}

// NewEngine returns an RMA engine over t, dispatching through d.
func NewEngine(t *team.Team, d transport.Driver) *Engine {
	return &Engine{team: t, driver: d, pool: newPool(DefaultPoolCapacity)}
}

func (e *Engine) resolve(g gptr.GlobalPtr) (*segment.Segment, int, error) {
	seg, ok := e.team.Segs.Lookup(g.Segment)
	if !ok {
		return nil, 0, fmt.Errorf("rma: unknown segment %d", g.Segment)
	}
	var tu int
	if g.IsGlobalUnit() {
		gu := gptr.GlobalUnit(g.Unit)
		t, ok := e.team.TeamUnitOf(gu)
		if !ok {
			return nil, 0, fmt.Errorf("rma: unit %d is not a member of this team", gu)
		}
		tu = int(t)
	} else {
		tu = int(g.Unit)
	}
	return seg, tu, nil
}

func (e *Engine) winOf(seg *segment.Segment) (transport.WinHandle, error) {
	w, ok := seg.TWin.(transport.WinHandle)
	if !ok {
		return 0, fmt.Errorf("rma: segment %d has no transport window", seg.ID)
	}
	return w, nil
}

// Get issues a non-blocking get of src (team-scoped global pointer)
// into dst, returning a Handle that drives later wait/test (spec
// section 4.5, row "get": no local or remote completion on return).
func (e *Engine) Get(src gptr.GlobalPtr, dst []byte) (*Handle, error) {
	return e.transfer(src, dst, true)
}

// Put issues a non-blocking put of src into the destination global
// pointer dst.
func (e *Engine) Put(dst gptr.GlobalPtr, src []byte) (*Handle, error) {
	return e.transfer(dst, src, false)
}

// GetHandle and PutHandle are explicit aliases of Get/Put kept for
// parity with spec section 4.5's call names; both already return a
// Handle in this API.
func (e *Engine) GetHandle(src gptr.GlobalPtr, dst []byte) (*Handle, error) { return e.Get(src, dst) }
func (e *Engine) PutHandle(dst gptr.GlobalPtr, src []byte) (*Handle, error) { return e.Put(dst, src) }

func (e *Engine) transfer(g gptr.GlobalPtr, buf []byte, isGet bool) (*Handle, error) {
	seg, tu, err := e.resolve(g)
	if err != nil {
		return nil, err
	}
	h, err := e.pool.get()
	if err != nil {
		return nil, err
	}
	h.engine = e
	h.srcBuf = buf

	// Shared-memory fast path (spec section 4.5): a direct copy that
	// completes both locally and remotely before this call returns,
	// bypassing the transport driver entirely.
	if peer, ok := segment.BasePtrForShmPeer(seg, tu); ok {
		off := int(g.Offset)
		debug.Assertf(off >= 0 && off+len(buf) <= len(peer), "rma: shm fast path out of bounds")
		if isGet {
			copy(buf, peer[off:off+len(buf)])
		} else {
			copy(peer[off:off+len(buf)], buf)
		}
		h.shmFast = true
		return h, nil
	}

	win, err := e.winOf(seg)
	if err != nil {
		h.engine.pool.put(h)
		return nil, err
	}
	var op transport.OpID
	if isGet {
		op, err = e.driver.Get(win, tu, int64(g.Offset), buf)
	} else {
		op, err = e.driver.Put(win, tu, int64(g.Offset), buf)
	}
	if err != nil {
		h.engine.pool.put(h)
		return nil, err
	}
	h.op = op
	h.win = win
	return h, nil
}

// GetBlocking performs a get and returns only once both local and
// remote completion have been observed (spec section 4.5 row
// "get_blocking").
func (e *Engine) GetBlocking(src gptr.GlobalPtr, dst []byte) error {
	h, err := e.Get(src, dst)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Wait()
}

// PutBlocking is GetBlocking's put-side counterpart.
func (e *Engine) PutBlocking(dst gptr.GlobalPtr, src []byte) error {
	h, err := e.Put(dst, src)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Wait()
}

// Flush blocks until every outstanding transfer to gptr's unit has
// reached remote completion (spec section 4.5).
func (e *Engine) Flush(g gptr.GlobalPtr) error {
	seg, tu, err := e.resolve(g)
	if err != nil {
		return err
	}
	if seg.Peers.WindowOnly() {
		win, err := e.winOf(seg)
		if err != nil {
			return err
		}
		return e.driver.Flush(win, tu)
	}
	return nil // shared-memory transfers are already remote-complete
}

// HandlesInUse returns the number of handles currently checked out of
// e's pool, for the stats package's gauge.
func (e *Engine) HandlesInUse() int { return e.pool.inUseCount() }

// FlushAll blocks until every outstanding transfer on gptr's segment
// reaches remote completion, for every unit.
func (e *Engine) FlushAll(g gptr.GlobalPtr) error {
	seg, ok := e.team.Segs.Lookup(g.Segment)
	if !ok {
		return fmt.Errorf("rma: unknown segment %d", g.Segment)
	}
	if seg.Peers.WindowOnly() {
		win, err := e.winOf(seg)
		if err != nil {
			return err
		}
		return e.driver.FlushAll(win)
	}
	return nil
}
