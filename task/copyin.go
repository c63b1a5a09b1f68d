package task

import (
	"fmt"
	"time"

	"github.com/dash-project/dartrt/amq"
	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/rma"
)

// Copyin prefetches src into dst before a consumer task runs, using
// cfg's selected strategy. CopyinGet issues a get_handle and waits on
// it per cfg.CopyinWait; CopyinSendRecv instead exchanges a pair of
// active messages with src's owner, a two-sided fallback for transports
// where a one-sided get is unavailable or undesirable (spec section
// 4.8, "Copyin pre-fetch"; supplemented from
// dart-impl/tasking/src/internal/dart_tasking_copyin.c, which shows
// SENDRECV as a two-sided fallback to the GET-based default).
// responder may be nil only when cfg.CopyinImpl is CopyinGet.
func Copyin(cfg Config, eng *rma.Engine, responder *CopyinResponder, src gptr.GlobalPtr, dst []byte) error {
	switch cfg.CopyinImpl {
	case CopyinSendRecv:
		if responder == nil {
			return fmt.Errorf("task: COPYIN_IMPL=SENDRECV requires a registered CopyinResponder")
		}
		return responder.Send(cfg.CopyinWait, src, dst)
	default:
		return copyinGet(cfg, eng, src, dst)
	}
}

func copyinGet(cfg Config, eng *rma.Engine, src gptr.GlobalPtr, dst []byte) error {
	h, err := eng.GetHandle(src, dst)
	if err != nil {
		return err
	}
	defer h.Release()
	switch cfg.CopyinWait {
	case CopyinBlock:
		return h.WaitLocal()
	default: // CopyinYield: spin, yielding the goroutine between polls
		for {
			done, err := h.TestLocal()
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			time.Sleep(time.Microsecond)
		}
	}
}

// CopyinResponder is the per-unit SENDRECV state: it lets this unit
// both issue two-sided copyin requests to peers and serve requests
// peers send it for data this unit owns. RegisterCopyinResponder must
// be called once per unit, at the same point in every unit's own init
// sequence, so the request/response function ids it registers agree
// process-to-process (the same requirement spec.md places on every
// other FunctionRegistry registration).
type CopyinResponder struct {
	eng      *rma.Engine
	q        *amq.Queue
	pending  *copyinPending
	reqFnID  uint32
	respFnID uint32
}

// RegisterCopyinResponder wires the SENDRECV request/response handlers
// into reg. eng resolves the local data a peer's request asks for; q is
// the same queue this unit uses both to answer requests and to send its
// own.
func RegisterCopyinResponder(reg *amq.FunctionRegistry, eng *rma.Engine, q *amq.Queue) *CopyinResponder {
	c := &CopyinResponder{eng: eng, q: q, pending: newCopyinPending()}
	c.reqFnID = reg.Register(c.handleRequest)
	c.respFnID = reg.Register(c.handleResponse)
	return c
}

func (c *CopyinResponder) handleRequest(payload []byte) {
	req, ok := decodeCopyinRequest(payload)
	if !ok {
		return
	}
	buf := make([]byte, req.length)
	if err := c.eng.GetBlocking(req.src, buf); err != nil {
		return // best-effort: the requestor's own wait eventually gives up
	}
	resp := encodeCopyinResponse(req.id, buf)
	for {
		ok, err := c.q.TrySend(gptr.TeamUnit(req.requestor), c.respFnID, resp)
		if err != nil || ok {
			return
		}
		c.q.Process() // drain our own backlog while the requestor's buffer is full
	}
}

func (c *CopyinResponder) handleResponse(payload []byte) {
	id, data, ok := decodeCopyinResponse(payload)
	if !ok {
		return
	}
	c.pending.deliver(id, data)
}

// Send issues a SENDRECV copyin request for src, polling this unit's
// own queue (per wait's cadence) until the owning unit's response
// lands in dst. When src.Unit is this unit itself, the request and its
// response both flow through this same queue — one Process call
// dispatches the request handler, and the response it sends is
// delivered by a later Process call of the same polling loop, so no
// special-casing the local case is needed.
func (c *CopyinResponder) Send(wait CopyinWait, src gptr.GlobalPtr, dst []byte) error {
	id, ch := c.pending.register()
	defer c.pending.forget(id)

	req := encodeCopyinRequest(id, uint32(c.q.Self()), src, uint32(len(dst)))
	target := gptr.TeamUnit(src.Unit)
	for {
		ok, err := c.q.TrySend(target, c.reqFnID, req)
		if err != nil {
			return fmt.Errorf("task: copyin sendrecv: request: %w", err)
		}
		if ok {
			break
		}
		c.q.Process()
	}

	poll := time.Microsecond
	if wait == CopyinBlock {
		poll = time.Millisecond
	}
	for {
		select {
		case data := <-ch:
			if len(data) != len(dst) {
				return fmt.Errorf("task: copyin sendrecv: got %d bytes, want %d", len(data), len(dst))
			}
			copy(dst, data)
			return nil
		default:
		}
		c.q.Process()
		time.Sleep(poll)
	}
}
