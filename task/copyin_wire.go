package task

import (
	"encoding/binary"
	"sync"

	"github.com/dash-project/dartrt/core/gptr"
)

// copyinRequest is the decoded on-wire SENDRECV request: requestor is
// the requestor's own team-unit (so the responder knows where to reply),
// src/length describe the range the responder must read via its own
// rma.Engine.
type copyinRequest struct {
	id        uint64
	requestor uint32
	src       gptr.GlobalPtr
	length    uint32
}

const copyinRequestSize = 8 + 4 + 16 + 4

func encodeCopyinRequest(id uint64, requestor uint32, src gptr.GlobalPtr, length uint32) []byte {
	b := make([]byte, copyinRequestSize)
	binary.LittleEndian.PutUint64(b[0:8], id)
	binary.LittleEndian.PutUint32(b[8:12], requestor)
	wire := src.ToWire()
	copy(b[12:28], wire[:])
	binary.LittleEndian.PutUint32(b[28:32], length)
	return b
}

func decodeCopyinRequest(b []byte) (copyinRequest, bool) {
	if len(b) < copyinRequestSize {
		return copyinRequest{}, false
	}
	var wire [16]byte
	copy(wire[:], b[12:28])
	return copyinRequest{
		id:        binary.LittleEndian.Uint64(b[0:8]),
		requestor: binary.LittleEndian.Uint32(b[8:12]),
		src:       gptr.FromWire(wire),
		length:    binary.LittleEndian.Uint32(b[28:32]),
	}, true
}

const copyinResponseHeaderSize = 8

func encodeCopyinResponse(id uint64, data []byte) []byte {
	b := make([]byte, copyinResponseHeaderSize+len(data))
	binary.LittleEndian.PutUint64(b[0:8], id)
	copy(b[8:], data)
	return b
}

func decodeCopyinResponse(b []byte) (uint64, []byte, bool) {
	if len(b) < copyinResponseHeaderSize {
		return 0, nil, false
	}
	id := binary.LittleEndian.Uint64(b[0:8])
	return id, append([]byte(nil), b[copyinResponseHeaderSize:]...), true
}

// copyinPending tracks this unit's own in-flight SENDRECV requests,
// keyed by a locally-minted id, so the response handler can route an
// arriving payload back to the goroutine waiting on it.
type copyinPending struct {
	mu      sync.Mutex
	nextID  uint64
	waiters map[uint64]chan []byte
}

func newCopyinPending() *copyinPending {
	return &copyinPending{waiters: make(map[uint64]chan []byte)}
}

func (p *copyinPending) register() (uint64, chan []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan []byte, 1)
	p.waiters[id] = ch
	return id, ch
}

func (p *copyinPending) deliver(id uint64, data []byte) {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()
	if ok {
		ch <- data
	}
}

func (p *copyinPending) forget(id uint64) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}
