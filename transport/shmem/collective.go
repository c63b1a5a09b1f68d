package shmem

import (
	"sync"

	"github.com/dash-project/dartrt/cmn"
	"github.com/dash-project/dartrt/transport"
)

// collRound is a single-use-per-generation rendezvous point for one
// communicator's collective calls. Every member calls rendezvous with
// its own contribution; the member whose arrival completes the round
// runs finalize once, with every member's contribution visible, and is
// free to write results directly into any member's dst slice (there is
// exactly one address space in this backend). The round then resets
// for the communicator's next collective call.
type collRound struct {
	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	gen     int
	entries map[int]contribution
}

type contribution struct {
	send []byte
	dst  []byte
}

func (d *Driver) round(comm transport.CommHandle) *collRound {
	d.collMu.Lock()
	defer d.collMu.Unlock()
	r, ok := d.collRounds[comm]
	if !ok {
		r = &collRound{entries: make(map[int]contribution)}
		r.cond = sync.NewCond(&r.mu)
		d.collRounds[comm] = r
	}
	return r
}

// rendezvous blocks every one of the comm's `size` members until all
// have arrived, then runs finalize exactly once (on whichever
// member's goroutine arrives last) before releasing every waiter.
func (d *Driver) rendezvous(comm transport.CommHandle, size, memberIdx int, c contribution, finalize func(all map[int]contribution)) {
	r := d.round(comm)
	r.mu.Lock()
	gen := r.gen
	r.entries[memberIdx] = c
	r.arrived++
	if r.arrived == size {
		finalize(r.entries)
		r.entries = make(map[int]contribution)
		r.arrived = 0
		r.gen++
		r.cond.Broadcast()
	} else {
		for r.gen == gen {
			r.cond.Wait()
		}
	}
	r.mu.Unlock()
}

func (d *Driver) memberIdx(comm transport.CommHandle) (members []int, idx int) {
	d.mu.Lock()
	members = d.comms[comm]
	d.mu.Unlock()
	for i, m := range members {
		if m == d.rank {
			return members, i
		}
	}
	return members, -1
}

// Barrier blocks until every member of comm has called Barrier.
func (d *Driver) Barrier(comm transport.CommHandle) error {
	members, idx := d.memberIdx(comm)
	d.rendezvous(comm, len(members), idx, contribution{}, func(map[int]contribution) {})
	return nil
}

// Bcast copies root's buf into every other member's buf.
func (d *Driver) Bcast(comm transport.CommHandle, root int, buf []byte) error {
	members, idx := d.memberIdx(comm)
	c := contribution{dst: buf}
	if idx == root {
		c.send = buf
	}
	d.rendezvous(comm, len(members), idx, c, func(all map[int]contribution) {
		src := all[root].send
		for i, e := range all {
			if i != root && e.dst != nil {
				copy(e.dst, src)
			}
		}
	})
	return nil
}

// Gather concatenates every member's send buffer into root's recv
// buffer, ordered by comm-local member index.
func (d *Driver) Gather(comm transport.CommHandle, root int, send, recv []byte) error {
	members, idx := d.memberIdx(comm)
	c := contribution{send: send}
	if idx == root {
		c.dst = recv
	}
	d.rendezvous(comm, len(members), idx, c, func(all map[int]contribution) {
		dst := all[root].dst
		if dst == nil {
			return
		}
		chunk := len(dst) / len(all)
		for i := 0; i < len(all); i++ {
			copy(dst[i*chunk:(i+1)*chunk], all[i].send)
		}
	})
	return nil
}

// Scatter is Gather's inverse: root's send buffer is split evenly
// across members' recv buffers, in comm-local member order.
func (d *Driver) Scatter(comm transport.CommHandle, root int, send, recv []byte) error {
	members, idx := d.memberIdx(comm)
	c := contribution{dst: recv}
	if idx == root {
		c.send = send
	}
	d.rendezvous(comm, len(members), idx, c, func(all map[int]contribution) {
		src := all[root].send
		if src == nil {
			return
		}
		chunk := len(src) / len(all)
		for i := 0; i < len(all); i++ {
			if all[i].dst != nil {
				copy(all[i].dst, src[i*chunk:(i+1)*chunk])
			}
		}
	})
	return nil
}

// Allgather is Gather followed by a Bcast to every member, fused into
// one round (spec section 4.6: "allgather may be implemented directly
// or as gather(0) + bcast(0)").
func (d *Driver) Allgather(comm transport.CommHandle, send, recv []byte) error {
	members, idx := d.memberIdx(comm)
	c := contribution{send: send, dst: recv}
	d.rendezvous(comm, len(members), idx, c, func(all map[int]contribution) {
		chunk := len(send)
		for i := 0; i < len(all); i++ {
			for _, e := range all {
				if e.dst != nil {
					copy(e.dst[i*chunk:(i+1)*chunk], all[i].send)
				}
			}
		}
	})
	return nil
}

func (d *Driver) Reduce(comm transport.CommHandle, root int, send, recv []byte, op cmn.ReduceOp, dt cmn.DType, user *cmn.UserReduction) error {
	members, idx := d.memberIdx(comm)
	c := contribution{send: send}
	if idx == root {
		c.dst = recv
	}
	var reduceErr error
	d.rendezvous(comm, len(members), idx, c, func(all map[int]contribution) {
		dst := all[root].dst
		if dst == nil {
			return
		}
		copy(dst, all[root].send)
		for i := 0; i < len(all); i++ {
			if i == root {
				continue
			}
			if err := cmn.Apply(dst, all[i].send, op, dt, user); err != nil {
				reduceErr = err
				return
			}
		}
	})
	return reduceErr
}

func (d *Driver) Allreduce(comm transport.CommHandle, send, recv []byte, op cmn.ReduceOp, dt cmn.DType, user *cmn.UserReduction) error {
	members, idx := d.memberIdx(comm)
	c := contribution{send: send, dst: recv}
	var reduceErr error
	d.rendezvous(comm, len(members), idx, c, func(all map[int]contribution) {
		var result []byte
		for i := 0; i < len(all); i++ {
			if result == nil {
				result = append([]byte{}, all[i].send...)
				continue
			}
			if err := cmn.Apply(result, all[i].send, op, dt, user); err != nil {
				reduceErr = err
				return
			}
		}
		for _, e := range all {
			if e.dst != nil {
				copy(e.dst, result)
			}
		}
	})
	return reduceErr
}
