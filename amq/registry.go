package amq

import (
	"fmt"
	"sync"

	"github.com/seiflotfy/cuckoofilter"
)

// ActionFn is the handler a function id resolves to (spec section 4.7:
// "process(q) ... invoking each message's action").
type ActionFn func(payload []byte)

// FunctionRegistry is the process-agreed, init-populated table mapping
// function ids to local handlers (spec section 4.7). Every unit must
// register the same ids in the same order for the ids to agree
// process-to-process, the same requirement spec.md places on every
// other collective-shaped setup step.
//
// A cuckoo filter sits in front of the map purely as a fast
// negative-membership check: process() runs on the AMQ's hot path and
// most dispatches are repeat lookups of a handful of hot ids, so the
// filter rarely saves a map probe, but it keeps a cheap O(1)
// not-registered fast path for malformed/unexpected fn ids. lookup
// consults it under the registry's read lock, so the fast path still
// takes that lock.
type FunctionRegistry struct {
	mu       sync.RWMutex
	handlers map[uint32]ActionFn
	filter   *cuckoofilter.CuckooFilter
	nextID   uint32
}

// NewFunctionRegistry returns an empty registry sized for up to
// capacity distinct function ids.
func NewFunctionRegistry(capacity uint) *FunctionRegistry {
	return &FunctionRegistry{
		handlers: make(map[uint32]ActionFn),
		filter:   cuckoofilter.NewFilter(capacity),
	}
}

// Register assigns the next function id to fn and returns it. Callers
// on every unit must call Register for the same set of functions in
// the same order at init time.
func (r *FunctionRegistry) Register(fn ActionFn) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.handlers[id] = fn
	r.filter.InsertUnique(idKey(id))
	return id
}

func (r *FunctionRegistry) lookup(id uint32) (ActionFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.filter.Lookup(idKey(id)) {
		return nil, false
	}
	fn, ok := r.handlers[id]
	return fn, ok
}

func idKey(id uint32) []byte {
	return []byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)}
}

func (r *FunctionRegistry) dispatch(id uint32, payload []byte) error {
	fn, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("amq: no handler registered for function id %d", id)
	}
	fn(payload)
	return nil
}
