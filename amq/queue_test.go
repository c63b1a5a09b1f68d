package amq_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dash-project/dartrt/amq"
	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/core/team"
	"github.com/dash-project/dartrt/transport/shmem"
)

func setupTeams(n int) ([]*team.Team, []*shmem.Driver) {
	drivers := shmem.NewSharedWorld(n)
	units := make([]gptr.GlobalUnit, n)
	for i := range units {
		units[i] = gptr.GlobalUnit(i)
	}
	teams := make([]*team.Team, n)
	for i, d := range drivers {
		teams[i] = team.NewRegistry(units[i], d, units).Root()
	}
	return teams, drivers
}

// TestBcastDeliversToEveryMember mirrors spec section 8 seed test 3:
// one unit broadcasts via the AMQ and every unit, including the
// sender, must observe exactly one delivery of the action.
func TestBcastDeliversToEveryMember(t *testing.T) {
	const n = 5
	teams, drivers := setupTeams(n)

	var counts [n]int32
	regs := make([]*amq.FunctionRegistry, n)
	var fnID uint32
	for i := 0; i < n; i++ {
		regs[i] = amq.NewFunctionRegistry(16)
		idx := i
		fnID = regs[i].Register(func(payload []byte) {
			atomic.AddInt32(&counts[idx], 1)
		})
	}

	queues := make([]*amq.Queue, n)
	for i := 0; i < n; i++ {
		q, err := amq.Open(drivers[i], teams[i], 64, 8, regs[i])
		if err != nil {
			t.Fatalf("unit %d open: %v", i, err)
		}
		queues[i] = q
	}

	if err := queues[2].Bcast(fnID, []byte("hello")); err != nil {
		t.Fatalf("bcast: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			queues[i].Process()
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if atomic.LoadInt32(&counts[i]) != 1 {
			t.Fatalf("unit %d delivered %d times, want 1", i, counts[i])
		}
	}
}

func TestTrySendAgainWhenBufferFull(t *testing.T) {
	const n = 2
	teams, drivers := setupTeams(n)
	reg0 := amq.NewFunctionRegistry(4)
	reg1 := amq.NewFunctionRegistry(4)
	fnID := reg1.Register(func([]byte) {})

	q0, err := amq.Open(drivers[0], teams[0], 8, 4, reg0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = amq.Open(drivers[1], teams[1], 8, 4, reg1)
	if err != nil {
		t.Fatal(err)
	}

	sent := 0
	for {
		ok, err := q0.TrySend(gptr.TeamUnit(1), fnID, []byte("x"))
		if err != nil {
			t.Fatalf("try_send: %v", err)
		}
		if !ok {
			break
		}
		sent++
		if sent > 1000 {
			t.Fatal("try_send never returned AGAIN")
		}
	}
	if sent == 0 {
		t.Fatal("expected at least one successful send before AGAIN")
	}
}

func TestProcessBlockingDrainsBarrierRound(t *testing.T) {
	const n = 3
	teams, drivers := setupTeams(n)
	regs := make([]*amq.FunctionRegistry, n)
	var delivered [n]int32
	var fnID uint32
	for i := 0; i < n; i++ {
		regs[i] = amq.NewFunctionRegistry(8)
		idx := i
		fnID = regs[i].Register(func([]byte) { atomic.AddInt32(&delivered[idx], 1) })
	}
	queues := make([]*amq.Queue, n)
	for i := 0; i < n; i++ {
		q, err := amq.Open(drivers[i], teams[i], 32, 4, regs[i])
		if err != nil {
			t.Fatal(err)
		}
		queues[i] = q
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := (i + 1) % n
			if _, err := queues[i].TrySend(gptr.TeamUnit(next), fnID, []byte("ping")); err != nil {
				t.Errorf("unit %d send: %v", i, err)
			}
			if _, err := queues[i].ProcessBlocking(); err != nil {
				t.Errorf("unit %d process_blocking: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if atomic.LoadInt32(&delivered[i]) != 1 {
			t.Fatalf("unit %d delivered %d, want 1", i, delivered[i])
		}
	}
}
