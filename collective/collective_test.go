package collective_test

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/dash-project/dartrt/cmn"
	"github.com/dash-project/dartrt/collective"
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

// TestAllgatherRanks mirrors spec section 8 seed test 1: every unit
// contributes its own rank, and every unit must end up with the full
// 0..n-1 rank vector, across team sizes 1, 2, 4 and 7.
func TestAllgatherRanks(t *testing.T) {
	for _, n := range []int{1, 2, 4, 7} {
		teams, drivers := setupTeams(n)
		var wg sync.WaitGroup
		got := make([][]byte, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				send := make([]byte, 4)
				binary.LittleEndian.PutUint32(send, uint32(i))
				recv := make([]byte, 4*n)
				if err := collective.Allgather(drivers[i], teams[i], send, recv); err != nil {
					t.Errorf("unit %d allgather: %v", i, err)
				}
				got[i] = recv
			}(i)
		}
		wg.Wait()
		for i := 0; i < n; i++ {
			for r := 0; r < n; r++ {
				v := binary.LittleEndian.Uint32(got[i][r*4:])
				if v != uint32(r) {
					t.Fatalf("n=%d unit %d: slot %d = %d, want %d", n, i, r, v, r)
				}
			}
		}
	}
}

func TestBarrierReleasesAllMembers(t *testing.T) {
	const n = 5
	teams, drivers := setupTeams(n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := collective.Barrier(drivers[i], teams[i]); err != nil {
				t.Errorf("unit %d barrier: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
}

func TestBcastFromRoot(t *testing.T) {
	const n = 4
	teams, drivers := setupTeams(n)
	var wg sync.WaitGroup
	bufs := make([][]byte, n)
	for i := 0; i < n; i++ {
		bufs[i] = make([]byte, 8)
	}
	copy(bufs[2], []byte("deadbeef"))
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := collective.Bcast(drivers[i], teams[i], gptr.TeamUnit(2), bufs[i]); err != nil {
				t.Errorf("unit %d bcast: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if string(bufs[i]) != "deadbeef" {
			t.Fatalf("unit %d: got %q, want deadbeef", i, bufs[i])
		}
	}
}

func TestAllreduceSum(t *testing.T) {
	const n = 6
	teams, drivers := setupTeams(n)
	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			send := make([]byte, 4)
			binary.LittleEndian.PutUint32(send, uint32(i+1))
			recv := make([]byte, 4)
			err := collective.Allreduce(drivers[i], teams[i], send, recv, cmn.OpSum, cmn.TypeU32, nil)
			if err != nil {
				t.Errorf("unit %d allreduce: %v", i, err)
			}
			results[i] = recv
		}(i)
	}
	wg.Wait()
	// sum of 1..n
	want := uint32(n * (n + 1) / 2)
	for i := 0; i < n; i++ {
		got := binary.LittleEndian.Uint32(results[i])
		if got != want {
			t.Fatalf("unit %d: allreduce sum = %d, want %d", i, got, want)
		}
	}
}

func TestGatherThenScatterRoundtrip(t *testing.T) {
	const n = 3
	teams, drivers := setupTeams(n)
	var wg sync.WaitGroup
	gathered := make([]byte, n*4)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			send := make([]byte, 4)
			binary.LittleEndian.PutUint32(send, uint32(100+i))
			var recv []byte
			if i == 0 {
				recv = gathered
			}
			if err := collective.Gather(drivers[i], teams[i], 0, send, recv); err != nil {
				t.Errorf("unit %d gather: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint32(gathered[i*4:])
		if v != uint32(100+i) {
			t.Fatalf("gather slot %d = %d, want %d", i, v, 100+i)
		}
	}

	scattered := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var send []byte
			if i == 0 {
				send = gathered
			}
			recv := make([]byte, 4)
			if err := collective.Scatter(drivers[i], teams[i], 0, send, recv); err != nil {
				t.Errorf("unit %d scatter: %v", i, err)
			}
			scattered[i] = recv
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint32(scattered[i])
		if v != uint32(100+i) {
			t.Fatalf("scatter unit %d = %d, want %d", i, v, 100+i)
		}
	}
}
