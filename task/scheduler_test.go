package task_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/task"
)

// TestDepChainT1ThenT2T3 mirrors spec section 8 seed test 4: T1 writes
// (OUT) a segment offset; T2 and T3 both read (IN) it. Neither T2 nor
// T3 may observe running before T1 has finished.
func TestDepChainT1ThenT2T3(t *testing.T) {
	cfg := task.LoadConfig()
	cfg.NumThreads = 4
	s := task.New(cfg, 64)
	s.Start(nil)
	defer s.Stop()

	const seg = gptr.SegmentID(3)
	const off = int64(128)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	done := make(chan struct{}, 3)

	t1, err := s.Create(func(*task.Task) error {
		time.Sleep(5 * time.Millisecond)
		record("t1")
		done <- struct{}{}
		return nil
	}, []task.Dependency{{Kind: task.DepOut, Segment: seg, Offset: off}})
	if err != nil {
		t.Fatalf("create t1: %v", err)
	}
	_ = t1

	for _, name := range []string{"t2", "t3"} {
		nm := name
		_, err := s.Create(func(*task.Task) error {
			record(nm)
			done <- struct{}{}
			return nil
		}, []task.Dependency{{Kind: task.DepIn, Segment: seg, Offset: off}})
		if err != nil {
			t.Fatalf("create %s: %v", nm, err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks to complete")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "t1" {
		t.Fatalf("expected t1 first, got order %v", order)
	}
}

func TestPhaseAdvanceIsMonotonic(t *testing.T) {
	cfg := task.LoadConfig()
	cfg.NumThreads = 1
	s := task.New(cfg, 8)
	if s.Phase() != 0 {
		t.Fatalf("expected initial phase 0, got %d", s.Phase())
	}
	if p := s.PhaseAdvance(); p != 1 {
		t.Fatalf("expected phase 1 after first advance, got %d", p)
	}
	if p := s.PhaseAdvance(); p != 2 {
		t.Fatalf("expected phase 2 after second advance, got %d", p)
	}
}
