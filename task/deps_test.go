package task_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/task"
)

// TestInRespectsPhaseOrdering mirrors spec.md:63's match rule: an IN at
// phase p only edges onto the latest OUT/INOUT at a phase <= p. Here
// the OUT and the reader share one phase, so the reader must run only
// after that OUT has finished.
func TestInRespectsPhaseOrdering(t *testing.T) {
	cfg := task.LoadConfig()
	cfg.NumThreads = 4
	s := task.New(cfg, 32)
	s.Start(nil)
	defer s.Stop()

	const seg = gptr.SegmentID(9)
	const off = int64(64)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}
	done := make(chan struct{}, 2)

	// phase 0: an OUT the reader (also phase 0) must wait behind.
	_, err := s.Create(func(*task.Task) error {
		time.Sleep(5 * time.Millisecond)
		record("out0")
		done <- struct{}{}
		return nil
	}, []task.Dependency{{Kind: task.DepOut, Segment: seg, Offset: off}})
	if err != nil {
		t.Fatalf("create out0: %v", err)
	}

	readerPhase := s.Phase()
	_, err = s.Create(func(*task.Task) error {
		record("in0")
		done <- struct{}{}
		return nil
	}, []task.Dependency{{Kind: task.DepIn, Segment: seg, Offset: off}})
	if err != nil {
		t.Fatalf("create in0: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	got := append([]string(nil), order...)
	mu.Unlock()
	if len(got) != 2 || got[0] != "out0" {
		t.Fatalf("reader at phase %d must wait on same-or-earlier-phase writer, got order %v", readerPhase, got)
	}
}

// TestDirectDependencyWaitsOnPredecessor exercises DepDirect: a plain
// task-to-task edge with no global pointer at all.
func TestDirectDependencyWaitsOnPredecessor(t *testing.T) {
	cfg := task.LoadConfig()
	cfg.NumThreads = 4
	s := task.New(cfg, 8)
	s.Start(nil)
	defer s.Stop()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 2)

	pred, err := s.Create(func(*task.Task) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, "pred")
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("create pred: %v", err)
	}

	_, err = s.Create(func(*task.Task) error {
		mu.Lock()
		order = append(order, "succ")
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, []task.Dependency{{Kind: task.DepDirect, Pred: pred}})
	if err != nil {
		t.Fatalf("create succ: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "pred" {
		t.Fatalf("expected pred before succ, got %v", order)
	}
}

// TestMaxActivePhasesThrottlesCreate exercises the MAX_ACTIVE_PHASES
// producer throttle (spec.md:130): Create for a task many phases ahead
// of an unfinished task must block until the older phase's task
// completes and frees a slot in the window.
func TestMaxActivePhasesThrottlesCreate(t *testing.T) {
	cfg := task.LoadConfig()
	cfg.NumThreads = 4
	cfg.MaxActivePhases = 2
	s := task.New(cfg, 32)
	s.Start(nil)
	defer s.Stop()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})
	_, err := s.Create(func(*task.Task) error {
		close(blockerStarted)
		<-release
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("create blocker: %v", err)
	}
	<-blockerStarted

	s.PhaseAdvance() // phase 1
	s.PhaseAdvance() // phase 2: now 2 ahead of the still-running phase-0 task

	createReturned := make(chan struct{})
	go func() {
		if _, err := s.Create(func(*task.Task) error { return nil }, nil); err != nil {
			t.Errorf("create at phase 2: %v", err)
		}
		close(createReturned)
	}()

	select {
	case <-createReturned:
		t.Fatal("Create at phase 2 should block while the phase-0 task is still active with MaxActivePhases=2")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-createReturned:
	case <-time.After(2 * time.Second):
		t.Fatal("Create should unblock once the older phase's task completes")
	}
}
