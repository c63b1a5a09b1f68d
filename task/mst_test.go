package task_test

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dash-project/dartrt/core/gptr"
	"github.com/dash-project/dartrt/task"
)

type mstEdge struct {
	u, v   int
	weight int
	isMin  bool
}

// fixedGraph is the 20-node weighted multigraph fixture of spec section 8
// seed test 5: a weight-3 root edge plus eighteen weight-2 path edges form
// the graph's unique minimum spanning tree, and a handful of strictly heavier edges
// each close a cycle against it.
func fixedGraph() []mstEdge {
	edges := make([]mstEdge, 0, 25)
	for i := 0; i < 19; i++ {
		w := 2
		if i == 0 {
			w = 3
		}
		edges = append(edges, mstEdge{u: i, v: i + 1, weight: w})
	}
	decoys := []mstEdge{
		{u: 0, v: 1, weight: 10},
		{u: 0, v: 5, weight: 50},
		{u: 3, v: 10, weight: 80},
		{u: 2, v: 19, weight: 100},
		{u: 7, v: 15, weight: 42},
		{u: 11, v: 18, weight: 60},
	}
	return append(edges, decoys...)
}

// TestMinimumSpanningTree mirrors spec section 8 seed test 5: the graph is
// sorted by a first task and Kruskal's union-find walk runs in a second,
// dependent on the first's output exactly as T1/T2 are chained in the
// scheduler's other dependency tests; the sum of the edges the walk marks
// is_min must equal 39.
func TestMinimumSpanningTree(t *testing.T) {
	cfg := task.LoadConfig()
	cfg.NumThreads = 4
	s := task.New(cfg, 16)
	s.Start(nil)
	defer s.Stop()

	const seg = gptr.SegmentID(7)
	const off = int64(0)

	edges := fixedGraph()

	var mu sync.Mutex
	var sorted []mstEdge
	sortDone := make(chan struct{})
	mstDone := make(chan struct{})

	_, err := s.Create(func(*task.Task) error {
		cp := append([]mstEdge(nil), edges...)
		sort.Slice(cp, func(i, j int) bool { return cp[i].weight < cp[j].weight })
		mu.Lock()
		sorted = cp
		mu.Unlock()
		close(sortDone)
		return nil
	}, []task.Dependency{{Kind: task.DepOut, Segment: seg, Offset: off}})
	if err != nil {
		t.Fatalf("create sort task: %v", err)
	}

	var total int
	_, err = s.Create(func(*task.Task) error {
		<-sortDone
		mu.Lock()
		cp := sorted
		mu.Unlock()

		const numNodes = 20
		parent := make([]int, numNodes)
		for i := range parent {
			parent[i] = i
		}
		var find func(int) int
		find = func(x int) int {
			for parent[x] != x {
				parent[x] = parent[parent[x]]
				x = parent[x]
			}
			return x
		}

		sum := 0
		for i := range cp {
			ru, rv := find(cp[i].u), find(cp[i].v)
			if ru == rv {
				continue
			}
			parent[ru] = rv
			cp[i].isMin = true
			sum += cp[i].weight
		}
		mu.Lock()
		total = sum
		mu.Unlock()
		close(mstDone)
		return nil
	}, []task.Dependency{{Kind: task.DepIn, Segment: seg, Offset: off}})
	if err != nil {
		t.Fatalf("create mst task: %v", err)
	}

	select {
	case <-mstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("mst task did not complete")
	}

	if total != 39 {
		t.Fatalf("sum of is_min edges = %d, want 39", total)
	}
}
