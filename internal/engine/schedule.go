package engine

import (
	"container/heap"

	"github.com/AaronLay10/curaflow/internal/graph"
)

const cycleMessage = "Graph contains a cycle: workflows must be acyclic (DAG)"

// indexHeap is a min-heap of node declaration indexes.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// adjacency is the edge-induced structure over unique node ids. Edges with
// an unknown endpoint are ignored; a duplicate node id keeps its first
// declaration.
type adjacency struct {
	ids      []string       // unique ids in declaration order
	index    map[string]int // id -> position in ids
	children [][]int
	parents  [][]int
	indegree []int
}

func buildAdjacency(g *graph.Graph) *adjacency {
	a := &adjacency{index: make(map[string]int, len(g.Nodes))}
	for _, n := range g.Nodes {
		if _, dup := a.index[n.ID]; dup {
			continue
		}
		a.index[n.ID] = len(a.ids)
		a.ids = append(a.ids, n.ID)
	}
	a.children = make([][]int, len(a.ids))
	a.parents = make([][]int, len(a.ids))
	a.indegree = make([]int, len(a.ids))
	for _, e := range g.Edges {
		s, sok := a.index[e.Source]
		t, tok := a.index[e.Target]
		if !sok || !tok {
			continue
		}
		a.children[s] = append(a.children[s], t)
		a.parents[t] = append(a.parents[t], s)
		a.indegree[t]++
	}
	return a
}

// kahn returns the topological order as positions into a.ids, ready nodes
// always taken lowest declaration index first. ok is false on a cycle.
func (a *adjacency) kahn() (order []int, ok bool) {
	indegree := append([]int(nil), a.indegree...)
	ready := &indexHeap{}
	for i, d := range indegree {
		if d == 0 {
			*ready = append(*ready, i)
		}
	}
	heap.Init(ready)
	order = make([]int, 0, len(a.ids))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		for _, c := range a.children[i] {
			indegree[c]--
			if indegree[c] == 0 {
				heap.Push(ready, c)
			}
		}
	}
	return order, len(order) == len(a.ids)
}

// Schedule computes the deterministic execution order of g: Kahn's
// algorithm with ties broken by node declaration order. A cyclic graph
// returns a StructuralError matching ErrCycle.
func Schedule(g *graph.Graph) ([]string, error) {
	a := buildAdjacency(g)
	order, ok := a.kahn()
	if !ok {
		return nil, &StructuralError{Kind: KindCycle, Msg: cycleMessage}
	}
	ids := make([]string, len(order))
	for i, pos := range order {
		ids[i] = a.ids[pos]
	}
	return ids, nil
}
