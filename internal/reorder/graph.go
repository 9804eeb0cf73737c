package reorder

import (
	"cmp"
	"container/heap"
	"slices"

	"github.com/born-ml/sentisprep/internal/onnx"
)

// Edge is a dependency from the producing node to the consuming node,
// both identified by their index in the input order.
type Edge struct {
	From int
	To   int
}

// depGraph is the producer -> consumer relation over node indices.
type depGraph struct {
	succ      [][]int        // ascending, no duplicates
	producers map[string]int // output name -> first node producing it
}

// buildGraph scans nodes in input order. The first node to produce a name
// owns it; later producers of the same name are returned as duplicates and
// contribute no edges for that name. Empty names mark omitted optional
// inputs and never form edges.
func buildGraph(nodes []onnx.NodeProto) (*depGraph, []string) {
	g := &depGraph{
		succ:      make([][]int, len(nodes)),
		producers: make(map[string]int),
	}

	var duplicates []string
	for i := range nodes {
		for _, out := range nodes[i].Outputs {
			if out == "" {
				continue
			}
			if _, ok := g.producers[out]; ok {
				duplicates = append(duplicates, out)
				continue
			}
			g.producers[out] = i
		}
	}

	for i := range nodes {
		for _, in := range nodes[i].Inputs {
			p, ok := g.producers[in]
			if !ok || in == "" {
				continue
			}
			// Consumers are visited in ascending order, so a repeated
			// edge can only be the last one recorded.
			if s := g.succ[p]; len(s) > 0 && s[len(s)-1] == i {
				continue
			}
			g.succ[p] = append(g.succ[p], i)
		}
	}
	return g, duplicates
}

func (g *depGraph) edgeCount() int {
	n := 0
	for _, s := range g.succ {
		n += len(s)
	}
	return n
}

func (g *depGraph) removeEdge(e Edge) {
	s := g.succ[e.From]
	for k, to := range s {
		if to == e.To {
			g.succ[e.From] = append(s[:k:k], s[k+1:]...)
			return
		}
	}
}

// indexHeap is a min-heap of node indices.
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

// topoSort runs Kahn's algorithm, always emitting the ready node with the
// smallest original index. Nodes that never become ready sit on or behind a
// cycle; they are reported in blocked (ascending) and left out of order.
func (g *depGraph) topoSort() (order []int, blocked []int) {
	n := len(g.succ)
	inDegree := make([]int, n)
	for _, s := range g.succ {
		for _, to := range s {
			inDegree[to]++
		}
	}

	ready := &indexHeap{}
	for i := range n {
		if inDegree[i] == 0 {
			*ready = append(*ready, i)
		}
	}
	heap.Init(ready)

	order = make([]int, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, i)
		for _, to := range g.succ[i] {
			inDegree[to]--
			if inDegree[to] == 0 {
				heap.Push(ready, to)
			}
		}
	}

	for i := range n {
		if inDegree[i] > 0 {
			blocked = append(blocked, i)
		}
	}
	return order, blocked
}

// findCycle returns one simple cycle among the candidate nodes, or nil.
//
// The cycle starts at its smallest node index and follows successors in
// ascending index order, so the same relation always yields the same cycle.
// Only the strongly connected component holding the smallest cyclic node is
// searched, and each node in it is visited at most once.
func (g *depGraph) findCycle(candidates []int) []int {
	comps := g.cyclicComponents(candidates)
	if len(comps) == 0 {
		return nil
	}
	comp := comps[0]
	start := comp[0]

	member := make(map[int]bool, len(comp))
	for _, v := range comp {
		member[v] = true
	}
	visited := make(map[int]bool, len(comp))
	var path []int

	// Every member reaches start, so the first unvisited member explored
	// from a node on the path closes the cycle.
	var visit func(v int) bool
	visit = func(v int) bool {
		visited[v] = true
		path = append(path, v)
		for _, to := range g.succ[v] {
			if to == start {
				return true
			}
			if member[to] && !visited[to] && visit(to) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if visit(start) {
		return path
	}
	return nil
}

// cyclicComponents returns the strongly connected components of the subgraph
// induced by nodes that contain a cycle: more than one member, or a single
// member with an edge to itself. Members are ascending and components are
// ordered by their smallest member.
//
// Tarjan's algorithm, with an explicit call stack so long chains do not
// recurse.
func (g *depGraph) cyclicComponents(nodes []int) [][]int {
	n := len(g.succ)
	inScope := make([]bool, n)
	for _, v := range nodes {
		inScope[v] = true
	}

	type frame struct {
		v    int
		edge int // next successor to look at
	}

	index := make([]int, n) // discovery number + 1, 0 when unvisited
	low := make([]int, n)
	onStack := make([]bool, n)
	var stack []int
	var call []frame
	next := 1

	discover := func(v int) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true
		call = append(call, frame{v: v})
	}

	var comps [][]int
	for _, root := range nodes {
		if index[root] != 0 {
			continue
		}
		discover(root)

		for len(call) > 0 {
			top := len(call) - 1
			v := call[top].v
			if call[top].edge < len(g.succ[v]) {
				w := g.succ[v][call[top].edge]
				call[top].edge++
				switch {
				case !inScope[w]:
				case index[w] == 0:
					discover(w)
				case onStack[w]:
					low[v] = min(low[v], index[w])
				}
				continue
			}

			call = call[:top]
			if top > 0 {
				parent := call[top-1].v
				low[parent] = min(low[parent], low[v])
			}
			if low[v] != index[v] {
				continue
			}

			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			if len(comp) > 1 || slices.Contains(g.succ[v], v) {
				slices.Sort(comp)
				comps = append(comps, comp)
			}
		}
	}

	slices.SortFunc(comps, func(a, b []int) int { return cmp.Compare(a[0], b[0]) })
	return comps
}
