// Package reorder puts the nodes of an ONNX graph into dependency order.
//
// A node depends on every node that produces one of its inputs. The reorderer
// emits producers before consumers, breaking dependency cycles left behind by
// earlier lossy edits when it has to. Node contents are never changed; only
// their position in the graph.
//
// The run goes through up to three stages:
//
//	ANALYZE   build producer -> consumer edges and check for cycles
//	SORT      Kahn's algorithm, ties broken by original index
//	REPAIR    cut the closing edge of each cycle, then SORT again
//	FALLBACK  producer-first depth-first traversal when REPAIR gives up
//
// Cycle repair is a best-effort heuristic. When a graph genuinely contains a
// cycle the resulting order satisfies the remaining edges only.
package reorder

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/sentisprep/internal/onnx"
)

var (
	// ErrMalformedGraph is returned when there is no graph to reorder.
	ErrMalformedGraph = errors.New("malformed graph")

	// ErrCycleUnresolvable means cycle repair hit its limit. The reorderer
	// switches to the fallback traversal instead of failing.
	ErrCycleUnresolvable = errors.New("cycle unresolvable")

	// ErrSortFailure means no valid permutation could be produced. The graph
	// is left in its original order.
	ErrSortFailure = errors.New("sort failure")
)

// DefaultMaxCycleRepairs bounds the number of edges cycle repair may remove.
const DefaultMaxCycleRepairs = 10000

// Strategy names the stage that produced the final order.
type Strategy string

// Strategies.
const (
	StrategySorted   Strategy = "topological"
	StrategyRepaired Strategy = "repaired"
	StrategyFallback Strategy = "fallback"
)

// Options configures a reorder run.
type Options struct {
	// MaxCycleRepairs is the number of cycle-closing edges that may be cut
	// before falling back to the depth-first traversal. Zero means
	// DefaultMaxCycleRepairs; a negative value disables repair.
	MaxCycleRepairs int

	// Logger receives progress messages. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default reorder options.
func DefaultOptions() Options {
	return Options{MaxCycleRepairs: DefaultMaxCycleRepairs}
}

// BrokenEdge is a dependency removed by cycle repair.
type BrokenEdge struct {
	Edge
	Producer string   // producing node name
	Consumer string   // consuming node name
	Cycle    []int    // node indices of the cycle that was broken
	Tensors  []string // tensor names carried by the edge
}

// Report describes what a reorder run did.
type Report struct {
	Nodes            int
	Edges            int
	Strategy         Strategy
	CyclesFound      int
	BrokenEdges      []BrokenEdge
	DuplicateOutputs []string // output names produced by more than one node
	UsedFallback     bool
	FallbackReason   error // ErrCycleUnresolvable when the fallback ran
	Moved            int   // nodes whose position changed
	Order            []int // new position -> original index
}

// Order computes a dependency-respecting permutation of nodes.
// The nodes themselves are not modified.
func Order(nodes []onnx.NodeProto, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRepairs := opts.MaxCycleRepairs
	if maxRepairs == 0 {
		maxRepairs = DefaultMaxCycleRepairs
	}

	// ANALYZE
	g, duplicates := buildGraph(nodes)
	report := &Report{
		Nodes:            len(nodes),
		Edges:            g.edgeCount(),
		Strategy:         StrategySorted,
		DuplicateOutputs: duplicates,
	}
	if len(duplicates) > 0 {
		logger.Warn("outputs produced by more than one node, first producer kept",
			slog.Int("count", len(duplicates)),
			slog.Any("names", duplicates))
	}

	// SORT, then REPAIR -> SORT until acyclic
	order, blocked := g.topoSort()
	for len(blocked) > 0 {
		if report.CyclesFound >= maxRepairs {
			report.FallbackReason = fmt.Errorf("%w: %d nodes still blocked after %d repairs",
				ErrCycleUnresolvable, len(blocked), report.CyclesFound)
			break
		}
		cycle := g.findCycle(blocked)
		if cycle == nil {
			report.FallbackReason = fmt.Errorf("%w: %d nodes blocked without a cycle",
				ErrCycleUnresolvable, len(blocked))
			break
		}

		cut := Edge{From: cycle[len(cycle)-1], To: cycle[0]}
		g.removeEdge(cut)
		report.CyclesFound++
		report.Strategy = StrategyRepaired
		report.BrokenEdges = append(report.BrokenEdges, BrokenEdge{
			Edge:     cut,
			Producer: nodes[cut.From].Name,
			Consumer: nodes[cut.To].Name,
			Cycle:    cycle,
			Tensors:  carriedTensors(nodes, g.producers, cut),
		})
		logger.Warn("dependency cycle broken",
			slog.Int("cycle_len", len(cycle)),
			slog.Int("from", cut.From),
			slog.Int("to", cut.To),
			slog.String("producer", nodes[cut.From].Name),
			slog.String("consumer", nodes[cut.To].Name))

		order, blocked = g.topoSort()
	}

	// FALLBACK
	if report.FallbackReason != nil {
		logger.Warn("topological sort infeasible, using depth-first fallback",
			slog.String("reason", report.FallbackReason.Error()))
		order = producerFirstOrder(nodes, g.producers)
		report.Strategy = StrategyFallback
		report.UsedFallback = true
	}

	if err := checkPermutation(order, len(nodes)); err != nil {
		return report, err
	}

	report.Order = order
	for pos, orig := range order {
		if pos != orig {
			report.Moved++
		}
	}
	return report, nil
}

// Apply reorders the nodes of graph in place. On error the graph is left
// untouched.
func Apply(graph *onnx.GraphProto, opts Options) (*Report, error) {
	if graph == nil {
		return nil, fmt.Errorf("%w: model has no graph", ErrMalformedGraph)
	}

	report, err := Order(graph.Nodes, opts)
	if err != nil {
		return report, err
	}
	if report.Moved == 0 {
		return report, nil
	}

	sorted := make([]onnx.NodeProto, len(graph.Nodes))
	for pos, orig := range report.Order {
		sorted[pos] = graph.Nodes[orig]
	}
	graph.Nodes = sorted
	return report, nil
}

// ApplyModel reorders the main graph of model in place.
func ApplyModel(model *onnx.ModelProto, opts Options) (*Report, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is nil", ErrMalformedGraph)
	}
	return Apply(model.Graph, opts)
}

// Violations returns every dependency whose producer does not come strictly
// before its consumer in the current node order.
func Violations(nodes []onnx.NodeProto) []Edge {
	g, _ := buildGraph(nodes)
	var bad []Edge
	for from, succ := range g.succ {
		for _, to := range succ {
			if from >= to {
				bad = append(bad, Edge{From: from, To: to})
			}
		}
	}
	return bad
}

func checkPermutation(order []int, n int) error {
	if len(order) != n {
		return fmt.Errorf("%w: ordered %d of %d nodes", ErrSortFailure, len(order), n)
	}
	seen := make([]bool, n)
	for _, i := range order {
		if i < 0 || i >= n || seen[i] {
			return fmt.Errorf("%w: node index %d repeated or out of range", ErrSortFailure, i)
		}
		seen[i] = true
	}
	return nil
}

func carriedTensors(nodes []onnx.NodeProto, producers map[string]int, e Edge) []string {
	var names []string
	for _, in := range nodes[e.To].Inputs {
		if p, ok := producers[in]; ok && p == e.From && in != "" {
			names = append(names, in)
		}
	}
	return names
}
