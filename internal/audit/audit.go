// Package audit checks which operators of an ONNX model the target runtime
// supports and compares operator usage between two models.
package audit

import (
	"math"
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/sentisprep/internal/onnx"
)

// OpCount is the number of nodes using one operator type.
type OpCount struct {
	Op        string
	Count     int
	Supported bool
}

// Report is the result of auditing a model.
type Report struct {
	Total       int
	Ops         *orderedmap.OrderedMap[string, int] // op -> count, first-seen order
	Unsupported *orderedmap.OrderedMap[string, int] // op -> count, first-seen order
}

// Audit counts operator usage in the main graph of model and marks the
// operators registry does not support. Nodes outside the default domain are
// keyed as "<domain>:<op>" and only pass when registered under that key.
func Audit(model *onnx.ModelProto, registry *Registry) *Report {
	if registry == nil {
		registry = NewRegistry()
	}
	report := &Report{
		Ops:         orderedmap.New[string, int](),
		Unsupported: orderedmap.New[string, int](),
	}
	if model == nil || model.Graph == nil {
		return report
	}

	for i := range model.Graph.Nodes {
		op := opKey(&model.Graph.Nodes[i])
		report.Total++
		n, _ := report.Ops.Get(op)
		report.Ops.Set(op, n+1)
		if !registry.Supports(op) {
			n, _ := report.Unsupported.Get(op)
			report.Unsupported.Set(op, n+1)
		}
	}
	return report
}

func opKey(node *onnx.NodeProto) string {
	if onnx.IsDefaultDomain(node.Domain) {
		return node.OpType
	}
	return node.Domain + ":" + node.OpType
}

// Compatible reports whether every operator in the model is supported.
func (r *Report) Compatible() bool {
	return r.Unsupported.Len() == 0
}

// UnsupportedNodes returns the number of nodes with an unsupported operator.
func (r *Report) UnsupportedNodes() int {
	total := 0
	for pair := r.Unsupported.Oldest(); pair != nil; pair = pair.Next() {
		total += pair.Value
	}
	return total
}

// UnsupportedPercent returns the share of unsupported nodes, rounded to two
// decimals. An empty model yields 0.
func (r *Report) UnsupportedPercent() float64 {
	if r.Total == 0 {
		return 0
	}
	pct := float64(r.UnsupportedNodes()) / float64(r.Total) * 100
	return math.Round(pct*100) / 100
}

// Counts returns per-operator counts sorted by operator name.
func (r *Report) Counts() []OpCount {
	counts := make([]OpCount, 0, r.Ops.Len())
	for pair := r.Ops.Oldest(); pair != nil; pair = pair.Next() {
		_, unsupported := r.Unsupported.Get(pair.Key)
		counts = append(counts, OpCount{Op: pair.Key, Count: pair.Value, Supported: !unsupported})
	}
	slices.SortFunc(counts, func(a, b OpCount) int { return strings.Compare(a.Op, b.Op) })
	return counts
}

// Change is a difference in operator usage between two models.
type Change struct {
	Op     string
	Before int
	After  int
}

// Delta returns After - Before.
func (c Change) Delta() int {
	return c.After - c.Before
}

// Diff returns the operators whose node count differs between before and
// after, sorted by operator name.
func Diff(before, after *onnx.ModelProto) []Change {
	registry := NewEmptyRegistry()
	a := Audit(before, registry)
	b := Audit(after, registry)

	var changes []Change
	for pair := a.Ops.Oldest(); pair != nil; pair = pair.Next() {
		n, _ := b.Ops.Get(pair.Key)
		if n != pair.Value {
			changes = append(changes, Change{Op: pair.Key, Before: pair.Value, After: n})
		}
	}
	for pair := b.Ops.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := a.Ops.Get(pair.Key); !ok {
			changes = append(changes, Change{Op: pair.Key, After: pair.Value})
		}
	}
	slices.SortFunc(changes, func(x, y Change) int { return strings.Compare(x.Op, y.Op) })
	return changes
}
