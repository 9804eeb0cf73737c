// Package checker validates the structure of an ONNX model: versioning,
// node well-formedness and topological order of the main graph.
package checker

import (
	"fmt"
	"strings"

	"github.com/born-ml/sentisprep/internal/onnx"
)

// Kind classifies a validation issue.
type Kind string

// Issue kinds.
const (
	KindNoGraph           Kind = "no_graph"
	KindIRVersion         Kind = "ir_version"
	KindNoOpset           Kind = "no_opset"
	KindEmptyOpType       Kind = "empty_op_type"
	KindDuplicateOutput   Kind = "duplicate_output"
	KindUndefinedInput    Kind = "undefined_input"
	KindUnproducedOutput  Kind = "unproduced_output"
	KindDuplicateInitName Kind = "duplicate_initializer"
)

// Issue is one problem found in a model.
type Issue struct {
	Kind    Kind
	Node    int    // node index, -1 when not tied to a node
	Name    string // node or tensor name involved
	Message string
}

func (i Issue) String() string {
	if i.Node >= 0 {
		return fmt.Sprintf("node %d (%s): %s", i.Node, i.Name, i.Message)
	}
	return i.Message
}

// ValidationError collects every issue found by Check.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid model: " + e.Issues[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid model: %d issues", len(e.Issues))
	for _, issue := range e.Issues {
		b.WriteString("\n  ")
		b.WriteString(issue.String())
	}
	return b.String()
}

// Count returns the number of issues of the given kind.
func (e *ValidationError) Count(kind Kind) int {
	n := 0
	for _, issue := range e.Issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}

// Check validates model and returns a *ValidationError listing every issue,
// or nil when the model is well formed.
func Check(model *onnx.ModelProto) error {
	c := &checker{}
	c.run(model)
	if len(c.issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: c.issues}
}

type checker struct {
	issues []Issue
}

func (c *checker) add(kind Kind, node int, name, format string, args ...any) {
	c.issues = append(c.issues, Issue{Kind: kind, Node: node, Name: name, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) run(model *onnx.ModelProto) {
	if model == nil || model.Graph == nil {
		c.add(KindNoGraph, -1, "", "model has no graph")
		return
	}
	if model.IRVersion <= 0 {
		c.add(KindIRVersion, -1, "", "ir_version %d is not positive", model.IRVersion)
	}
	if _, ok := model.DefaultOpset(); !ok {
		c.add(KindNoOpset, -1, "", "no opset import for the default domain")
	}

	graph := model.Graph
	defined := make(map[string]struct{})
	for i := range graph.Inputs {
		defined[graph.Inputs[i].Name] = struct{}{}
	}

	initializers := make(map[string]struct{}, len(graph.Initializers))
	for i := range graph.Initializers {
		name := graph.Initializers[i].Name
		if _, dup := initializers[name]; dup {
			c.add(KindDuplicateInitName, -1, name, "initializer %q defined more than once", name)
		}
		initializers[name] = struct{}{}
		defined[name] = struct{}{}
	}

	produced := make(map[string]int)
	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		if node.OpType == "" {
			c.add(KindEmptyOpType, i, node.Name, "empty op_type")
		}
		for _, in := range node.Inputs {
			if in == "" {
				continue
			}
			if _, ok := defined[in]; !ok {
				c.add(KindUndefinedInput, i, node.Name,
					"input %q is not a graph input, initializer or output of an earlier node", in)
			}
		}
		for _, out := range node.Outputs {
			if out == "" {
				continue
			}
			if first, dup := produced[out]; dup {
				c.add(KindDuplicateOutput, i, node.Name, "output %q already produced by node %d", out, first)
				continue
			}
			produced[out] = i
			defined[out] = struct{}{}
		}
	}

	for i := range graph.Outputs {
		name := graph.Outputs[i].Name
		if _, ok := defined[name]; !ok {
			c.add(KindUnproducedOutput, -1, name, "graph output %q is never produced", name)
		}
	}
}
