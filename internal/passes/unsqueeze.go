package passes

import (
	"encoding/binary"
	"log/slog"

	"github.com/born-ml/sentisprep/internal/config"
	"github.com/born-ml/sentisprep/internal/onnx"
)

// Unsqueeze rewrites opset < 13 style Unsqueeze nodes, which carry their axes
// as an attribute, into the opset 13 form that takes axes as a second input.
//
// Each rewritten node gets an INT64 initializer named _axes_<n>, with n the
// next number whose name is still free, and is renamed
// <name>_fixed. Replacements are appended after the remaining nodes; run the
// reorder pass afterwards to restore dependency order.
type Unsqueeze struct {
	MinOpset int64 // only models at or above this opset are rewritten
	Logger   *slog.Logger
}

// Name implements Pass.
func (p *Unsqueeze) Name() string { return config.StageUnsqueeze }

// Apply implements Pass.
func (p *Unsqueeze) Apply(model *onnx.ModelProto) (*Result, error) {
	res := &Result{Pass: p.Name()}
	if err := requireGraph(model); err != nil {
		return res, err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opset := model.OpsetVersion()
	if opset < p.MinOpset {
		res.notef("opset %d is below %d, Unsqueeze left as is", opset, p.MinOpset)
		return res, nil
	}

	graph := model.Graph
	used := tensorNames(graph)
	counter := 0

	kept := make([]onnx.NodeProto, 0, len(graph.Nodes))
	var fixed []onnx.NodeProto
	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		if node.OpType != "Unsqueeze" || len(node.Inputs) >= 2 {
			kept = append(kept, *node)
			continue
		}
		if len(node.Inputs) == 0 {
			res.notef("Unsqueeze node %q has no data input, skipped", node.Name)
			kept = append(kept, *node)
			continue
		}

		var axes []int64
		if attr, ok := node.Attr("axes"); ok && attr.Type == onnx.AttributeProtoInts {
			axes = attr.Ints
		}

		axesName := AllocateIndexedName(used, "_axes_", &counter)
		graph.Initializers = append(graph.Initializers, int64Tensor(axesName, axes))

		fixed = append(fixed, onnx.NodeProto{
			Name:    node.Name + "_fixed",
			OpType:  "Unsqueeze",
			Domain:  node.Domain,
			Inputs:  []string{node.Inputs[0], axesName},
			Outputs: node.Outputs,
		})
		logger.Debug("unsqueeze rewritten",
			slog.String("node", node.Name),
			slog.String("axes_input", axesName),
			slog.Any("axes", axes))
	}

	graph.Nodes = append(kept, fixed...)
	res.Changed = len(fixed)
	res.notef("rewrote %d Unsqueeze node(s)", len(fixed))
	return res, nil
}

// int64Tensor builds a 1-D INT64 initializer stored as raw little-endian data.
func int64Tensor(name string, values []int64) onnx.TensorProto {
	raw := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[8*i:], uint64(v)) //nolint:gosec // G115: two's complement bit pattern.
	}
	return onnx.TensorProto{
		Name:     name,
		DataType: onnx.TensorProtoInt64,
		Dims:     []int64{int64(len(values))},
		RawData:  raw,
	}
}
