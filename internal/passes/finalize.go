package passes

import (
	"log/slog"

	"github.com/born-ml/sentisprep/internal/config"
	"github.com/born-ml/sentisprep/internal/onnx"
)

// Finalize strips attributes Sentis rejects and rebuilds the model envelope
// with a single default-domain opset import.
//
// The rebuilt model keeps nodes, inputs, outputs and initializers only, so
// value_info, metadata_props and unmodeled model and graph fields are dropped.
type Finalize struct {
	Target config.Target
	Logger *slog.Logger
}

// Name implements Pass.
func (p *Finalize) Name() string { return config.StageFinalize }

// Apply implements Pass.
func (p *Finalize) Apply(model *onnx.ModelProto) (*Result, error) {
	res := &Result{Pass: p.Name()}
	if err := requireGraph(model); err != nil {
		return res, err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	graph := model.Graph
	splitFixed := 0
	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		if node.OpType != "Split" {
			continue
		}
		if node.RemoveAttrs(func(a *onnx.AttributeProto) bool { return a.Name == "split" }) > 0 {
			logger.Debug("removed split attribute", slog.String("node", node.Name))
			splitFixed++
		}
	}
	if splitFixed > 0 {
		res.notef("removed 'split' attribute from %d Split node(s)", splitFixed)
		res.Changed += splitFixed
	}

	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		removed := node.RemoveAttrs(func(a *onnx.AttributeProto) bool {
			return (a.Name == "axes" || a.Name == "splits") && len(a.Ints) == 0
		})
		if removed > 0 {
			res.notef("removed %d empty axes/splits attribute(s) from node %s", removed, node.Name)
			res.Changed += removed
		}
	}

	*model = onnx.ModelProto{
		IRVersion:       max(model.IRVersion, p.Target.MinIRVersion),
		OpsetImport:     []onnx.OperatorSetID{{Domain: "", Version: p.Target.OpsetVersion}},
		ProducerName:    p.Target.ProducerName,
		ProducerVersion: p.Target.ProducerVersion,
		Domain:          p.Target.Domain,
		DocString:       p.Target.DocString,
		Graph: &onnx.GraphProto{
			Name:         graph.Name,
			Nodes:        graph.Nodes,
			Inputs:       graph.Inputs,
			Outputs:      graph.Outputs,
			Initializers: graph.Initializers,
		},
	}
	res.notef("rebuilt model with opset %d", p.Target.OpsetVersion)
	return res, nil
}
