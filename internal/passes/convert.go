package passes

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/x448/float16"

	"github.com/born-ml/sentisprep/internal/config"
	"github.com/born-ml/sentisprep/internal/onnx"
)

// Convert rewrites model metadata and data types into the form Sentis expects:
// producer fields, minimum IR and opset versions, float32 weights and unique
// node names.
type Convert struct {
	Target config.Target
	Logger *slog.Logger
}

// Name implements Pass.
func (p *Convert) Name() string { return config.StageConvert }

// Apply implements Pass.
//
//nolint:funlen // sequential metadata fixes
func (p *Convert) Apply(model *onnx.ModelProto) (*Result, error) {
	res := &Result{Pass: p.Name()}
	if err := requireGraph(model); err != nil {
		return res, err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	model.ProducerName = p.Target.ProducerName
	model.ProducerVersion = p.Target.ProducerVersion
	model.Domain = p.Target.Domain

	if model.IRVersion < p.Target.MinIRVersion {
		res.notef("raised IR version from %d to %d", model.IRVersion, p.Target.MinIRVersion)
		model.IRVersion = p.Target.MinIRVersion
		res.Changed++
	}

	found := false
	for i := range model.OpsetImport {
		opset := &model.OpsetImport[i]
		if !onnx.IsDefaultDomain(opset.Domain) {
			continue
		}
		found = true
		if opset.Version < p.Target.OpsetVersion {
			res.notef("raised opset from %d to %d", opset.Version, p.Target.OpsetVersion)
			opset.Version = p.Target.OpsetVersion
			res.Changed++
		}
	}
	if !found {
		res.notef("added opset import %s %d", onnx.DefaultDomain, p.Target.OpsetVersion)
		model.OpsetImport = append(model.OpsetImport, onnx.OperatorSetID{
			Domain:  onnx.DefaultDomain,
			Version: p.Target.OpsetVersion,
		})
		res.Changed++
	}

	graph := model.Graph
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		if init.DataType != onnx.TensorProtoFloat16 {
			continue
		}
		if err := Float16ToFloat32(init); err != nil {
			return res, fmt.Errorf("initializer %s: %w", init.Name, err)
		}
		logger.Debug("initializer converted to float32", slog.String("name", init.Name))
		res.notef("converted initializer %s from float16 to float32", init.Name)
		res.Changed++
	}

	renamed := uniqueNodeNames(graph.Nodes)
	if renamed > 0 {
		res.notef("renamed %d node(s) to make names unique", renamed)
		res.Changed += renamed
	}

	if len(graph.Inputs) == 0 {
		logger.Warn("graph has no inputs")
		res.notef("warning: graph has no inputs")
	}
	if len(graph.Outputs) == 0 {
		logger.Warn("graph has no outputs")
		res.notef("warning: graph has no outputs")
	}

	model.DocString = p.Target.DocString
	return res, nil
}

// uniqueNodeNames gives every node a distinct name. Unnamed nodes become
// node_<k> where k is the number of names allocated so far. Returns the number
// of nodes renamed. Tensor names are left alone.
func uniqueNodeNames(nodes []onnx.NodeProto) int {
	used := make(map[string]struct{}, len(nodes))
	renamed := 0
	for i := range nodes {
		base := nodes[i].Name
		if base == "" {
			base = fmt.Sprintf("node_%d", len(used))
		}
		name := AllocateName(used, base)
		if name != nodes[i].Name {
			nodes[i].Name = name
			renamed++
		}
	}
	return renamed
}

// Float16ToFloat32 converts a FLOAT16 tensor to FLOAT in place. Data stored in
// raw_data or as bit patterns in int32_data is supported.
func Float16ToFloat32(t *onnx.TensorProto) error {
	if t.DataType != onnx.TensorProtoFloat16 {
		return fmt.Errorf("tensor is %s, not FLOAT16", onnx.DataTypeName(t.DataType))
	}

	var halves []uint16
	switch {
	case len(t.RawData) > 0:
		if len(t.RawData)%2 != 0 {
			return fmt.Errorf("raw data length %d is not a multiple of 2", len(t.RawData))
		}
		halves = make([]uint16, len(t.RawData)/2)
		for i := range halves {
			halves[i] = binary.LittleEndian.Uint16(t.RawData[2*i:])
		}
	case len(t.Int32Data) > 0:
		halves = make([]uint16, len(t.Int32Data))
		for i, v := range t.Int32Data {
			halves[i] = uint16(v) //nolint:gosec // G115: float16 bits live in the low 16 bits.
		}
	}

	raw := make([]byte, 4*len(halves))
	for i, h := range halves {
		f := float16.Frombits(h).Float32()
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(f))
	}

	t.DataType = onnx.TensorProtoFloat
	t.RawData = raw
	t.Int32Data = nil
	return nil
}
