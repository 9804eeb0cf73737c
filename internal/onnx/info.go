package onnx

import (
	"strconv"
	"strings"
)

// TensorInfo describes a graph input or output.
type TensorInfo struct {
	Name     string
	ElemType string   // ONNX element type name, empty when the type is not declared
	Shape    []string // One entry per dimension: value, symbolic name, or "?"
	HasShape bool
}

// ShapeString renders the shape as "[1, 3, height, width]".
func (t TensorInfo) ShapeString() string {
	return "[" + strings.Join(t.Shape, ", ") + "]"
}

// ModelInfo contains basic information about an ONNX model.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	GraphName       string
	Opsets          []OperatorSetID
	Metadata        []StringStringEntry
	Labels          []ClassLabels // decoded label entries of Metadata
	Inputs          []TensorInfo // Graph inputs excluding initializers
	Outputs         []TensorInfo
	NodeCount       int
	WeightCount     int
}

// InputNames returns the names of the model inputs.
func (i *ModelInfo) InputNames() []string {
	names := make([]string, len(i.Inputs))
	for k := range i.Inputs {
		names[k] = i.Inputs[k].Name
	}
	return names
}

// OutputNames returns the names of the model outputs.
func (i *ModelInfo) OutputNames() []string {
	names := make([]string, len(i.Outputs))
	for k := range i.Outputs {
		names[k] = i.Outputs[k].Name
	}
	return names
}

// GetModelInfo extracts basic info from an ONNX file.
func GetModelInfo(path string) (*ModelInfo, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Info(proto), nil
}

// Info extracts basic info from a parsed model.
func Info(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		OpsetVersion:    proto.OpsetVersion(),
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
		Domain:          proto.Domain,
		ModelVersion:    proto.ModelVersion,
		DocString:       proto.DocString,
		Opsets:          proto.OpsetImport,
		Metadata:        proto.MetadataProps,
		Labels:          ParseLabels(proto.MetadataProps),
	}

	graph := proto.Graph
	if graph == nil {
		return info
	}

	info.GraphName = graph.Name
	info.NodeCount = len(graph.Nodes)
	info.WeightCount = len(graph.Initializers)

	// Inputs are graph inputs minus initializers
	initNames := make(map[string]bool, len(graph.Initializers))
	for i := range graph.Initializers {
		initNames[graph.Initializers[i].Name] = true
	}
	for i := range graph.Inputs {
		if !initNames[graph.Inputs[i].Name] {
			info.Inputs = append(info.Inputs, tensorInfo(&graph.Inputs[i]))
		}
	}
	for i := range graph.Outputs {
		info.Outputs = append(info.Outputs, tensorInfo(&graph.Outputs[i]))
	}

	return info
}

func tensorInfo(vi *ValueInfoProto) TensorInfo {
	ti := TensorInfo{Name: vi.Name}
	if vi.Type == nil || vi.Type.TensorType == nil {
		return ti
	}
	tt := vi.Type.TensorType
	ti.ElemType = DataTypeName(tt.ElemType)
	if tt.Shape == nil {
		return ti
	}
	ti.HasShape = true
	for _, dim := range tt.Shape.Dims {
		switch {
		case dim.HasDimValue || dim.DimValue != 0:
			ti.Shape = append(ti.Shape, strconv.FormatInt(dim.DimValue, 10))
		case dim.DimParam != "":
			ti.Shape = append(ti.Shape, dim.DimParam)
		default:
			ti.Shape = append(ti.Shape, "?")
		}
	}
	return ti
}
