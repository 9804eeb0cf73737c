package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNilModel is returned when asked to encode a nil model.
var ErrNilModel = errors.New("model is nil")

// WriteFile encodes the model and writes it to path.
func WriteFile(path string, model *ModelProto) error {
	data, err := Marshal(model)
	if err != nil {
		return err
	}
	//nolint:gosec // G306: model files are meant to be readable by other tools
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Marshal encodes the model in protobuf wire format.
//
// Known fields are written in field-number order with proto3 defaults
// omitted, followed by the preserved unknown fields of each message.
func Marshal(model *ModelProto) ([]byte, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	return appendModelProto(nil, model), nil
}

// writer helpers. Each appendXxx appends the encoded message body without a length prefix.

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendRepeatedString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v)) //nolint:gosec // G115: two's complement on the wire.
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendPackedInts(b []byte, num protowire.Number, vals []int64) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // G115: two's complement on the wire.
	}
	return appendMessage(b, num, packed)
}

func appendPackedFloats(b []byte, num protowire.Number, vals []float32) []byte {
	if len(vals) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	return appendMessage(b, num, packed)
}

func appendModelProto(b []byte, m *ModelProto) []byte {
	b = appendInt(b, 1, m.IRVersion)
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	b = appendInt(b, 5, m.ModelVersion)
	b = appendString(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessage(b, 7, appendGraphProto(nil, m.Graph))
	}
	for i := range m.OpsetImport {
		b = appendMessage(b, 8, appendOperatorSetID(nil, &m.OpsetImport[i]))
	}
	for i := range m.MetadataProps {
		b = appendMessage(b, 14, appendStringStringEntry(nil, &m.MetadataProps[i]))
	}
	return append(b, m.Unknown...)
}

func appendGraphProto(b []byte, m *GraphProto) []byte {
	for i := range m.Nodes {
		b = appendMessage(b, 1, appendNodeProto(nil, &m.Nodes[i]))
	}
	b = appendString(b, 2, m.Name)
	for i := range m.Initializers {
		b = appendMessage(b, 5, appendTensorProto(nil, &m.Initializers[i]))
	}
	b = appendString(b, 10, m.DocString)
	for i := range m.Inputs {
		b = appendMessage(b, 11, appendValueInfoProto(nil, &m.Inputs[i]))
	}
	for i := range m.Outputs {
		b = appendMessage(b, 12, appendValueInfoProto(nil, &m.Outputs[i]))
	}
	for i := range m.ValueInfo {
		b = appendMessage(b, 13, appendValueInfoProto(nil, &m.ValueInfo[i]))
	}
	return append(b, m.Unknown...)
}

func appendNodeProto(b []byte, m *NodeProto) []byte {
	// Empty input names are positional placeholders and must be kept.
	for _, in := range m.Inputs {
		b = appendRepeatedString(b, 1, in)
	}
	for _, out := range m.Outputs {
		b = appendRepeatedString(b, 2, out)
	}
	b = appendString(b, 3, m.Name)
	b = appendString(b, 4, m.OpType)
	for i := range m.Attributes {
		b = appendMessage(b, 5, appendAttributeProto(nil, &m.Attributes[i]))
	}
	b = appendString(b, 6, m.DocString)
	b = appendString(b, 7, m.Domain)
	return append(b, m.Unknown...)
}

func appendTensorProto(b []byte, m *TensorProto) []byte {
	b = appendPackedInts(b, 1, m.Dims)
	b = appendInt(b, 2, int64(m.DataType))
	b = appendPackedFloats(b, 4, m.FloatData)
	if len(m.Int32Data) > 0 {
		vals := make([]int64, len(m.Int32Data))
		for i, v := range m.Int32Data {
			vals[i] = int64(v)
		}
		b = appendPackedInts(b, 5, vals)
	}
	b = appendPackedInts(b, 7, m.Int64Data)
	b = appendString(b, 8, m.Name)
	if len(m.RawData) > 0 {
		b = appendMessage(b, 9, m.RawData)
	}
	b = appendString(b, 12, m.DocString)
	return append(b, m.Unknown...)
}

func appendValueInfoProto(b []byte, m *ValueInfoProto) []byte {
	b = appendString(b, 1, m.Name)
	if m.Type != nil {
		b = appendMessage(b, 2, appendTypeProto(nil, m.Type))
	}
	b = appendString(b, 3, m.DocString)
	return append(b, m.Unknown...)
}

func appendTypeProto(b []byte, m *TypeProto) []byte {
	if m.TensorType != nil {
		b = appendMessage(b, 1, appendTensorTypeProto(nil, m.TensorType))
	}
	return append(b, m.Unknown...)
}

func appendTensorTypeProto(b []byte, m *TensorTypeProto) []byte {
	b = appendInt(b, 1, int64(m.ElemType))
	if m.Shape != nil {
		b = appendMessage(b, 2, appendTensorShapeProto(nil, m.Shape))
	}
	return append(b, m.Unknown...)
}

func appendTensorShapeProto(b []byte, m *TensorShapeProto) []byte {
	for i := range m.Dims {
		b = appendMessage(b, 1, appendDimensionProto(nil, &m.Dims[i]))
	}
	return append(b, m.Unknown...)
}

func appendDimensionProto(b []byte, m *DimensionProto) []byte {
	switch {
	case m.HasDimValue || m.DimValue != 0:
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.DimValue)) //nolint:gosec // G115: two's complement on the wire.
	case m.DimParam != "":
		b = appendRepeatedString(b, 2, m.DimParam)
	}
	b = appendString(b, 3, m.Denotation)
	return append(b, m.Unknown...)
}

func appendAttributeProto(b []byte, m *AttributeProto) []byte {
	b = appendString(b, 1, m.Name)
	if m.F != 0 {
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(m.F))
	}
	b = appendInt(b, 3, m.I)
	if len(m.S) > 0 {
		b = appendMessage(b, 4, m.S)
	}
	if m.T != nil {
		b = appendMessage(b, 5, appendTensorProto(nil, m.T))
	}
	if m.G != nil {
		b = appendMessage(b, 6, appendGraphProto(nil, m.G))
	}
	b = appendPackedFloats(b, 7, m.Floats)
	b = appendPackedInts(b, 8, m.Ints)
	for _, s := range m.Strings {
		b = appendMessage(b, 9, s)
	}
	for i := range m.Tensors {
		b = appendMessage(b, 10, appendTensorProto(nil, &m.Tensors[i]))
	}
	for i := range m.Graphs {
		b = appendMessage(b, 11, appendGraphProto(nil, &m.Graphs[i]))
	}
	b = appendString(b, 13, m.DocString)
	b = appendInt(b, 20, int64(m.Type))
	b = appendString(b, 21, m.RefAttr)
	return append(b, m.Unknown...)
}

func appendOperatorSetID(b []byte, m *OperatorSetID) []byte {
	b = appendString(b, 1, m.Domain)
	b = appendInt(b, 2, m.Version)
	return append(b, m.Unknown...)
}

func appendStringStringEntry(b []byte, m *StringStringEntry) []byte {
	b = appendString(b, 1, m.Key)
	b = appendString(b, 2, m.Value)
	return append(b, m.Unknown...)
}
