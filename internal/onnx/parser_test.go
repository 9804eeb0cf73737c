package onnx

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// TestParseSimpleAdd tests parsing a simple Add operation.
func TestParseSimpleAdd(t *testing.T) {
	model, err := Parse(buildSimpleAddModel())
	require.NoError(t, err)

	assert.Equal(t, int64(7), model.IRVersion)
	require.NotNil(t, model.Graph)
	require.Len(t, model.Graph.Nodes, 1)

	node := model.Graph.Nodes[0]
	assert.Equal(t, "Add", node.OpType)
	assert.Equal(t, []string{"X", "Y"}, node.Inputs)
	assert.Equal(t, []string{"Z"}, node.Outputs)
	assert.Equal(t, "simple_add", model.Graph.Name)
}

// TestParseWithInitializer tests parsing a model with weight tensors.
func TestParseWithInitializer(t *testing.T) {
	model, err := Parse(buildMatMulModel())
	require.NoError(t, err)
	require.NotNil(t, model.Graph)
	require.Len(t, model.Graph.Initializers, 1)

	init := model.Graph.Initializers[0]
	assert.Equal(t, "W", init.Name)
	assert.Equal(t, int32(TensorProtoFloat), init.DataType)
	assert.Equal(t, []int64{4, 4}, init.Dims)
	assert.Len(t, init.RawData, 4*4*4)
}

// TestParseInputOutput tests parsing input/output specifications.
func TestParseInputOutput(t *testing.T) {
	model, err := Parse(buildSimpleAddModel())
	require.NoError(t, err)

	require.Len(t, model.Graph.Inputs, 2)
	require.Len(t, model.Graph.Outputs, 1)

	input := model.Graph.Inputs[0]
	assert.Equal(t, "X", input.Name)
	require.NotNil(t, input.Type)
	require.NotNil(t, input.Type.TensorType)
	assert.Equal(t, int32(TensorProtoFloat), input.Type.TensorType.ElemType)

	dims := input.Type.TensorType.Shape.Dims
	require.Len(t, dims, 2)
	assert.Equal(t, "batch", dims[0].DimParam)
	assert.False(t, dims[0].HasDimValue)
	assert.Equal(t, int64(784), dims[1].DimValue)
	assert.True(t, dims[1].HasDimValue)
}

// TestParseOpsetVersion tests parsing opset version.
func TestParseOpsetVersion(t *testing.T) {
	model, err := Parse(buildSimpleAddModel())
	require.NoError(t, err)

	require.Len(t, model.OpsetImport, 1)
	assert.Equal(t, int64(13), model.OpsetImport[0].Version)
	assert.Equal(t, int64(13), model.OpsetVersion())
}

// TestParseAttributes tests parsing node attributes in packed and unpacked form.
func TestParseAttributes(t *testing.T) {
	model, err := Parse(buildConvModel())
	require.NoError(t, err)
	require.Len(t, model.Graph.Nodes, 1)

	node := model.Graph.Nodes[0]
	assert.Equal(t, "Conv", node.OpType)

	kernelShape, ok := node.Attr("kernel_shape")
	require.True(t, ok, "kernel_shape attribute not found")
	assert.Equal(t, int32(AttributeProtoInts), kernelShape.Type)
	assert.Equal(t, []int64{3, 3}, kernelShape.Ints)

	pads, ok := node.Attr("pads")
	require.True(t, ok)
	assert.Equal(t, []int64{1, 1, 1, 1}, pads.Ints)

	alpha, ok := node.Attr("alpha")
	require.True(t, ok)
	assert.InDelta(t, 0.5, alpha.F, 1e-9)

	_, ok = node.Attr("missing")
	assert.False(t, ok)
}

// TestParseNegativeInts checks sign-extended varints.
func TestParseNegativeInts(t *testing.T) {
	attr := msg(nil).
		str(1, "axes").
		varint(20, AttributeProtoInts).
		packed(8, -1, -2)
	node := msg(nil).str(1, "x").str(2, "y").str(4, "Unsqueeze").sub(5, attr)
	data := msg(nil).varint(1, 7).sub(7, msg(nil).sub(1, node))

	model, err := Parse(data)
	require.NoError(t, err)
	axes, ok := model.Graph.Nodes[0].Attr("axes")
	require.True(t, ok)
	assert.Equal(t, []int64{-1, -2}, axes.Ints)
}

// TestParseFile tests parsing from file.
func TestParseFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "test.onnx")
	require.NoError(t, os.WriteFile(tmpFile, buildSimpleAddModel(), 0o600))

	model, err := ParseFile(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, model.Graph)
	assert.Len(t, model.Graph.Nodes, 1)
}

// TestParseInvalidFile tests error handling for non-existent file.
func TestParseInvalidFile(t *testing.T) {
	_, err := ParseFile("/nonexistent/file.onnx")
	assert.Error(t, err)
}

// TestParseEmptyData checks that an empty buffer is an empty model.
func TestParseEmptyData(t *testing.T) {
	model, err := Parse([]byte{})
	require.NoError(t, err)
	assert.Nil(t, model.Graph)
	assert.Equal(t, int64(0), model.OpsetVersion())
}

func TestParseTruncated(t *testing.T) {
	data := buildSimpleAddModel()
	_, err := Parse(data[:len(data)-3])
	assert.Error(t, err)
}

func TestParseWrongWireType(t *testing.T) {
	// producer_name (field 2) encoded as a varint.
	data := msg(nil).varint(2, 5)
	_, err := Parse(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, errWireType)
}

// TestRoundTripPreservesUnknownFields checks that fields the package does not
// model come back out byte for byte.
func TestRoundTripPreservesUnknownFields(t *testing.T) {
	node := msg(nil).
		str(1, "X").
		str(2, "Y").
		str(3, "relu0").
		str(4, "Relu").
		str(8, "overload") // NodeProto.overload
	graph := msg(nil).
		sub(1, node).
		str(2, "g").
		sub(11, buildValueInfo("X", TensorProtoFloat, []int64{-1, 4})).
		sub(12, buildValueInfo("Y", TensorProtoFloat, []int64{-1, 4})).
		sub(15, msg(nil).varint(1, 3)) // sparse_initializer
	data := msg(nil).
		varint(1, 8).
		str(2, "pytorch").
		sub(7, graph).
		sub(8, msg(nil).varint(2, 17)).
		sub(25, msg(nil).str(1, "fn")) // functions

	model, err := Parse(data)
	require.NoError(t, err)
	assert.NotEmpty(t, model.Unknown)
	assert.NotEmpty(t, model.Graph.Unknown)
	assert.NotEmpty(t, model.Graph.Nodes[0].Unknown)

	out, err := Marshal(model)
	require.NoError(t, err)
	assert.Equal(t, []byte(data), out)
}

func TestMarshalRoundTrip(t *testing.T) {
	model := &ModelProto{
		IRVersion:       7,
		OpsetImport:     []OperatorSetID{{Version: 13}, {Domain: "com.microsoft", Version: 1}},
		ProducerName:    "test",
		ProducerVersion: "1.0",
		Domain:          DefaultDomain,
		DocString:       "doc",
		MetadataProps:   []StringStringEntry{{Key: "labels", Value: `["wall","floor"]`}},
		Graph: &GraphProto{
			Name: "g",
			Nodes: []NodeProto{
				{
					Name:    "clip",
					OpType:  "Clip",
					Inputs:  []string{"X", "", "max"},
					Outputs: []string{"Y"},
					Attributes: []AttributeProto{
						{Name: "alpha", Type: AttributeProtoFloat, F: 0.25},
						{Name: "axes", Type: AttributeProtoInts, Ints: []int64{0, -1}},
						{Name: "mode", Type: AttributeProtoString, S: []byte("constant")},
						{
							Name: "value", Type: AttributeProtoTensor,
							T: &TensorProto{DataType: TensorProtoFloat, Dims: []int64{1}, FloatData: []float32{2}},
						},
					},
				},
			},
			Initializers: []TensorProto{
				{Name: "max", DataType: TensorProtoFloat, RawData: []byte{0, 0, 128, 63}},
				{Name: "idx", DataType: TensorProtoInt32, Dims: []int64{2}, Int32Data: []int32{-3, 4}},
			},
			Inputs: []ValueInfoProto{{
				Name: "X",
				Type: &TypeProto{TensorType: &TensorTypeProto{
					ElemType: TensorProtoFloat,
					Shape: &TensorShapeProto{Dims: []DimensionProto{
						{DimParam: "batch"},
						{DimValue: 0, HasDimValue: true},
					}},
				}},
			}},
			Outputs: []ValueInfoProto{{Name: "Y"}},
		},
	}

	data, err := Marshal(model)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, model, parsed)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.onnx")
	model, err := Parse(buildMatMulModel())
	require.NoError(t, err)

	require.NoError(t, WriteFile(path, model))

	reread, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, model.Graph.Nodes, reread.Graph.Nodes)
	assert.Equal(t, model.Graph.Initializers[0].RawData, reread.Graph.Initializers[0].RawData)
}

func TestMarshalNil(t *testing.T) {
	_, err := Marshal(nil)
	assert.ErrorIs(t, err, ErrNilModel)

	err = WriteFile(filepath.Join(t.TempDir(), "nil.onnx"), nil)
	assert.ErrorIs(t, err, ErrNilModel)
}

func TestRemoveAttrs(t *testing.T) {
	node := NodeProto{Attributes: []AttributeProto{
		{Name: "split", Ints: []int64{1, 2}},
		{Name: "axis", I: 1},
		{Name: "axes"},
	}}
	removed := node.RemoveAttrs(func(a *AttributeProto) bool { return a.Name != "axis" })
	assert.Equal(t, 2, removed)
	require.Len(t, node.Attributes, 1)
	assert.Equal(t, "axis", node.Attributes[0].Name)
}

// msg builds protobuf messages for tests.
type msg []byte

func (m msg) varint(num protowire.Number, v int64) msg {
	b := protowire.AppendTag(m, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func (m msg) str(num protowire.Number, s string) msg {
	b := protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func (m msg) raw(num protowire.Number, data []byte) msg {
	b := protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}

func (m msg) sub(num protowire.Number, body msg) msg {
	return m.raw(num, body)
}

func (m msg) float(num protowire.Number, f float32) msg {
	b := protowire.AppendTag(m, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(f))
}

func (m msg) packed(num protowire.Number, vals ...int64) msg {
	var p []byte
	for _, v := range vals {
		p = protowire.AppendVarint(p, uint64(v))
	}
	return m.raw(num, p)
}

// buildSimpleAddModel creates a minimal ONNX model with Add operation.
func buildSimpleAddModel() msg {
	return msg(nil).
		varint(1, 7).
		sub(7, buildSimpleAddGraph()).
		sub(8, msg(nil).varint(2, 13))
}

// buildSimpleAddGraph creates graph: Z = X + Y.
func buildSimpleAddGraph() msg {
	node := msg(nil).str(1, "X").str(1, "Y").str(2, "Z").str(4, "Add")
	return msg(nil).
		sub(1, node).
		str(2, "simple_add").
		sub(11, buildValueInfo("X", TensorProtoFloat, []int64{-1, 784})).
		sub(11, buildValueInfo("Y", TensorProtoFloat, []int64{-1, 784})).
		sub(12, buildValueInfo("Z", TensorProtoFloat, []int64{-1, 784}))
}

// buildMatMulModel creates graph: Y = MatMul(X, W) with a 4x4 weight initializer.
func buildMatMulModel() msg {
	node := msg(nil).str(1, "X").str(1, "W").str(2, "Y").str(4, "MatMul")
	graph := msg(nil).
		sub(1, node).
		str(2, "matmul_graph").
		sub(5, buildTensorProto("W", TensorProtoFloat, []int64{4, 4}, make([]byte, 64))).
		sub(11, buildValueInfo("X", TensorProtoFloat, []int64{-1, 4})).
		sub(12, buildValueInfo("Y", TensorProtoFloat, []int64{-1, 4}))
	return msg(nil).
		varint(1, 7).
		sub(7, graph).
		sub(8, msg(nil).varint(2, 13))
}

// buildConvModel creates a model with a Conv node carrying attributes.
func buildConvModel() msg {
	kernel := msg(nil).str(1, "kernel_shape").varint(20, AttributeProtoInts).packed(8, 3, 3)
	// pads written unpacked
	pads := msg(nil).str(1, "pads").varint(20, AttributeProtoInts).
		varint(8, 1).varint(8, 1).varint(8, 1).varint(8, 1)
	alpha := msg(nil).str(1, "alpha").float(2, 0.5).varint(20, AttributeProtoFloat)
	node := msg(nil).str(1, "X").str(1, "W").str(2, "Y").str(4, "Conv").
		sub(5, kernel).sub(5, pads).sub(5, alpha)
	return msg(nil).
		varint(1, 7).
		sub(7, msg(nil).sub(1, node).str(2, "conv_graph")).
		sub(8, msg(nil).varint(2, 13))
}

// buildValueInfo creates ValueInfoProto. Non-positive dims become a "batch" parameter.
func buildValueInfo(name string, dtype int32, shape []int64) msg {
	dims := msg(nil)
	for _, d := range shape {
		if d > 0 {
			dims = dims.sub(1, msg(nil).varint(1, d))
		} else {
			dims = dims.sub(1, msg(nil).str(2, "batch"))
		}
	}
	tensorType := msg(nil).varint(1, int64(dtype)).sub(2, dims)
	return msg(nil).str(1, name).sub(2, msg(nil).sub(1, tensorType))
}

// buildTensorProto creates TensorProto.
func buildTensorProto(name string, dtype int32, dims []int64, rawData []byte) msg {
	return msg(nil).
		packed(1, dims...).
		varint(2, int64(dtype)).
		str(8, name).
		raw(9, rawData)
}
