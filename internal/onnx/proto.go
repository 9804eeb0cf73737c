package onnx

// ONNX protobuf data structures (hand-written).
//
// Every message keeps the raw wire bytes of fields it does not model in
// Unknown, so a Parse/Marshal round trip passes them through untouched.

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64               // IR version (e.g., 7, 8, 9)
	OpsetImport     []OperatorSetID     // Opset version(s)
	ProducerName    string              // Framework name (e.g., "pytorch", "tf")
	ProducerVersion string              // Framework version
	Domain          string              // Model domain
	ModelVersion    int64               // Model version number
	DocString       string              // Model description
	Graph           *GraphProto         // Computation graph
	MetadataProps   []StringStringEntry // Key-value metadata
	Unknown         []byte              // Unmodeled fields (training_info, functions, ...)
}

// GraphProto represents the computation graph.
type GraphProto struct {
	Name         string           // Graph name
	Nodes        []NodeProto      // Operation nodes
	Inputs       []ValueInfoProto // Graph inputs
	Outputs      []ValueInfoProto // Graph outputs
	Initializers []TensorProto    // Weight tensors
	DocString    string           // Graph description
	ValueInfo    []ValueInfoProto // Intermediate tensor info
	Unknown      []byte
}

// NodeProto represents a single operation.
type NodeProto struct {
	Name       string           // Node name (optional)
	OpType     string           // Operation type (e.g., "Conv", "MatMul", "Relu")
	Inputs     []string         // Input tensor names
	Outputs    []string         // Output tensor names
	Attributes []AttributeProto // Operation attributes
	Domain     string           // Custom domain (empty for default)
	DocString  string           // Node description
	Unknown    []byte
}

// TensorProto represents a tensor (weights/initializers).
type TensorProto struct {
	Name      string    // Tensor name
	DataType  int32     // Element data type
	Dims      []int64   // Tensor shape
	RawData   []byte    // Raw binary data (most common)
	FloatData []float32 // Float32 data (legacy)
	Int32Data []int32   // Int32 data (legacy, also carries float16 bit patterns)
	Int64Data []int64   // Int64 data (legacy)
	DocString string    // Tensor description
	Unknown   []byte    // string_data, double_data, external_data, ...
}

// ValueInfoProto describes input/output tensor specifications.
type ValueInfoProto struct {
	Name      string     // Tensor name
	Type      *TypeProto // Tensor type information
	DocString string     // Description
	Unknown   []byte
}

// TypeProto describes tensor type.
type TypeProto struct {
	TensorType *TensorTypeProto // Tensor type (most common)
	Unknown    []byte           // sequence/map/optional types
}

// TensorTypeProto describes tensor shape and element type.
type TensorTypeProto struct {
	ElemType int32             // Element data type
	Shape    *TensorShapeProto // Tensor shape
	Unknown  []byte
}

// TensorShapeProto describes tensor dimensions.
type TensorShapeProto struct {
	Dims    []DimensionProto // Dimensions
	Unknown []byte
}

// DimensionProto describes a single dimension.
//
// dim_value and dim_param form a oneof; HasDimValue distinguishes an explicit
// zero from an unknown dimension.
type DimensionProto struct {
	DimValue    int64  // Static dimension value (e.g., 224 for image size)
	HasDimValue bool   // dim_value was present on the wire
	DimParam    string // Dynamic dimension name (e.g., "batch_size")
	Denotation  string
	Unknown     []byte
}

// AttributeProto represents node attributes.
type AttributeProto struct {
	Name      string        // Attribute name
	Type      int32         // Attribute type
	F         float32       // FLOAT value
	I         int64         // INT value
	S         []byte        // STRING value
	T         *TensorProto  // TENSOR value
	G         *GraphProto   // GRAPH value
	Floats    []float32     // FLOATS array
	Ints      []int64       // INTS array
	Strings   [][]byte      // STRINGS array
	Tensors   []TensorProto // TENSORS array
	Graphs    []GraphProto  // GRAPHS array
	DocString string        // Description
	RefAttr   string        // ref_attr_name (function bodies)
	Unknown   []byte
}

// OperatorSetID identifies opset version.
type OperatorSetID struct {
	Domain  string // Operator domain (empty for default)
	Version int64  // Opset version number
	Unknown []byte
}

// StringStringEntry represents key-value metadata.
type StringStringEntry struct {
	Key     string
	Value   string
	Unknown []byte
}

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined  = 0
	TensorProtoFloat      = 1  // float32
	TensorProtoUint8      = 2  // uint8
	TensorProtoInt8       = 3  // int8
	TensorProtoUint16     = 4  // uint16
	TensorProtoInt16      = 5  // int16
	TensorProtoInt32      = 6  // int32
	TensorProtoInt64      = 7  // int64
	TensorProtoString     = 8  // string
	TensorProtoBool       = 9  // bool
	TensorProtoFloat16    = 10 // float16
	TensorProtoDouble     = 11 // float64
	TensorProtoUint32     = 12 // uint32
	TensorProtoUint64     = 13 // uint64
	TensorProtoComplex64  = 14 // complex64
	TensorProtoComplex128 = 15 // complex128
	TensorProtoBfloat16   = 16 // bfloat16
)

// ONNX attribute types (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1  // FLOAT
	AttributeProtoInt       = 2  // INT
	AttributeProtoString    = 3  // STRING
	AttributeProtoTensor    = 4  // TENSOR
	AttributeProtoGraph     = 5  // GRAPH
	AttributeProtoFloats    = 6  // FLOATS
	AttributeProtoInts      = 7  // INTS
	AttributeProtoStrings   = 8  // STRINGS
	AttributeProtoTensors   = 9  // TENSORS
	AttributeProtoGraphs    = 10 // GRAPHS
)

// DefaultDomain is the alias some exporters use for the "" operator domain.
const DefaultDomain = "ai.onnx"

var dataTypeNames = map[int32]string{
	TensorProtoUndefined:  "UNDEFINED",
	TensorProtoFloat:      "FLOAT",
	TensorProtoUint8:      "UINT8",
	TensorProtoInt8:       "INT8",
	TensorProtoUint16:     "UINT16",
	TensorProtoInt16:      "INT16",
	TensorProtoInt32:      "INT32",
	TensorProtoInt64:      "INT64",
	TensorProtoString:     "STRING",
	TensorProtoBool:       "BOOL",
	TensorProtoFloat16:    "FLOAT16",
	TensorProtoDouble:     "DOUBLE",
	TensorProtoUint32:     "UINT32",
	TensorProtoUint64:     "UINT64",
	TensorProtoComplex64:  "COMPLEX64",
	TensorProtoComplex128: "COMPLEX128",
	TensorProtoBfloat16:   "BFLOAT16",
}

// DataTypeName returns the ONNX enum name of a tensor element type.
func DataTypeName(dt int32) string {
	if name, ok := dataTypeNames[dt]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsDefaultDomain reports whether an operator domain refers to the standard ONNX operator set.
func IsDefaultDomain(domain string) bool {
	return domain == "" || domain == DefaultDomain
}

// DefaultOpset returns the opset import for the default ONNX domain.
func (m *ModelProto) DefaultOpset() (*OperatorSetID, bool) {
	for i := range m.OpsetImport {
		if IsDefaultDomain(m.OpsetImport[i].Domain) {
			return &m.OpsetImport[i], true
		}
	}
	return nil, false
}

// OpsetVersion returns the default-domain opset version, or 0 when none is imported.
func (m *ModelProto) OpsetVersion() int64 {
	if opset, ok := m.DefaultOpset(); ok {
		return opset.Version
	}
	return 0
}

// Attr returns the attribute with the given name.
func (n *NodeProto) Attr(name string) (*AttributeProto, bool) {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i], true
		}
	}
	return nil, false
}

// RemoveAttrs drops every attribute for which drop returns true and reports how many were removed.
func (n *NodeProto) RemoveAttrs(drop func(*AttributeProto) bool) int {
	kept := n.Attributes[:0]
	removed := 0
	for i := range n.Attributes {
		if drop(&n.Attributes[i]) {
			removed++
			continue
		}
		kept = append(kept, n.Attributes[i])
	}
	n.Attributes = kept
	return removed
}
