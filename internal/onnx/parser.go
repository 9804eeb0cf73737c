package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	model, err := readModelProto(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// parser walks the fields of a single protobuf message.
type parser struct {
	data []byte
	pos  int
}

// fieldFunc decodes one field. It returns false for fields it does not model.
type fieldFunc func(num protowire.Number, typ protowire.Type) (bool, error)

// readFields decodes every field of the message with fn and returns the raw
// bytes of the fields fn declined.
func (p *parser) readFields(fn fieldFunc) ([]byte, error) {
	var unknown []byte
	for p.pos < len(p.data) {
		start := p.pos
		num, typ, n := protowire.ConsumeTag(p.data[p.pos:])
		if n < 0 {
			return nil, fmt.Errorf("offset %d: %w", start, protowire.ParseError(n))
		}
		p.pos += n

		handled, err := fn(num, typ)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", num, err)
		}
		if handled {
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, p.data[p.pos:])
		if n < 0 {
			return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		p.pos += n
		unknown = append(unknown, p.data[start:p.pos]...)
	}
	return unknown, nil
}

var errWireType = errors.New("unexpected wire type")

func expectType(got, want protowire.Type) error {
	if got != want {
		return fmt.Errorf("%w: got %d, want %d", errWireType, got, want)
	}
	return nil
}

// readVarint reads a varint-encoded value.
func (p *parser) readVarint(typ protowire.Type) (uint64, error) {
	if err := expectType(typ, protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(p.data[p.pos:])
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	p.pos += n
	return v, nil
}

func (p *parser) readInt64(typ protowire.Type) (int64, error) {
	v, err := p.readVarint(typ)
	return int64(v), err //nolint:gosec // G115: two's complement int64 on the wire.
}

func (p *parser) readInt32(typ protowire.Type) (int32, error) {
	v, err := p.readVarint(typ)
	return int32(v), err //nolint:gosec // G115: protobuf int32 is sign-extended to 64 bits.
}

// readBytes reads a length-delimited byte slice.
func (p *parser) readBytes(typ protowire.Type) ([]byte, error) {
	if err := expectType(typ, protowire.BytesType); err != nil {
		return nil, err
	}
	v, n := protowire.ConsumeBytes(p.data[p.pos:])
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	p.pos += n
	return v, nil
}

func (p *parser) readString(typ protowire.Type) (string, error) {
	b, err := p.readBytes(typ)
	return string(b), err
}

// readFloat32 reads a 32-bit float.
func (p *parser) readFloat32(typ protowire.Type) (float32, error) {
	if err := expectType(typ, protowire.Fixed32Type); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeFixed32(p.data[p.pos:])
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	p.pos += n
	return math.Float32frombits(v), nil
}

// readVarints reads a repeated varint field in either packed or unpacked form.
func (p *parser) readVarints(typ protowire.Type, dst []int64) ([]int64, error) {
	if typ != protowire.BytesType {
		v, err := p.readInt64(typ)
		if err != nil {
			return dst, err
		}
		return append(dst, v), nil
	}
	packed, err := p.readBytes(typ)
	if err != nil {
		return dst, err
	}
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return dst, protowire.ParseError(n)
		}
		packed = packed[n:]
		dst = append(dst, int64(v)) //nolint:gosec // G115: two's complement int64 on the wire.
	}
	return dst, nil
}

// readFloats reads a repeated float field in either packed or unpacked form.
func (p *parser) readFloats(typ protowire.Type, dst []float32) ([]float32, error) {
	if typ != protowire.BytesType {
		v, err := p.readFloat32(typ)
		if err != nil {
			return dst, err
		}
		return append(dst, v), nil
	}
	packed, err := p.readBytes(typ)
	if err != nil {
		return dst, err
	}
	if len(packed)%4 != 0 {
		return dst, fmt.Errorf("packed float length %d is not a multiple of 4", len(packed))
	}
	for len(packed) > 0 {
		v, n := protowire.ConsumeFixed32(packed)
		if n < 0 {
			return dst, protowire.ParseError(n)
		}
		packed = packed[n:]
		dst = append(dst, math.Float32frombits(v))
	}
	return dst, nil
}

// readModelProto reads ModelProto message.
func readModelProto(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // ir_version
			m.IRVersion, err = p.readInt64(typ)
		case 2: // producer_name
			m.ProducerName, err = p.readString(typ)
		case 3: // producer_version
			m.ProducerVersion, err = p.readString(typ)
		case 4: // domain
			m.Domain, err = p.readString(typ)
		case 5: // model_version
			m.ModelVersion, err = p.readInt64(typ)
		case 6: // doc_string
			m.DocString, err = p.readString(typ)
		case 7: // graph
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				m.Graph, err = readGraphProto(b)
			}
		case 8: // opset_import
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				var opset OperatorSetID
				opset, err = readOperatorSetID(b)
				m.OpsetImport = append(m.OpsetImport, opset)
			}
		case 14: // metadata_props
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				var entry StringStringEntry
				entry, err = readStringStringEntry(b)
				m.MetadataProps = append(m.MetadataProps, entry)
			}
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return nil, err
	}
	m.Unknown = unknown
	return m, nil
}

// readGraphProto reads GraphProto message.
//
//nolint:gocognit,gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func readGraphProto(data []byte) (*GraphProto, error) {
	m := &GraphProto{}
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		switch num {
		case 1, 5, 11, 12, 13:
		case 2: // name
			var err error
			m.Name, err = p.readString(typ)
			return true, err
		case 10: // doc_string
			var err error
			m.DocString, err = p.readString(typ)
			return true, err
		default:
			return false, nil
		}

		b, err := p.readBytes(typ)
		if err != nil {
			return true, err
		}
		switch num {
		case 1: // node
			node, err := readNodeProto(b)
			m.Nodes = append(m.Nodes, node)
			return true, err
		case 5: // initializer
			tensor, err := readTensorProto(b)
			m.Initializers = append(m.Initializers, tensor)
			return true, err
		case 11: // input
			vi, err := readValueInfoProto(b)
			m.Inputs = append(m.Inputs, vi)
			return true, err
		case 12: // output
			vi, err := readValueInfoProto(b)
			m.Outputs = append(m.Outputs, vi)
			return true, err
		default: // 13: value_info
			vi, err := readValueInfoProto(b)
			m.ValueInfo = append(m.ValueInfo, vi)
			return true, err
		}
	})
	if err != nil {
		return nil, err
	}
	m.Unknown = unknown
	return m, nil
}

// readNodeProto reads NodeProto message.
func readNodeProto(data []byte) (NodeProto, error) {
	var m NodeProto
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // input
			var s string
			s, err = p.readString(typ)
			m.Inputs = append(m.Inputs, s)
		case 2: // output
			var s string
			s, err = p.readString(typ)
			m.Outputs = append(m.Outputs, s)
		case 3: // name
			m.Name, err = p.readString(typ)
		case 4: // op_type
			m.OpType, err = p.readString(typ)
		case 5: // attribute
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				var attr AttributeProto
				attr, err = readAttributeProto(b)
				m.Attributes = append(m.Attributes, attr)
			}
		case 6: // doc_string
			m.DocString, err = p.readString(typ)
		case 7: // domain
			m.Domain, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return NodeProto{}, err
	}
	m.Unknown = unknown
	return m, nil
}

// readTensorProto reads TensorProto message.
func readTensorProto(data []byte) (TensorProto, error) {
	var m TensorProto
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // dims
			m.Dims, err = p.readVarints(typ, m.Dims)
		case 2: // data_type
			m.DataType, err = p.readInt32(typ)
		case 4: // float_data
			m.FloatData, err = p.readFloats(typ, m.FloatData)
		case 5: // int32_data
			var vals []int64
			vals, err = p.readVarints(typ, nil)
			for _, v := range vals {
				m.Int32Data = append(m.Int32Data, int32(v)) //nolint:gosec // G115: sign-extended int32.
			}
		case 7: // int64_data
			m.Int64Data, err = p.readVarints(typ, m.Int64Data)
		case 8: // name
			m.Name, err = p.readString(typ)
		case 9: // raw_data
			m.RawData, err = p.readBytes(typ)
		case 12: // doc_string
			m.DocString, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return TensorProto{}, err
	}
	m.Unknown = unknown
	return m, nil
}

// readValueInfoProto reads ValueInfoProto message.
func readValueInfoProto(data []byte) (ValueInfoProto, error) {
	var m ValueInfoProto
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // name
			m.Name, err = p.readString(typ)
		case 2: // type
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				m.Type, err = readTypeProto(b)
			}
		case 3: // doc_string
			m.DocString, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return ValueInfoProto{}, err
	}
	m.Unknown = unknown
	return m, nil
}

// readTypeProto reads TypeProto message.
func readTypeProto(data []byte) (*TypeProto, error) {
	m := &TypeProto{}
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		if num != 1 { // tensor_type
			return false, nil
		}
		b, err := p.readBytes(typ)
		if err == nil {
			m.TensorType, err = readTensorTypeProto(b)
		}
		return true, err
	})
	if err != nil {
		return nil, err
	}
	m.Unknown = unknown
	return m, nil
}

// readTensorTypeProto reads TensorTypeProto message.
func readTensorTypeProto(data []byte) (*TensorTypeProto, error) {
	m := &TensorTypeProto{}
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // elem_type
			m.ElemType, err = p.readInt32(typ)
		case 2: // shape
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				m.Shape, err = readTensorShapeProto(b)
			}
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return nil, err
	}
	m.Unknown = unknown
	return m, nil
}

// readTensorShapeProto reads TensorShapeProto message.
func readTensorShapeProto(data []byte) (*TensorShapeProto, error) {
	m := &TensorShapeProto{}
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		if num != 1 { // dim
			return false, nil
		}
		b, err := p.readBytes(typ)
		if err == nil {
			var dim DimensionProto
			dim, err = readDimensionProto(b)
			m.Dims = append(m.Dims, dim)
		}
		return true, err
	})
	if err != nil {
		return nil, err
	}
	m.Unknown = unknown
	return m, nil
}

// readDimensionProto reads DimensionProto message.
func readDimensionProto(data []byte) (DimensionProto, error) {
	var m DimensionProto
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // dim_value
			m.DimValue, err = p.readInt64(typ)
			m.HasDimValue = true
		case 2: // dim_param
			m.DimParam, err = p.readString(typ)
		case 3: // denotation
			m.Denotation, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return DimensionProto{}, err
	}
	m.Unknown = unknown
	return m, nil
}

// readAttributeProto reads AttributeProto message.
//
//nolint:gocognit,gocyclo,cyclop,funlen // Protobuf parsing requires field-by-field switch logic
func readAttributeProto(data []byte) (AttributeProto, error) {
	var m AttributeProto
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // name
			m.Name, err = p.readString(typ)
		case 2: // f
			m.F, err = p.readFloat32(typ)
		case 3: // i
			m.I, err = p.readInt64(typ)
		case 4: // s
			m.S, err = p.readBytes(typ)
		case 5: // t
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				var t TensorProto
				t, err = readTensorProto(b)
				m.T = &t
			}
		case 6: // g
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				m.G, err = readGraphProto(b)
			}
		case 7: // floats
			m.Floats, err = p.readFloats(typ, m.Floats)
		case 8: // ints
			m.Ints, err = p.readVarints(typ, m.Ints)
		case 9: // strings
			var b []byte
			b, err = p.readBytes(typ)
			m.Strings = append(m.Strings, b)
		case 10: // tensors
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				var t TensorProto
				t, err = readTensorProto(b)
				m.Tensors = append(m.Tensors, t)
			}
		case 11: // graphs
			var b []byte
			if b, err = p.readBytes(typ); err == nil {
				var g *GraphProto
				if g, err = readGraphProto(b); err == nil {
					m.Graphs = append(m.Graphs, *g)
				}
			}
		case 13: // doc_string
			m.DocString, err = p.readString(typ)
		case 20: // type
			m.Type, err = p.readInt32(typ)
		case 21: // ref_attr_name
			m.RefAttr, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return AttributeProto{}, err
	}
	m.Unknown = unknown
	return m, nil
}

// readOperatorSetID reads OperatorSetIdProto message.
func readOperatorSetID(data []byte) (OperatorSetID, error) {
	var m OperatorSetID
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // domain
			m.Domain, err = p.readString(typ)
		case 2: // version
			m.Version, err = p.readInt64(typ)
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return OperatorSetID{}, err
	}
	m.Unknown = unknown
	return m, nil
}

// readStringStringEntry reads StringStringEntryProto message.
func readStringStringEntry(data []byte) (StringStringEntry, error) {
	var m StringStringEntry
	p := &parser{data: data}
	unknown, err := p.readFields(func(num protowire.Number, typ protowire.Type) (bool, error) {
		var err error
		switch num {
		case 1: // key
			m.Key, err = p.readString(typ)
		case 2: // value
			m.Value, err = p.readString(typ)
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return StringStringEntry{}, err
	}
	m.Unknown = unknown
	return m, nil
}
