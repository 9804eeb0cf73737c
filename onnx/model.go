package onnx

import (
	"github.com/born-ml/sentisprep/internal/checker"
	internalonnx "github.com/born-ml/sentisprep/internal/onnx"
	"github.com/born-ml/sentisprep/internal/reorder"
)

// Model represents a loaded ONNX model that can be patched and saved.
//
// The interface hides the internal protobuf structures, so callers depend
// only on the operations below.
type Model interface {
	// InputNames returns the names of graph inputs that are not initializers.
	InputNames() []string

	// OutputNames returns the names of graph outputs.
	OutputNames() []string

	// OpsetVersion returns the default-domain opset version, or 0 when the
	// model does not import one.
	OpsetVersion() int64

	// NodeNames returns node names in their current graph order.
	NodeNames() []string

	// Metadata returns model metadata as key-value pairs.
	//
	// Keys:
	//   - "producer_name", "producer_version", "domain" when set
	//   - Custom keys from model.metadata_props
	Metadata() map[string]string

	// Reorder puts the graph nodes into dependency order in place, breaking
	// dependency cycles if needed. On error the node order is unchanged.
	Reorder(opts ReorderOptions) (*ReorderReport, error)

	// Validate checks versions, node structure and topological order.
	Validate() error

	// Bytes encodes the model in protobuf wire format.
	Bytes() ([]byte, error)

	// Save writes the model to path.
	Save(path string) error
}

type model struct {
	proto *internalonnx.ModelProto
}

func (m *model) InputNames() []string {
	return internalonnx.Info(m.proto).InputNames()
}

func (m *model) OutputNames() []string {
	return internalonnx.Info(m.proto).OutputNames()
}

func (m *model) OpsetVersion() int64 {
	return m.proto.OpsetVersion()
}

func (m *model) NodeNames() []string {
	if m.proto.Graph == nil {
		return nil
	}
	names := make([]string, len(m.proto.Graph.Nodes))
	for i := range m.proto.Graph.Nodes {
		names[i] = m.proto.Graph.Nodes[i].Name
	}
	return names
}

func (m *model) Metadata() map[string]string {
	meta := make(map[string]string, len(m.proto.MetadataProps)+3)
	if m.proto.ProducerName != "" {
		meta["producer_name"] = m.proto.ProducerName
	}
	if m.proto.ProducerVersion != "" {
		meta["producer_version"] = m.proto.ProducerVersion
	}
	if m.proto.Domain != "" {
		meta["domain"] = m.proto.Domain
	}
	for _, kv := range m.proto.MetadataProps {
		meta[kv.Key] = kv.Value
	}
	return meta
}

func (m *model) Reorder(opts ReorderOptions) (*ReorderReport, error) {
	return reorder.ApplyModel(m.proto, opts)
}

func (m *model) Validate() error {
	return checker.Check(m.proto)
}

func (m *model) Bytes() ([]byte, error) {
	return internalonnx.Marshal(m.proto)
}

func (m *model) Save(path string) error {
	return internalonnx.WriteFile(path, m.proto)
}
