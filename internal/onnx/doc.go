// Package onnx reads and writes ONNX model files.
//
// ONNX (Open Neural Network Exchange) models are protobuf messages. This package
// decodes them into hand-written structs with google.golang.org/protobuf/encoding/protowire
// and encodes them back. Fields that are not modeled are preserved as raw wire
// bytes, so a file can be patched (node order, attributes, metadata) and written
// back without losing tensors, functions, or training info.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, inputs, outputs, and initializers
//   - NodeProto: Single operation in the graph (e.g., Conv, MatMul, Relu)
//   - TensorProto: Weight/initializer tensor with data and shape
//   - ValueInfoProto: Input/output tensor type information
//
// Example usage:
//
//	model, err := onnx.ParseFile("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Graph: %s with %d nodes, opset %d\n",
//	    model.Graph.Name, len(model.Graph.Nodes), model.OpsetVersion())
//
//	model.DocString = "patched"
//	if err := onnx.WriteFile("model_patched.onnx", model); err != nil {
//	    log.Fatal(err)
//	}
package onnx
