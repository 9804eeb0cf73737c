// Package onnx is the public API for preparing ONNX models for Unity Sentis.
//
// Models exported by PyTorch and similar tools often need small patches before
// Sentis accepts them: a supported opset and IR version, float32 weights,
// opset 13 Unsqueeze nodes and, above all, nodes stored in dependency order.
// This package loads a model, applies those patches and saves the result.
// Fields it does not touch are written back unchanged.
//
// # Example Usage
//
//	import "github.com/born-ml/sentisprep/onnx"
//
//	// Fix node order only
//	model, err := onnx.Load("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := model.Reorder(onnx.DefaultReorderOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("cycles broken:", report.CyclesFound)
//	if err := model.Save("model_fixed.onnx"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Or run every fix with the default Sentis target
//	summary, err := onnx.Prepare(ctx, "model.onnx", "model_sentis.onnx")
//
// Use [ListSupportedOps] to get the operators Unity Sentis 2.1.x accepts.
package onnx

import (
	"context"

	"github.com/born-ml/sentisprep/internal/audit"
	"github.com/born-ml/sentisprep/internal/config"
	internalonnx "github.com/born-ml/sentisprep/internal/onnx"
	"github.com/born-ml/sentisprep/internal/pipeline"
	"github.com/born-ml/sentisprep/internal/reorder"
)

// ReorderOptions configures dependency reordering.
type ReorderOptions = reorder.Options

// ReorderReport describes what a reorder run did.
type ReorderReport = reorder.Report

// Reorder errors, for use with errors.Is.
var (
	ErrMalformedGraph    = reorder.ErrMalformedGraph
	ErrCycleUnresolvable = reorder.ErrCycleUnresolvable
	ErrSortFailure       = reorder.ErrSortFailure
)

// DefaultReorderOptions returns the default reorder options.
//
// Default configuration:
//   - Cycle repair: up to 10000 cut edges before the depth-first fallback
//   - Logging: slog.Default()
func DefaultReorderOptions() ReorderOptions {
	return reorder.DefaultOptions()
}

// Load parses an ONNX model file.
func Load(path string) (Model, error) {
	proto, err := internalonnx.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return &model{proto: proto}, nil
}

// LoadFromBytes parses an ONNX model from raw protobuf bytes.
//
// This is useful when the model is embedded in the binary or loaded
// from a network source.
func LoadFromBytes(data []byte) (Model, error) {
	proto, err := internalonnx.Parse(data)
	if err != nil {
		return nil, err
	}
	return &model{proto: proto}, nil
}

// ModelInfo contains metadata about an ONNX model.
//
// Use [GetModelInfo] to quickly inspect a model file.
type ModelInfo = internalonnx.ModelInfo

// GetModelInfo extracts metadata, opsets and graph inputs and outputs from
// an ONNX file.
//
// Example:
//
//	info, err := onnx.GetModelInfo("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Producer: %s\n", info.ProducerName)
//	fmt.Printf("Opset: %d\n", info.OpsetVersion)
//	fmt.Printf("Inputs: %v\n", info.InputNames())
func GetModelInfo(path string) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(path)
}

// Summary describes a full preparation run.
type Summary = pipeline.Summary

// Prepare runs the default Sentis preparation stages (convert, unsqueeze,
// reorder, finalize) on the model at in and writes the result to out.
//
// A model that fails final validation is still written; check
// Summary.Valid.
func Prepare(ctx context.Context, in, out string) (*Summary, error) {
	return pipeline.Run(ctx, config.Default(), in, out)
}

// ListSupportedOps returns the operators supported by Unity Sentis 2.1.x,
// sorted by name.
func ListSupportedOps() []string {
	return audit.NewRegistry().SupportedOps()
}
