package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sentisprep/internal/checker"
	"github.com/born-ml/sentisprep/internal/config"
	"github.com/born-ml/sentisprep/internal/onnx"
	"github.com/born-ml/sentisprep/internal/reorder"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// legacyModel is an opset 11 export with attribute-style Unsqueeze and a
// float16 bias, the shape of model the default stages are meant for.
func legacyModel() *onnx.ModelProto {
	return &onnx.ModelProto{
		IRVersion:     6,
		ProducerName:  "pytorch",
		OpsetImport:   []onnx.OperatorSetID{{Version: 11}},
		MetadataProps: []onnx.StringStringEntry{{Key: "author", Value: "x"}},
		Graph: &onnx.GraphProto{
			Name: "net",
			Nodes: []onnx.NodeProto{
				{
					Name: "unsq", OpType: "Unsqueeze", Inputs: []string{"x"}, Outputs: []string{"u"},
					Attributes: []onnx.AttributeProto{{Name: "axes", Type: onnx.AttributeProtoInts, Ints: []int64{0}}},
				},
				{Name: "add", OpType: "Add", Inputs: []string{"u", "b"}, Outputs: []string{"y"}},
			},
			Inputs:       []onnx.ValueInfoProto{{Name: "x"}},
			Outputs:      []onnx.ValueInfoProto{{Name: "y"}},
			Initializers: []onnx.TensorProto{{Name: "b", DataType: onnx.TensorProtoFloat16, Dims: []int64{1}, RawData: []byte{0x00, 0x3c}}},
		},
	}
}

func writeInput(t *testing.T, model *onnx.ModelProto) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.onnx")
	require.NoError(t, onnx.WriteFile(path, model))
	return path
}

func TestRunDefaultStages(t *testing.T) {
	in := writeInput(t, legacyModel())
	out := filepath.Join(t.TempDir(), "out.onnx")

	summary, err := New(config.Default(), quietLogger()).Run(context.Background(), in, out)
	require.NoError(t, err)

	require.Len(t, summary.Stages, 4)
	for i, stage := range []string{"convert", "unsqueeze", "reorder", "finalize"} {
		assert.Equal(t, stage, summary.Stages[i].Pass)
	}
	require.NotNil(t, summary.Reorder)
	assert.Equal(t, reorder.StrategySorted, summary.Reorder.Strategy)
	assert.Equal(t, 2, summary.Reorder.Moved)
	assert.True(t, summary.Valid())
	assert.True(t, summary.Audit.Compatible())
	assert.Empty(t, summary.Changes)
	assert.Equal(t, []string{out}, summary.Outputs)

	model, err := onnx.ParseFile(out)
	require.NoError(t, err)
	assert.Equal(t, int64(7), model.IRVersion)
	assert.Equal(t, []onnx.OperatorSetID{{Version: 13}}, model.OpsetImport)
	assert.Equal(t, "Unity Sentis Exporter", model.ProducerName)
	assert.Empty(t, model.MetadataProps)

	nodes := model.Graph.Nodes
	require.Len(t, nodes, 2)
	assert.Equal(t, "unsq_fixed", nodes[0].Name)
	assert.Equal(t, []string{"x", "_axes_1"}, nodes[0].Inputs)
	assert.Equal(t, "add", nodes[1].Name)
	assert.Empty(t, reorder.Violations(nodes))

	require.Len(t, model.Graph.Initializers, 2)
	assert.Equal(t, int32(onnx.TensorProtoFloat), model.Graph.Initializers[0].DataType)
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, model.Graph.Initializers[0].RawData)
	assert.NoError(t, checker.Check(model))
}

func TestRunCopyAndDump(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Pipeline.CopyTo = filepath.Join(dir, "streaming", "model.onnx")
	cfg.Pipeline.DumpDir = filepath.Join(dir, "stages")

	summary, err := New(cfg, quietLogger()).Run(context.Background(), writeInput(t, legacyModel()), filepath.Join(dir, "out.onnx"))
	require.NoError(t, err)
	assert.Len(t, summary.Outputs, 2)

	for _, name := range []string{"01_convert.onnx", "02_unsqueeze.onnx", "03_reorder.onnx", "04_finalize.onnx"} {
		assert.FileExists(t, filepath.Join(cfg.Pipeline.DumpDir, name))
	}
	primary, err := os.ReadFile(filepath.Join(dir, "out.onnx"))
	require.NoError(t, err)
	copied, err := os.ReadFile(cfg.Pipeline.CopyTo)
	require.NoError(t, err)
	assert.Equal(t, primary, copied)
}

func TestRunSingleStageBreaksCycle(t *testing.T) {
	model := &onnx.ModelProto{
		IRVersion:   7,
		OpsetImport: []onnx.OperatorSetID{{Version: 13}},
		Graph: &onnx.GraphProto{Nodes: []onnx.NodeProto{
			{Name: "A", OpType: "Relu", Inputs: []string{"c"}, Outputs: []string{"a"}},
			{Name: "B", OpType: "Relu", Inputs: []string{"a"}, Outputs: []string{"b"}},
			{Name: "C", OpType: "Relu", Inputs: []string{"b"}, Outputs: []string{"c"}},
		}},
	}
	cfg := config.Default()
	cfg.Pipeline.Stages = []string{config.StageReorder}

	summary, err := New(cfg, quietLogger()).Run(context.Background(), writeInput(t, model), filepath.Join(t.TempDir(), "out.onnx"))
	require.NoError(t, err)
	require.NotNil(t, summary.Reorder)
	assert.Equal(t, 1, summary.Reorder.CyclesFound)
	assert.Equal(t, reorder.StrategyRepaired, summary.Reorder.Strategy)

	// The cut edge is still present in the data, so validation warns.
	assert.False(t, summary.Valid())
	assert.Len(t, summary.Outputs, 1)
}

func TestRunFailOnInvalid(t *testing.T) {
	model := legacyModel()
	model.Graph.Outputs = append(model.Graph.Outputs, onnx.ValueInfoProto{Name: "never"})
	cfg := config.Default()
	cfg.Pipeline.FailOnInvalid = true
	out := filepath.Join(t.TempDir(), "out.onnx")

	summary, err := New(cfg, quietLogger()).Run(context.Background(), writeInput(t, model), out)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.False(t, summary.Valid())
	assert.NoFileExists(t, out)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(config.Default(), quietLogger()).Run(ctx, writeInput(t, legacyModel()), filepath.Join(t.TempDir(), "out.onnx"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunMissingInput(t *testing.T) {
	_, err := Run(context.Background(), config.Default(), filepath.Join(t.TempDir(), "nope.onnx"), "out.onnx")
	assert.Error(t, err)
}

func TestRunStageError(t *testing.T) {
	model := &onnx.ModelProto{IRVersion: 7}
	_, err := New(config.Default(), quietLogger()).Run(context.Background(), writeInput(t, model), filepath.Join(t.TempDir(), "out.onnx"))
	require.Error(t, err)
	assert.ErrorIs(t, err, reorder.ErrMalformedGraph)
	assert.Contains(t, err.Error(), "stage convert")
}

func TestOperatorRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.Audit.ExtraSupportedOps = []string{"NonZero"}
	reg := OperatorRegistry(cfg)
	assert.True(t, reg.Supports("NonZero"))
	assert.True(t, reg.Supports("Conv"))
}
