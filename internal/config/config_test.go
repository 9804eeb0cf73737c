package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentisprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(13), cfg.Target.OpsetVersion)
	assert.Equal(t, int64(7), cfg.Target.MinIRVersion)
	assert.Equal(t, []string{StageConvert, StageUnsqueeze, StageReorder, StageFinalize}, cfg.Pipeline.Stages)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
target:
  opset_version: 15
reorder:
  max_cycle_repairs: -1
audit:
  extra_supported_ops: [Einsum, GridSample]
pipeline:
  stages: [reorder]
  copy_to: model.onnx
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(15), cfg.Target.OpsetVersion)
	assert.Equal(t, int64(7), cfg.Target.MinIRVersion, "missing keys keep defaults")
	assert.Equal(t, "Unity Sentis Exporter", cfg.Target.ProducerName)
	assert.Equal(t, -1, cfg.Reorder.MaxCycleRepairs)
	assert.Equal(t, []string{"Einsum", "GridSample"}, cfg.Audit.ExtraSupportedOps)
	assert.Equal(t, []string{StageReorder}, cfg.Pipeline.Stages)
	assert.Equal(t, "model.onnx", cfg.Pipeline.CopyTo)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
target:
  opset_version: 0
pipeline:
  stages: [convert, simplify]
log:
  level: loud
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target.opset_version")
	assert.Contains(t, err.Error(), `unknown stage "simplify"`)
	assert.Contains(t, err.Error(), `unknown level "loud"`)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "target: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadOptional(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := writeConfig(t, "reorder:\n  max_cycle_repairs: 5\n")
	cfg, err = LoadOptional(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Reorder.MaxCycleRepairs)
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "sentisprep.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
