// Package config loads the sentisprep YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when no --config flag is given.
const DefaultPath = "sentisprep.yaml"

// Stage names accepted in pipeline.stages.
const (
	StageConvert   = "convert"
	StageUnsqueeze = "unsqueeze"
	StageReorder   = "reorder"
	StageFinalize  = "finalize"
)

// Config is the complete tool configuration.
type Config struct {
	Target   Target   `yaml:"target"`
	Reorder  Reorder  `yaml:"reorder"`
	Audit    Audit    `yaml:"audit"`
	Pipeline Pipeline `yaml:"pipeline"`
	Log      Log      `yaml:"log"`
}

// Target describes the runtime the model is prepared for.
type Target struct {
	OpsetVersion    int64  `yaml:"opset_version"`
	MinIRVersion    int64  `yaml:"min_ir_version"`
	ProducerName    string `yaml:"producer_name"`
	ProducerVersion string `yaml:"producer_version"`
	Domain          string `yaml:"domain"`
	DocString       string `yaml:"doc_string"`
}

// Reorder configures the dependency reorderer.
type Reorder struct {
	// MaxCycleRepairs bounds cycle repair before the depth-first fallback; -1 disables repair.
	MaxCycleRepairs int `yaml:"max_cycle_repairs"`
}

// Audit configures the operator support audit.
type Audit struct {
	ExtraSupportedOps []string `yaml:"extra_supported_ops"`
}

// Pipeline configures the run command.
type Pipeline struct {
	Stages        []string `yaml:"stages"`
	CopyTo        string   `yaml:"copy_to"`         // optional second output path
	DumpDir       string   `yaml:"dump_dir"`        // optional directory for per-stage models
	FailOnInvalid bool     `yaml:"fail_on_invalid"` // treat checker findings as fatal
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in configuration targeting Unity Sentis 2.1.x.
func Default() Config {
	return Config{
		Target: Target{
			OpsetVersion:    13,
			MinIRVersion:    7,
			ProducerName:    "Unity Sentis Exporter",
			ProducerVersion: "1.0",
			Domain:          "ai.onnx",
			DocString:       "ONNX model optimized for Unity Sentis 2.1.x",
		},
		Reorder: Reorder{MaxCycleRepairs: 10000},
		Pipeline: Pipeline{
			Stages: []string{StageConvert, StageUnsqueeze, StageReorder, StageFinalize},
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file on top of Default. Keys missing from the file keep
// their default values.
//
//nolint:gosec // G304: config path is chosen by the user
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional loads path if it exists and returns Default otherwise.
func LoadOptional(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks value ranges and stage names.
func (c *Config) Validate() error {
	var problems []string
	if c.Target.OpsetVersion <= 0 {
		problems = append(problems, "target.opset_version must be positive")
	}
	if c.Target.MinIRVersion <= 0 {
		problems = append(problems, "target.min_ir_version must be positive")
	}
	if c.Reorder.MaxCycleRepairs < -1 {
		problems = append(problems, "reorder.max_cycle_repairs must be -1 or more")
	}
	for _, stage := range c.Pipeline.Stages {
		switch stage {
		case StageConvert, StageUnsqueeze, StageReorder, StageFinalize:
		default:
			problems = append(problems, fmt.Sprintf("pipeline.stages: unknown stage %q", stage))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format: unknown format %q", c.Log.Format))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
