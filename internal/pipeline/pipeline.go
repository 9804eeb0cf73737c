// Package pipeline runs the configured model passes end to end: parse,
// patch, validate and write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/born-ml/sentisprep/internal/audit"
	"github.com/born-ml/sentisprep/internal/checker"
	"github.com/born-ml/sentisprep/internal/config"
	"github.com/born-ml/sentisprep/internal/onnx"
	"github.com/born-ml/sentisprep/internal/passes"
	"github.com/born-ml/sentisprep/internal/reorder"
)

// Summary describes a pipeline run.
type Summary struct {
	Input   string
	Outputs []string // files written, main output first

	Stages  []*passes.Result
	Reorder *reorder.Report // nil when the reorder stage did not run

	Audit   *audit.Report  // operator audit of the final model
	Changes []audit.Change // operator usage changes from input to output

	// Validation holds the checker result for the final model. It is a
	// warning unless the pipeline is configured to fail on invalid models.
	Validation error
}

// Valid reports whether the final model passed validation.
func (s *Summary) Valid() bool {
	return s.Validation == nil
}

// Runner executes pipeline stages.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger
}

// New creates a Runner. A nil logger uses slog.Default().
func New(cfg config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run is shorthand for New(cfg, nil).Run(ctx, in, out).
func Run(ctx context.Context, cfg config.Config, in, out string) (*Summary, error) {
	return New(cfg, nil).Run(ctx, in, out)
}

// Run reads the model at in, applies every configured stage and writes the
// result to out, plus the configured copy. Cancellation is checked between
// stages.
func (r *Runner) Run(ctx context.Context, in, out string) (*Summary, error) {
	r.logger.Info("loading model", slog.String("path", in))
	model, err := onnx.ParseFile(in)
	if err != nil {
		return nil, err
	}
	before := cloneNodes(model)

	summary := &Summary{Input: in}
	if err := r.Process(ctx, model, summary); err != nil {
		return summary, err
	}

	summary.Audit = audit.Audit(model, OperatorRegistry(r.cfg))
	summary.Changes = audit.Diff(before, model)

	summary.Validation = checker.Check(model)
	if summary.Validation != nil {
		if r.cfg.Pipeline.FailOnInvalid {
			return summary, fmt.Errorf("final validation failed: %w", summary.Validation)
		}
		r.logger.Warn("final validation failed, writing model anyway",
			slog.String("error", summary.Validation.Error()))
	} else {
		r.logger.Info("final validation passed")
	}

	targets := []string{out}
	if r.cfg.Pipeline.CopyTo != "" {
		targets = append(targets, r.cfg.Pipeline.CopyTo)
	}
	for _, path := range targets {
		if err := writeModel(path, model); err != nil {
			return summary, err
		}
		summary.Outputs = append(summary.Outputs, path)
		r.logger.Info("model saved", slog.String("path", path))
	}
	return summary, nil
}

// Process applies the configured stages to model in memory, appending each
// stage result to summary.
func (r *Runner) Process(ctx context.Context, model *onnx.ModelProto, summary *Summary) error {
	for i, stage := range r.cfg.Pipeline.Stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline stopped before stage %s: %w", stage, err)
		}

		pass, err := passes.New(stage, r.cfg, r.logger)
		if err != nil {
			return err
		}
		r.logger.Info("running stage", slog.Int("step", i+1), slog.String("stage", stage))

		res, err := pass.Apply(model)
		if res != nil {
			summary.Stages = append(summary.Stages, res)
			if res.Reorder != nil {
				summary.Reorder = res.Reorder
			}
		}
		if err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
		for _, note := range res.Notes {
			r.logger.Debug(note, slog.String("stage", stage))
		}

		if r.cfg.Pipeline.DumpDir != "" {
			path := filepath.Join(r.cfg.Pipeline.DumpDir, fmt.Sprintf("%02d_%s.onnx", i+1, stage))
			if err := writeModel(path, model); err != nil {
				return err
			}
			r.logger.Debug("stage output dumped", slog.String("path", path))
		}
	}
	return nil
}

// OperatorRegistry returns the Sentis operator set extended with the
// configured extra operators.
func OperatorRegistry(cfg config.Config) *audit.Registry {
	reg := audit.NewRegistry()
	for _, op := range cfg.Audit.ExtraSupportedOps {
		reg.Register(op)
	}
	return reg
}

func writeModel(path string, model *onnx.ModelProto) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: output directories are user-visible
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return onnx.WriteFile(path, model)
}

// cloneNodes copies the node list so the operator diff sees the input model.
// Node contents are shared; only the list is copied.
func cloneNodes(model *onnx.ModelProto) *onnx.ModelProto {
	if model.Graph == nil {
		return &onnx.ModelProto{}
	}
	return &onnx.ModelProto{Graph: &onnx.GraphProto{
		Nodes: append([]onnx.NodeProto(nil), model.Graph.Nodes...),
	}}
}

// IsValidationError reports whether err carries a checker result.
func IsValidationError(err error) bool {
	var verr *checker.ValidationError
	return errors.As(err, &verr)
}
