// Package passes implements the narrow model fixes that make an ONNX file
// loadable by Unity Sentis: operator substitution, attribute cleanup,
// metadata rewrite and dependency reordering.
//
// Each pass mutates the model in place and reports what it changed.
package passes

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/sentisprep/internal/config"
	"github.com/born-ml/sentisprep/internal/onnx"
	"github.com/born-ml/sentisprep/internal/reorder"
)

// Pass is a single model fix.
type Pass interface {
	Name() string
	Apply(model *onnx.ModelProto) (*Result, error)
}

// Result describes the outcome of a pass.
type Result struct {
	Pass    string
	Changed int      // number of nodes, tensors or fields touched
	Notes   []string // human-readable findings, in order
	Reorder *reorder.Report
}

func (r *Result) notef(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// New returns the pass registered under a pipeline stage name.
func New(stage string, cfg config.Config, logger *slog.Logger) (Pass, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch stage {
	case config.StageConvert:
		return &Convert{Target: cfg.Target, Logger: logger}, nil
	case config.StageUnsqueeze:
		return &Unsqueeze{MinOpset: 13, Logger: logger}, nil
	case config.StageReorder:
		return &Reorder{Options: reorder.Options{MaxCycleRepairs: cfg.Reorder.MaxCycleRepairs, Logger: logger}}, nil
	case config.StageFinalize:
		return &Finalize{Target: cfg.Target, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

func requireGraph(model *onnx.ModelProto) error {
	if model == nil || model.Graph == nil {
		return fmt.Errorf("%w: model has no graph", reorder.ErrMalformedGraph)
	}
	return nil
}

// Reorder puts graph nodes into dependency order.
type Reorder struct {
	Options reorder.Options
}

// Name implements Pass.
func (p *Reorder) Name() string { return config.StageReorder }

// Apply implements Pass.
func (p *Reorder) Apply(model *onnx.ModelProto) (*Result, error) {
	res := &Result{Pass: p.Name()}
	report, err := reorder.ApplyModel(model, p.Options)
	res.Reorder = report
	if err != nil {
		return res, err
	}

	res.Changed = report.Moved
	if report.CyclesFound > 0 {
		res.notef("found and broke %d dependency cycle(s)", report.CyclesFound)
		for _, e := range report.BrokenEdges {
			res.notef("removed edge %d (%s) -> %d (%s)", e.From, e.Producer, e.To, e.Consumer)
		}
	}
	if report.UsedFallback {
		res.notef("topological sort infeasible, used depth-first fallback: %v", report.FallbackReason)
	}
	if len(report.DuplicateOutputs) > 0 {
		res.notef("%d output name(s) produced by more than one node", len(report.DuplicateOutputs))
	}
	res.notef("%d of %d nodes moved (%s)", report.Moved, report.Nodes, report.Strategy)
	return res, nil
}
