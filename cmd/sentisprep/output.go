package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/born-ml/sentisprep/internal/audit"
	"github.com/born-ml/sentisprep/internal/checker"
	"github.com/born-ml/sentisprep/internal/onnx"
	"github.com/born-ml/sentisprep/internal/pipeline"
	"github.com/born-ml/sentisprep/internal/reorder"
)

var (
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#6C7A89")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	labelStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
)

func title(w io.Writer, text string) {
	fmt.Fprintln(w, titleStyle.Render(text))
}

func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %v\n", labelStyle.Render(label+":"), value)
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func warning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, warningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

func failure(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, errorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	for _, res := range s.Stages {
		title(w, "== "+res.Pass+" ==")
		for _, note := range res.Notes {
			fmt.Fprintln(w, "  "+note)
		}
		if len(res.Notes) == 0 {
			fmt.Fprintln(w, mutedStyle.Render("  nothing to do"))
		}
	}

	if s.Reorder != nil {
		printReorder(w, s.Reorder)
	}
	if len(s.Changes) > 0 {
		printChanges(w, s.Changes)
	}
	if s.Audit != nil && !s.Audit.Compatible() {
		warning(w, "%d of %d nodes use operators Sentis does not support (%.2f%%)",
			s.Audit.UnsupportedNodes(), s.Audit.Total, s.Audit.UnsupportedPercent())
	}
	printValidation(w, s.Validation)
	for _, path := range s.Outputs {
		success(w, "saved %s", path)
	}
}

func printReorder(w io.Writer, r *reorder.Report) {
	title(w, "Reorder")
	field(w, "Nodes", r.Nodes)
	field(w, "Edges", r.Edges)
	field(w, "Strategy", r.Strategy)
	field(w, "Moved", r.Moved)
	if r.CyclesFound > 0 {
		warning(w, "found and broke %d dependency cycle(s)", r.CyclesFound)
		for _, e := range r.BrokenEdges {
			fmt.Fprintf(w, "    %s -> %s via %s\n", e.Producer, e.Consumer, strings.Join(e.Tensors, ", "))
		}
	}
	if r.UsedFallback {
		warning(w, "used depth-first fallback: %v", r.FallbackReason)
	}
	if len(r.DuplicateOutputs) > 0 {
		warning(w, "outputs produced more than once: %s", strings.Join(r.DuplicateOutputs, ", "))
	}
}

func printValidation(w io.Writer, err error) {
	if err == nil {
		success(w, "model is valid")
		return
	}
	warning(w, "model failed validation")
	var verr *checker.ValidationError
	if errors.As(err, &verr) {
		for _, issue := range verr.Issues {
			fmt.Fprintln(w, "    "+issue.String())
		}
		return
	}
	fmt.Fprintln(w, "    "+err.Error())
}

func printAudit(w io.Writer, r *audit.Report) {
	title(w, "Operators")
	field(w, "Total nodes", r.Total)
	field(w, "Operator types", r.Ops.Len())
	for _, c := range r.Counts() {
		mark := successStyle.Render("✓")
		if !c.Supported {
			mark = errorStyle.Render("✗")
		}
		fmt.Fprintf(w, "  %s %s: %d\n", mark, c.Op, c.Count)
	}

	if r.Compatible() {
		success(w, "all operators are supported by Unity Sentis")
		return
	}
	failure(w, "unsupported operators:")
	for pair := r.Unsupported.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(w, "    %s: %d\n", pair.Key, pair.Value)
	}
	warning(w, "%d of %d nodes unsupported (%.2f%%); the model may not run without further conversion",
		r.UnsupportedNodes(), r.Total, r.UnsupportedPercent())
}

func printChanges(w io.Writer, changes []audit.Change) {
	title(w, "Operator changes")
	for _, c := range changes {
		fmt.Fprintf(w, "  %s: %d -> %d (%+d)\n", c.Op, c.Before, c.After, c.Delta())
	}
}

func printInfo(w io.Writer, info *onnx.ModelInfo) {
	title(w, "Model")
	field(w, "IR version", info.IRVersion)
	field(w, "Producer", strings.TrimSpace(info.ProducerName+" "+info.ProducerVersion))
	field(w, "Domain", info.Domain)
	field(w, "Model version", info.ModelVersion)
	if info.DocString != "" {
		field(w, "Doc", info.DocString)
	}
	field(w, "Graph", info.GraphName)
	field(w, "Nodes", info.NodeCount)
	field(w, "Initializers", info.WeightCount)

	title(w, "Opsets")
	for _, op := range info.Opsets {
		domain := op.Domain
		if domain == "" {
			domain = mutedStyle.Render("(default)")
		}
		fmt.Fprintf(w, "  %s %d\n", domain, op.Version)
	}
	if len(info.Metadata) > 0 {
		title(w, "Metadata")
		for _, kv := range info.Metadata {
			field(w, kv.Key, kv.Value)
		}
	}
	for _, labels := range info.Labels {
		printLabels(w, labels)
	}

	printTensors(w, "Inputs", info.Inputs)
	printTensors(w, "Outputs", info.Outputs)
}

func printLabels(w io.Writer, labels onnx.ClassLabels) {
	title(w, "Class labels ("+labels.Key+")")
	if labels.Err != nil {
		warning(w, "%v", labels.Err)
		return
	}
	for _, e := range labels.Entries {
		if labels.List {
			field(w, "Index "+e.Key, e.Value)
		} else {
			field(w, "Key "+strconv.Quote(e.Key), e.Value)
		}
	}
}

func printTensors(w io.Writer, heading string, tensors []onnx.TensorInfo) {
	title(w, heading)
	for _, t := range tensors {
		elem := t.ElemType
		if elem == "" {
			elem = "?"
		}
		shape := mutedStyle.Render("(no shape)")
		if t.HasShape {
			shape = t.ShapeString()
		}
		fmt.Fprintf(w, "  %s %s %s\n", t.Name, elem, shape)
	}
}
