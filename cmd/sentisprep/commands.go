package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/sentisprep/internal/audit"
	"github.com/born-ml/sentisprep/internal/checker"
	"github.com/born-ml/sentisprep/internal/config"
	"github.com/born-ml/sentisprep/internal/onnx"
	"github.com/born-ml/sentisprep/internal/pipeline"
)

// errInvalidModel is returned by check so the process exits non-zero.
var errInvalidModel = errors.New("model failed validation")

// stageCmd runs a single pipeline stage on IN and writes OUT.
func (a *app) stageCmd(stage, short string) *cobra.Command {
	var maxRepairs int
	cmd := &cobra.Command{
		Use:   stage + " IN OUT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			cfg.Pipeline.Stages = []string{stage}
			cfg.Pipeline.CopyTo = ""
			cfg.Pipeline.DumpDir = ""
			if cmd.Flags().Changed("max-repairs") {
				cfg.Reorder.MaxCycleRepairs = maxRepairs
			}
			return a.runPipeline(cmd, cfg, args[0], args[1])
		},
	}
	if stage == config.StageReorder {
		cmd.Flags().IntVar(&maxRepairs, "max-repairs", config.Default().Reorder.MaxCycleRepairs,
			"cycle edges to cut before the depth-first fallback (-1 disables repair)")
	}
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var (
		stages        []string
		copyTo        string
		dumpDir       string
		failOnInvalid bool
	)
	cmd := &cobra.Command{
		Use:   "run IN OUT",
		Short: "Run the full preparation pipeline",
		Long: `Run applies the configured stages in order (by default convert, unsqueeze,
reorder, finalize), validates the result and writes it. A validation failure is
reported as a warning unless --fail-on-invalid is set.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			flags := cmd.Flags()
			if flags.Changed("stages") {
				cfg.Pipeline.Stages = stages
			}
			if flags.Changed("copy-to") {
				cfg.Pipeline.CopyTo = copyTo
			}
			if flags.Changed("dump-dir") {
				cfg.Pipeline.DumpDir = dumpDir
			}
			if flags.Changed("fail-on-invalid") {
				cfg.Pipeline.FailOnInvalid = failOnInvalid
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.runPipeline(cmd, cfg, args[0], args[1])
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&stages, "stages", nil, "comma-separated stages to run")
	flags.StringVar(&copyTo, "copy-to", "", "also write the result to this path")
	flags.StringVar(&dumpDir, "dump-dir", "", "write the model after each stage into this directory")
	flags.BoolVar(&failOnInvalid, "fail-on-invalid", false, "exit with an error when final validation fails")
	return cmd
}

func (a *app) runPipeline(cmd *cobra.Command, cfg config.Config, in, out string) error {
	summary, err := pipeline.New(cfg, a.logger).Run(cmd.Context(), in, out)
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	return err
}

func (a *app) auditCmd() *cobra.Command {
	var extra []string
	cmd := &cobra.Command{
		Use:   "audit MODEL",
		Short: "List operators and flag those Unity Sentis does not support",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := onnx.ParseFile(args[0])
			if err != nil {
				return err
			}
			cfg := a.cfg
			cfg.Audit.ExtraSupportedOps = append(cfg.Audit.ExtraSupportedOps, extra...)
			printAudit(cmd.OutOrStdout(), audit.Audit(model, pipeline.OperatorRegistry(cfg)))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&extra, "extra-ops", nil, "additional operators to treat as supported")
	return cmd
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect MODEL",
		Short: "Print model metadata, opsets, inputs and outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := onnx.GetModelInfo(args[0])
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check MODEL",
		Short: "Validate versions, node structure and topological order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := onnx.ParseFile(args[0])
			if err != nil {
				return err
			}
			verr := checker.Check(model)
			printValidation(cmd.OutOrStdout(), verr)
			if verr != nil {
				return errInvalidModel
			}
			return nil
		},
	}
}

func (a *app) diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff BEFORE AFTER",
		Short: "Compare operator usage between two models",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := onnx.ParseFile(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			after, err := onnx.ParseFile(args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			w := cmd.OutOrStdout()
			field(w, "Nodes", fmt.Sprintf("%d -> %d", nodeCount(before), nodeCount(after)))
			changes := audit.Diff(before, after)
			if len(changes) == 0 {
				success(w, "operator usage unchanged")
				return nil
			}
			printChanges(w, changes)
			return nil
		},
	}
}

func nodeCount(model *onnx.ModelProto) int {
	if model.Graph == nil {
		return 0
	}
	return len(model.Graph.Nodes)
}
