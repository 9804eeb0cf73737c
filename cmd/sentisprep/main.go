// Package main provides the sentisprep CLI, which patches ONNX models so
// Unity Sentis can import them.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/born-ml/sentisprep/internal/config"
)

const version = "v0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app carries state shared by all subcommands once flags are parsed.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "sentisprep",
		Short: "Prepare ONNX models for Unity Sentis",
		Long: `sentisprep applies the fixes Unity Sentis needs to import an ONNX model:
opset and metadata conversion, Unsqueeze rewriting, dependency reordering with
cycle repair, and final cleanup. It can also audit operator support and
validate graph structure.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default "+config.DefaultPath+" if present)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		a.stageCmd(config.StageReorder, "Put graph nodes into dependency order, breaking cycles"),
		a.stageCmd(config.StageUnsqueeze, "Move Unsqueeze axes from attribute to input"),
		a.stageCmd(config.StageConvert, "Rewrite metadata, versions and float16 weights for Sentis"),
		a.stageCmd(config.StageFinalize, "Strip unsupported attributes and rebuild the model envelope"),
		a.runCmd(),
		a.auditCmd(),
		a.inspectCmd(),
		a.checkCmd(),
		a.diffCmd(),
		versionCmd(),
	)
	return root
}

// setup loads configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.Load(a.configPath)
	} else {
		a.cfg, err = config.LoadOptional(config.DefaultPath)
	}
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Log.Format = a.logFormat
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.logger = newLogger(cmd.ErrOrStderr(), a.cfg.Log)
	slog.SetDefault(a.logger)
	return nil
}

// newLogger builds a slog logger from the log configuration.
func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sentisprep %s\n", version)
		},
	}
}
