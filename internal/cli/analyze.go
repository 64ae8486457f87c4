package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/screentrace/internal/analysis"
	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/detect"
	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/metrics"
	"github.com/roach88/screentrace/internal/source"
	"github.com/roach88/screentrace/internal/store"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	*RootOptions
	input  inputFlags
	tuning tuningFlags
	output outputFlags

	// RunIDs overrides the run ID generator; tests use a fixed one.
	RunIDs engine.RunIDGenerator
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	return newAnalyzeCommand(&AnalyzeOptions{RootOptions: rootOpts})
}

func newAnalyzeCommand(opts *AnalyzeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [capture]",
		Short: "Correlate a capture and report anomalies",
		Long: `Analyze a complete trace capture and print its report.

The capture is read from the named file, or from stdin when the argument
is missing or "-". Gzip and zstd captures are decompressed transparently.

Exit codes:
  0 - Report produced, no issue at or above --fail-on
  1 - An issue at or above --fail-on was found
  2 - Command error (unreadable, empty or binary capture, bad flags, etc.)

Examples:
  screentrace analyze walkthrough.log
  adb logcat -d | screentrace analyze --marker "TRACE: "
  screentrace analyze run.log.gz --fail-on medium --format json
  screentrace analyze run.log --export-db run.db --metrics-out run.prom`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(opts, args, cmd)
		},
	}

	opts.input.register(cmd)
	opts.tuning.register(cmd)
	opts.output.register(cmd)

	return cmd
}

func runAnalyze(opts *AnalyzeOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	failOn, err := parseFailOn(opts.output.FailOn)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid flags", err)
	}
	cfg, err := resolveConfig(cmd, &opts.input, &opts.tuning)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	log, err := opts.logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, m, err := newAnalyzer(cfg, log, &opts.input, &opts.output, opts.RunIDs)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	in, name, err := openInput(cmd, args)
	if err != nil {
		code, msg := inputFailure(err)
		return formatter.fail(ExitCommandError, code, msg, err)
	}
	defer in.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log.Info("analysis started", zap.String("input", name))
	res, err := a.Analyze(ctx, in)
	if err != nil {
		code, msg := inputFailure(err)
		return formatter.fail(ExitCommandError, code, msg, err)
	}
	log.Info("analysis finished",
		zap.String("run_id", res.RunID),
		zap.Int("records", res.Report.Stats.Records),
		zap.Int("issues", len(res.Report.Issues)),
	)

	return deliver(ctx, formatter, &opts.output, res, a.Config(), m, log, failOn)
}

// outputFlags control what happens with a finished run.
type outputFlags struct {
	FailOn     string // exit 1 when an issue at or above this severity exists
	ExportDB   string // SQLite export path
	MetricsOut string // Prometheus textfile path
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.FailOn, "fail-on", "", "exit 1 when an issue at or above this severity exists (high|medium|low|info)")
	cmd.Flags().StringVar(&f.ExportDB, "export-db", "", "write the run to a fresh SQLite database at this path")
	cmd.Flags().StringVar(&f.MetricsOut, "metrics-out", "", "write run metrics in Prometheus text format to this path")
}

// newAnalyzer builds the analyzer for a command. The metrics sink is nil
// unless --metrics-out is set.
func newAnalyzer(cfg config.Config, log *zap.Logger, in *inputFlags, out *outputFlags, ids engine.RunIDGenerator) (*analysis.Analyzer, *metrics.Run, error) {
	var m *metrics.Run
	opts := []analysis.Option{
		analysis.WithLogger(log),
		analysis.WithExtractor(source.NewExtractor(in.JSONField)),
	}
	if out.MetricsOut != "" {
		m = metrics.New()
		opts = append(opts, analysis.WithObserver(m))
	}
	if ids != nil {
		opts = append(opts, analysis.WithRunIDGenerator(ids))
	}
	a, err := analysis.New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return a, m, nil
}

// deliver exports, records metrics for and prints a final result, then
// applies --fail-on.
func deliver(ctx context.Context, formatter *OutputFormatter, out *outputFlags, res *analysis.Result, cfg config.Config, m *metrics.Run, log *zap.Logger, failOn detect.Severity) error {
	if out.ExportDB != "" {
		if err := exportRun(ctx, out.ExportDB, res, cfg, log); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeWriteFailed, "export failed", err)
		}
	}
	if m != nil {
		m.ObserveIssues(res.Issues)
		m.ObserveTimeline(res.Timeline)
		if err := m.WriteTextfile(out.MetricsOut); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeWriteFailed, "metrics write failed", err)
		}
		log.Info("metrics written", zap.String("path", out.MetricsOut))
	}

	if err := outputResult(formatter, res); err != nil {
		return err
	}
	return checkFailOn(res, failOn)
}

// exportRun writes res to a freshly created database at path and reads it
// back to check the export is whole.
func exportRun(ctx context.Context, path string, res *analysis.Result, cfg config.Config, log *zap.Logger) error {
	st, err := store.Create(path)
	if err != nil {
		return err
	}
	defer st.Close()

	x := store.Export{
		RunID:    res.RunID,
		Timeline: res.Timeline,
		Report:   res.Report,
		Config:   cfg,
	}
	if err := st.WriteRun(ctx, x); err != nil {
		return err
	}
	counts, err := st.Verify(ctx, x)
	if err != nil {
		return err
	}
	log.Info("run exported",
		zap.String("path", path),
		zap.String("run_id", res.RunID),
		zap.Int("records", counts.Records),
		zap.Int("frames", counts.Frames),
		zap.Int("issues", counts.Issues),
	)
	return nil
}

// outputResult prints a report in the configured format.
func outputResult(formatter *OutputFormatter, res *analysis.Result) error {
	if formatter.JSON() {
		return formatter.Encode(CLIResponse{
			Status: "ok",
			Data:   res.Report,
			RunID:  res.RunID,
		})
	}
	writeReportText(formatter.Writer, res.Report)
	return nil
}

// checkFailOn returns an exit-1 error when res has an issue at or above min.
func checkFailOn(res *analysis.Result, min detect.Severity) error {
	if min == "" {
		return nil
	}
	if n := res.Report.Count(min); n > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%s: %d issue(s) at or above %s", ErrCodeFindings, n, min))
	}
	return nil
}
