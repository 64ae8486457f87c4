package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/screentrace/internal/analysis"
	"github.com/roach88/screentrace/internal/engine"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	input  inputFlags
	tuning tuningFlags
	output outputFlags

	Interval time.Duration // between partial reports
	Poll     time.Duration // tail poll fallback

	// RunIDs overrides the run ID generator; tests use a fixed one.
	RunIDs engine.RunIDGenerator
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newWatchCommand(&WatchOptions{RootOptions: rootOpts})
}

func newWatchCommand(opts *WatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <capture>",
		Short: "Follow a growing capture and report periodically",
		Long: `Follow a capture file while it is being written, printing a partial
report every --interval. On interrupt (Ctrl-C or SIGTERM) a final report
is printed; screens still open at that point are reported as unterminated.

The file must exist when watch starts. If it is truncated, reading
restarts from the top.

Examples:
  adb logcat > walk.log & screentrace watch walk.log --marker "TRACE: "
  screentrace watch walk.log --interval 10s --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	opts.input.register(cmd)
	opts.tuning.register(cmd)
	opts.output.register(cmd)
	cmd.Flags().DurationVar(&opts.Interval, "interval", 5*time.Second, "time between partial reports (0 disables them)")
	cmd.Flags().DurationVar(&opts.Poll, "poll", 0, "also poll the file at this interval (for filesystems without change events)")

	return cmd
}

func runWatch(opts *WatchOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	failOn, err := parseFailOn(opts.output.FailOn)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid flags", err)
	}
	if opts.Interval < 0 {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid flags",
			fmt.Errorf("--interval must not be negative"))
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

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("watch started", zap.String("path", path), zap.Duration("interval", opts.Interval))
	partials := 0
	res, err := a.Watch(ctx, path, analysis.WatchOptions{
		Interval: opts.Interval,
		Poll:     opts.Poll,
	}, func(partial *analysis.Result) error {
		partials++
		if !formatter.JSON() {
			fmt.Fprintf(formatter.Writer, "\n=== partial report %d ===\n", partials)
		}
		return outputResult(formatter, partial)
	})
	if err != nil {
		code, msg := inputFailure(err)
		return formatter.fail(ExitCommandError, code, msg, err)
	}

	if !formatter.JSON() {
		fmt.Fprintln(formatter.Writer, "\n=== final report ===")
	}
	// The signal context is done by now; exports still need a live one.
	return deliver(context.WithoutCancel(ctx), formatter, &opts.output, res, a.Config(), m, log, failOn)
}
