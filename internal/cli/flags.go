package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/detect"
	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/source"
)

// inputFlags select and unwrap the capture.
type inputFlags struct {
	ConfigPath string
	JSONField  string
	Marker     string
	Strict     bool
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .cue)")
	cmd.Flags().StringVar(&f.JSONField, "json-field", "", "read JSON-lines input, taking the trace line from this field (dots select nested fields)")
	cmd.Flags().StringVar(&f.Marker, "marker", "", "only parse lines containing this marker, starting after it")
	cmd.Flags().BoolVar(&f.Strict, "strict", false, "fail on the first malformed line instead of skipping it")
}

// tuningFlags override detector thresholds and report options.
type tuningFlags struct {
	Rules            []string
	SlowCallMs       int64
	BackgroundMs     int64
	ResumeWindowMs   int64
	ReQueryThreshold int
	HostFallback     string
	Slowest          int
}

func (f *tuningFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.Rules, "rules", nil, "only run these rules (comma separated)")
	cmd.Flags().Int64Var(&f.SlowCallMs, "slow-call-ms", config.DefaultSlowCallThresholdMs, "duration above which a call is slow")
	cmd.Flags().Int64Var(&f.BackgroundMs, "background-timeout-ms", config.DefaultBackgroundTimeoutMs, "gap after the last pause that counts as backgrounding")
	cmd.Flags().Int64Var(&f.ResumeWindowMs, "resume-window-ms", config.DefaultBackgroundResumeWindowMs, "window after a return from background in which queries are counted")
	cmd.Flags().IntVar(&f.ReQueryThreshold, "requery-threshold", config.DefaultBackgroundReQueryThreshold, "queries within the resume window that raise BackgroundReQuery")
	cmd.Flags().StringVar(&f.HostFallback, "host-fallback", config.HostFallbackMostRecent, "host strategy for components with an unknown host (most-recent|detached)")
	cmd.Flags().IntVar(&f.Slowest, "slowest", config.DefaultSlowestCalls, "length of the slowest calls list")
}

// resolveConfig loads the config file, if any, and applies the flags the
// user actually set on top of it. tuning may be nil.
func resolveConfig(cmd *cobra.Command, in *inputFlags, tuning *tuningFlags) (config.Config, error) {
	cfg := config.Default()
	if in.ConfigPath != "" {
		loaded, err := config.Load(in.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("marker") {
		cfg.Marker = in.Marker
	}
	if changed("strict") {
		cfg.TolerantParsing = config.Bool(!in.Strict)
	}

	if tuning != nil {
		if changed("rules") {
			cfg.Rules = tuning.Rules
		}
		if changed("slow-call-ms") {
			cfg.SlowCallThresholdMs = tuning.SlowCallMs
		}
		if changed("background-timeout-ms") {
			cfg.BackgroundTimeoutMs = tuning.BackgroundMs
		}
		if changed("resume-window-ms") {
			cfg.BackgroundResumeWindowMs = tuning.ResumeWindowMs
		}
		if changed("requery-threshold") {
			cfg.BackgroundReQueryThreshold = tuning.ReQueryThreshold
		}
		if changed("host-fallback") {
			cfg.HostFallback = tuning.HostFallback
		}
		if changed("slowest") {
			cfg.SlowestCalls = tuning.Slowest
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openInput opens the capture named by args, or the command's stdin when
// there is none or it is "-".
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == source.Stdin {
		rc, err := source.Open(cmd.InOrStdin())
		return rc, "stdin", err
	}
	rc, err := source.OpenFile(args[0])
	return rc, args[0], err
}

// inputFailure maps an error from reading or analyzing a capture to an
// error code and message.
func inputFailure(err error) (code, message string) {
	switch {
	case errors.Is(err, source.ErrEmptyInput):
		return ErrCodeEmptyInput, "capture is empty"
	case errors.Is(err, source.ErrBinaryInput):
		return ErrCodeBinaryInput, "capture is not text"
	case errors.Is(err, os.ErrNotExist):
		return ErrCodeNotFound, "capture not found"
	case engine.IsStrictParseError(err):
		return ErrCodeStrictParse, "malformed line"
	}
	var ve *config.ValidationError
	if errors.As(err, &ve) {
		return ErrCodeConfig, "invalid configuration"
	}
	return ErrCodeGeneric, "analysis failed"
}

// parseFailOn parses --fail-on; empty disables the check.
func parseFailOn(s string) (detect.Severity, error) {
	if s == "" {
		return "", nil
	}
	sev, err := detect.ParseSeverity(s)
	if err != nil {
		return "", fmt.Errorf("--fail-on: %w", err)
	}
	return sev, nil
}
