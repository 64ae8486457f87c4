// Package logging builds the zap logger used by the CLI.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log encodings.
const (
	EncodingJSON    = "json"
	EncodingConsole = "console"
)

// Options selects the logger shape.
type Options struct {
	Verbose  bool   // debug level instead of info
	Quiet    bool   // errors only; ignored when Verbose is set
	Encoding string // json (default) or console
}

// Config returns the zap config for opts. Output always goes to stderr
// so stdout carries nothing but command output.
func Config(opts Options) (zap.Config, error) {
	config := zap.NewProductionConfig()
	switch {
	case opts.Verbose:
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case opts.Quiet:
		config.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	}

	switch opts.Encoding {
	case "", EncodingJSON:
	case EncodingConsole:
		config.Encoding = EncodingConsole
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return zap.Config{}, fmt.Errorf("unknown log encoding %q (want %s or %s)",
			opts.Encoding, EncodingJSON, EncodingConsole)
	}

	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	// Sampling drops repeated debug lines, which hides per-line parse
	// warnings in verbose runs.
	config.Sampling = nil
	return config, nil
}

// New builds a logger for opts.
func New(opts Options) (*zap.Logger, error) {
	config, err := Config(opts)
	if err != nil {
		return nil, err
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
