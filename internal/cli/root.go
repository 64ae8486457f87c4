// Package cli implements the screentrace command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/screentrace/internal/logging"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Quiet       bool
	Format      string // "json" | "text"
	LogEncoding string // "json" | "console"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the screentrace CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "screentrace",
		Short: "screentrace - screen trace correlation and anomaly detection",
		Long: `Correlate a pipe-delimited screen trace captured during a walkthrough
of an app, attribute every data call to the screen that issued it, and
report anomalies such as duplicate or slow queries.

Trace lines look like:
  HH:MM:SS.mmm|EVENT_CODE|subject|key=value key=value`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging on stderr")
	cmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "log errors only")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogEncoding, "log-format", logging.EncodingJSON, "log encoding (json|console)")

	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// logger builds the zap logger selected by the global flags.
func (o *RootOptions) logger() (*zap.Logger, error) {
	log, err := logging.New(logging.Options{
		Verbose:  o.Verbose,
		Quiet:    o.Quiet,
		Encoding: o.LogEncoding,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "logger", err)
	}
	return log, nil
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
