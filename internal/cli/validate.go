package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/screentrace/internal/source"
	"github.com/roach88/screentrace/internal/trace"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                 `json:"valid"`
	Lines    int                  `json:"lines"`
	Records  int                  `json:"records"`
	Unknown  []string             `json:"unknown_codes,omitempty"`
	Warnings []trace.ParseWarning `json:"warnings,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	input inputFlags
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [capture]",
		Short: "Check a capture's lines without correlating them",
		Long: `Parse every line of a capture and report the malformed ones.

Nothing is correlated and no rules run, so this is a quick check that a
capture (or a marker/--json-field setting) yields trace records at all.
Event codes outside the known vocabulary are listed; they are legal and
kept as opaque records by analyze.

Exit codes:
  0 - Every trace line parsed
  1 - One or more lines are malformed
  2 - Command error (unreadable, empty or binary capture, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	opts.input.register(cmd)

	return cmd
}

func runValidate(opts *ValidateOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := resolveConfig(cmd, &opts.input, nil)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	in, name, err := openInput(cmd, args)
	if err != nil {
		code, msg := inputFailure(err)
		return formatter.fail(ExitCommandError, code, msg, err)
	}
	defer in.Close()

	formatter.VerboseLog("Validating %s", name)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := validateLines(ctx, in, source.NewExtractor(opts.input.JSONField), trace.NewParser(cfg.Marker))
	if err != nil {
		code, msg := inputFailure(err)
		return formatter.fail(ExitCommandError, code, msg, err)
	}

	if result.Valid {
		return outputValidateSuccess(formatter, result)
	}
	return outputValidationErrors(formatter, result)
}

// validateLines parses every line of r, numbering lines the way the
// engine does.
func validateLines(ctx context.Context, r io.Reader, x *source.Extractor, p *trace.Parser) (ValidationResult, error) {
	var (
		result ValidationResult
		seen   = map[string]bool{}
	)
	err := source.Scan(ctx, r, x, func(line string) error {
		result.Lines++
		rec, ok, err := p.Parse(result.Lines, line)
		if err != nil {
			var w *trace.ParseWarning
			if !errors.As(err, &w) {
				return err
			}
			result.Warnings = append(result.Warnings, *w)
			return nil
		}
		if !ok {
			return nil
		}
		result.Records++
		if rec.Code == trace.CodeRaw && !seen[rec.RawCode] {
			seen[rec.RawCode] = true
			result.Unknown = append(result.Unknown, rec.RawCode)
		}
		return nil
	})
	if err != nil {
		return ValidationResult{}, err
	}
	result.Valid = len(result.Warnings) == 0
	return result, nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "OK: %d record(s) in %d line(s)\n", result.Records, result.Lines)
	writeUnknown(formatter, result.Unknown)
	return nil
}

// outputValidationErrors outputs every malformed line.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure,
		fmt.Sprintf("%s: %d malformed line(s)", ErrCodeInvalidLines, len(result.Warnings)))

	if formatter.JSON() {
		first := result.Warnings[0]
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeInvalidLines,
				Message: fmt.Sprintf("line %d: %s", first.Line, first.Reason),
			},
		}
		if err := formatter.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintf(formatter.Writer, "FAIL: %d malformed line(s), %d record(s) in %d line(s)\n\n",
		len(result.Warnings), result.Records, result.Lines)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "line %d\n", w.Line)
		fmt.Fprintf(formatter.Writer, "  %s\n", w.Reason)
		fmt.Fprintf(formatter.Writer, "  %s\n\n", w.Text)
	}
	writeUnknown(formatter, result.Unknown)
	return failure
}

func writeUnknown(formatter *OutputFormatter, codes []string) {
	if len(codes) == 0 {
		return
	}
	fmt.Fprintf(formatter.Writer, "Unknown event codes (kept as raw records): %v\n", codes)
}
