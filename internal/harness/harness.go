package harness

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/screentrace/internal/analysis"
	"github.com/roach88/screentrace/internal/store"
	"github.com/roach88/screentrace/internal/testutil"
)

// Options tune scenario execution.
type Options struct {
	// Log receives pipeline logs. Defaults to a no-op logger.
	Log *zap.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Build an analyzer from the scenario config with a fixed run ID
//  2. Analyze the trace
//  3. Check expect_error, or export the run to a fresh in-memory database
//     and read it back
//  4. Evaluate assertions against the report and the export
//
// A returned error means the scenario could not be executed at all. An
// analysis failure the scenario did not expect is a failed Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Options) (*Result, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	a, err := analysis.New(scenario.Config,
		analysis.WithLogger(o.Log),
		analysis.WithRunIDGenerator(testutil.NewFixedRunID(scenario.RunID)),
	)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	res, err := a.Analyze(ctx, strings.NewReader(scenario.Trace))
	if scenario.ExpectError != "" {
		switch {
		case err == nil:
			result.AddError(fmt.Sprintf("expected error containing %q, run succeeded", scenario.ExpectError))
		case !strings.Contains(err.Error(), scenario.ExpectError):
			result.AddError(fmt.Sprintf("expected error containing %q, got %q", scenario.ExpectError, err.Error()))
		}
		return result, nil
	}
	if err != nil {
		result.AddError(fmt.Sprintf("analysis failed: %v", err))
		return result, nil
	}

	result.RunID = res.RunID
	result.Report = res.Report

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	x := store.Export{
		RunID:    res.RunID,
		Timeline: res.Timeline,
		Report:   res.Report,
		Config:   a.Config(),
	}
	if err := st.WriteRun(ctx, x); err != nil {
		return nil, fmt.Errorf("export scenario run: %w", err)
	}
	if _, err := st.Verify(ctx, x); err != nil {
		result.AddError(fmt.Sprintf("export check: %v", err))
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, RunID: res.RunID}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}
