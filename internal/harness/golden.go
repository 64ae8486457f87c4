package harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir is where golden reports live, relative to the test package.
const GoldenDir = "testdata/golden"

// Snapshot returns the bytes a golden file holds for a result: the
// indented report JSON with a trailing newline.
func Snapshot(result *Result) ([]byte, error) {
	if result.Report == nil {
		return nil, fmt.Errorf("result has no report")
	}
	data, err := result.Report.JSON()
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its report against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the report doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's report against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
