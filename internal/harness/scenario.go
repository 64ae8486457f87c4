package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/detect"
)

// Scenario is one trace plus the assertions its report must satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides analysis defaults for this scenario.
	Config config.Config `yaml:"config,omitempty"`

	// Trace is the capture text, one record per line.
	Trace string `yaml:"trace,omitempty"`

	// TraceFile is a capture path relative to the scenario file. It is
	// read into Trace when the scenario is loaded.
	TraceFile string `yaml:"trace_file,omitempty"`

	// ExpectError, when set, means the run must fail with an error whose
	// text contains it. Assertions are skipped.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the report.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run ID. If empty, defaults to
	// "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// Assertion validates part of a report or its export.
type Assertion struct {
	// Type selects the assertion; see the package documentation.
	Type string `yaml:"type"`

	// Kind, Severity, Subject and Scope filter issues (issue_count,
	// issue_contains). Empty fields match anything.
	Kind     string `yaml:"kind,omitempty"`
	Severity string `yaml:"severity,omitempty"`
	Subject  string `yaml:"subject,omitempty"`
	Scope    string `yaml:"scope,omitempty"`

	// Count is the expected number (issue_count, parse_warnings).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected issue kind order (issue_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Subjects is the expected inventory (inventory).
	Subjects []string `yaml:"subjects,omitempty"`

	// Steps are "action subject" pairs, e.g. "open Main", or a bare action
	// such as "background" that matches any subject (navigation_order).
	Steps []string `yaml:"steps,omitempty"`

	// Labels are the expected unterminated frames (pending).
	Labels []string `yaml:"labels,omitempty"`

	// Table, Where and Expect select and check one export row
	// (export_row).
	Table  string                 `yaml:"table,omitempty"`
	Where  map[string]interface{} `yaml:"where,omitempty"`
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertIssueCount      = "issue_count"
	AssertIssueContains   = "issue_contains"
	AssertIssueOrder      = "issue_order"
	AssertInventory       = "inventory"
	AssertNavigationOrder = "navigation_order"
	AssertParseWarnings   = "parse_warnings"
	AssertPending         = "pending"
	AssertExportRow       = "export_row"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.TraceFile != "" {
		tracePath := scenario.TraceFile
		if !filepath.IsAbs(tracePath) {
			tracePath = filepath.Join(filepath.Dir(path), tracePath)
		}
		text, err := os.ReadFile(tracePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read trace file: %w", err)
		}
		scenario.Trace = string(text)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. trace_file is not resolved.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and assertion shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Trace != "" && s.TraceFile != "" {
		return fmt.Errorf("trace and trace_file are mutually exclusive")
	}
	if s.Trace == "" && s.TraceFile == "" && s.ExpectError == "" {
		return fmt.Errorf("trace or trace_file is required")
	}
	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return fmt.Errorf("at least one assertion is required")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Severity != "" {
		if _, err := detect.ParseSeverity(a.Severity); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}

	switch a.Type {
	case AssertIssueCount, AssertParseWarnings:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertIssueContains:
		if a.Kind == "" && a.Subject == "" && a.Scope == "" && a.Severity == "" {
			return fmt.Errorf("assertions[%d]: issue_contains needs at least one of kind, severity, subject, scope", index)
		}
	case AssertIssueOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for issue_order", index)
		}
	case AssertInventory:
		// An empty list asserts an empty inventory.
	case AssertNavigationOrder:
		if len(a.Steps) == 0 {
			return fmt.Errorf("assertions[%d]: steps list is required for navigation_order", index)
		}
		for _, step := range a.Steps {
			if strings.TrimSpace(step) == "" {
				return fmt.Errorf("assertions[%d]: empty navigation step", index)
			}
		}
	case AssertPending:
	case AssertExportRow:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for export_row", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for export_row", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
