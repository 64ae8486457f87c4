package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/screentrace/internal/report"
	"github.com/roach88/screentrace/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes the issue list to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Issues   []report.Issue // Issues for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Issues) > 0 {
		fmt.Fprintf(&buf, "\nIssues:\n")
		for i, is := range e.Issues {
			fmt.Fprintf(&buf, "  [%d] %s %s %s %q\n", i+1, is.At, is.Severity, is.Kind, is.Subject)
		}
	}
	return buf.String()
}

// issueMatches checks an issue against the non-empty filters of a.
func issueMatches(is report.Issue, a Assertion) bool {
	if a.Kind != "" && !strings.EqualFold(string(is.Kind), a.Kind) {
		return false
	}
	if a.Severity != "" && !strings.EqualFold(string(is.Severity), a.Severity) {
		return false
	}
	if a.Subject != "" && is.Subject != a.Subject {
		return false
	}
	if a.Scope != "" && is.Scope != a.Scope {
		return false
	}
	return true
}

func describeFilter(a Assertion) string {
	var parts []string
	for _, f := range []struct{ name, v string }{
		{"kind", a.Kind}, {"severity", a.Severity}, {"subject", a.Subject}, {"scope", a.Scope},
	} {
		if f.v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", f.name, f.v))
		}
	}
	if len(parts) == 0 {
		return "any issue"
	}
	return strings.Join(parts, " ")
}

// assertIssueCount checks that exactly Count issues match the filters.
func assertIssueCount(r *report.Report, a Assertion) error {
	count := 0
	for _, is := range r.Issues {
		if issueMatches(is, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertIssueCount,
			Expected: fmt.Sprintf("%d x %s", a.Count, describeFilter(a)),
			Actual:   fmt.Sprintf("%d", count),
			Issues:   r.Issues,
		}
	}
	return nil
}

// assertIssueContains checks that at least one issue matches.
func assertIssueContains(r *report.Report, a Assertion) error {
	for _, is := range r.Issues {
		if issueMatches(is, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertIssueContains,
		Expected: describeFilter(a),
		Actual:   "no matching issue",
		Issues:   r.Issues,
	}
}

// assertIssueOrder checks that the first issue of each kind appears in
// the listed order. Other issues may sit in between.
func assertIssueOrder(r *report.Report, a Assertion) error {
	positions := make(map[string]int)
	for i, is := range r.Issues {
		key := strings.ToLower(string(is.Kind))
		if positions[key] == 0 {
			positions[key] = i + 1 // 1-indexed for readability
		}
	}

	for _, kind := range a.Kinds {
		if positions[strings.ToLower(kind)] == 0 {
			return &AssertionError{
				Type:     AssertIssueOrder,
				Expected: fmt.Sprintf("all kinds present: %v", a.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Issues:   r.Issues,
			}
		}
	}
	for i := 1; i < len(a.Kinds); i++ {
		prev, curr := a.Kinds[i-1], a.Kinds[i]
		pp, cp := positions[strings.ToLower(prev)], positions[strings.ToLower(curr)]
		if pp >= cp {
			return &AssertionError{
				Type:     AssertIssueOrder,
				Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
				Actual:   fmt.Sprintf("%s (pos %d) should be before %s (pos %d)", prev, pp, curr, cp),
				Issues:   r.Issues,
			}
		}
	}
	return nil
}

// assertInventory checks the inventory subjects exactly.
func assertInventory(r *report.Report, a Assertion) error {
	got := make([]string, len(r.Inventory))
	for i, s := range r.Inventory {
		got[i] = s.Subject
	}
	return compareList(AssertInventory, a.Subjects, got)
}

// assertPending checks the unterminated frame labels exactly.
func assertPending(r *report.Report, a Assertion) error {
	got := make([]string, len(r.Pending))
	for i, p := range r.Pending {
		got[i] = p.Label
	}
	return compareList(AssertPending, a.Labels, got)
}

func compareList(typ string, want, got []string) error {
	if len(want) == 0 && len(got) == 0 {
		return nil
	}
	if !reflect.DeepEqual(want, got) {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%q", want),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

// assertNavigationOrder checks that each step occurs in the navigation
// sequence after the previous one. Steps need not be consecutive.
func assertNavigationOrder(r *report.Report, a Assertion) error {
	pos := 0
	for _, step := range a.Steps {
		action, subject, hasSubject := strings.Cut(strings.TrimSpace(step), " ")
		found := false
		for pos < len(r.Navigation) {
			nav := r.Navigation[pos]
			pos++
			if nav.Action == action && (!hasSubject || nav.Subject == subject) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertNavigationOrder,
				Expected: fmt.Sprintf("steps in order: %q", a.Steps),
				Actual:   fmt.Sprintf("step %q not found after earlier steps; navigation: %s", step, describeNavigation(r.Navigation)),
			}
		}
	}
	return nil
}

func describeNavigation(steps []report.Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.Action + " " + s.Subject
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// assertParseWarnings checks the skipped line count.
func assertParseWarnings(r *report.Report, a Assertion) error {
	if r.ParseWarnings != a.Count {
		return &AssertionError{
			Type:     AssertParseWarnings,
			Expected: fmt.Sprintf("%d parse warnings", a.Count),
			Actual:   fmt.Sprintf("%d parse warnings", r.ParseWarnings),
		}
	}
	return nil
}

// assertExportRow checks that exactly one export row matches Where and
// that it carries the Expect values. The run_id filter is added
// automatically.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertExportRow(ctx context.Context, st *store.Store, runID string, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	where := make(map[string]interface{}, len(a.Where)+1)
	for k, v := range a.Where {
		where[k] = v
	}
	idColumn := "run_id"
	if a.Table == "runs" {
		idColumn = "id"
	}
	where[idColumn] = runID

	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", a.Table, whereSQL)
	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertExportRow,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertExportRow,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertExportRow,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Subset semantics: only fields in Expect are checked. Sorted for a
	// stable first failure.
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		expectedValue := a.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertExportRow,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !rowValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertExportRow,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// buildWhereClause constructs parameterized WHERE clause from where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
//
// Security: Column names are validated against a whitelist pattern to prevent
// SQL injection via identifier interpolation.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML scalar to a SQL-compatible value.
func toSQLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string, int, int64:
		return val
	case bool:
		// Export tables store booleans as 0/1.
		if val {
			return 1
		}
		return 0
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// rowValuesEqual compares a YAML value with a SQLite column value.
// SQLite returns int64 for integers and stores booleans as 0/1.
func rowValuesEqual(expected, actual interface{}) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case []byte:
			return exp == string(act)
		}
		return false
	case int:
		if act, ok := actual.(int64); ok {
			return int64(exp) == act
		}
		return false
	case int64:
		if act, ok := actual.(int64); ok {
			return exp == act
		}
		return false
	case bool:
		if act, ok := actual.(int64); ok {
			return exp == (act != 0)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides the export database for export_row.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result's
// report. Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	if result.Report == nil {
		return []string{"no report to assert on"}
	}
	r := result.Report

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertIssueCount:
			err = assertIssueCount(r, assertion)
		case AssertIssueContains:
			err = assertIssueContains(r, assertion)
		case AssertIssueOrder:
			err = assertIssueOrder(r, assertion)
		case AssertInventory:
			err = assertInventory(r, assertion)
		case AssertNavigationOrder:
			err = assertNavigationOrder(r, assertion)
		case AssertParseWarnings:
			err = assertParseWarnings(r, assertion)
		case AssertPending:
			err = assertPending(r, assertion)
		case AssertExportRow:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: export_row requires database context", i)
			} else {
				err = assertExportRow(actx.Ctx, actx.Store, actx.RunID, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
