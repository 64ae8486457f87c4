// Package harness runs scenario files against the analysis pipeline.
//
// A scenario pairs a trace with assertions about the report it produces.
// Scenarios are how rule behavior is pinned down: each one is a small,
// readable capture plus the issues, inventory or navigation it must yield.
//
// # Scenario Format
//
//	name: duplicate_users
//	description: "Three identical reads inside one visit of Main"
//	config:
//	  slow_call_threshold_ms: 500
//	trace: |
//	  10:00:00.000|ACT_RESUME|Main
//	  10:00:00.100|DB_READ|Users|rows=50
//	  10:00:00.200|DB_READ|Users|rows=50
//	  10:00:00.300|DB_READ|Users|rows=50
//	  10:00:00.400|ACT_PAUSE|Main
//	assertions:
//	  - type: issue_count
//	    kind: DuplicateQuery
//	    count: 1
//	  - type: export_row
//	    table: issues
//	    where: { kind: DuplicateQuery }
//	    expect: { severity: MEDIUM }
//
// trace_file may replace trace; it is resolved relative to the scenario
// file. expect_error turns the scenario into a hard-failure check: the
// run must fail with an error containing that text.
//
// # Assertion Types
//
//   - issue_count: exactly count issues, optionally filtered by kind and severity
//   - issue_contains: at least one issue matching kind, severity, subject and scope
//   - issue_order: the first issues of each listed kind appear in that order
//   - inventory: the inventory subjects, exactly and in order
//   - navigation_order: "action [subject]" steps appear in order, gaps allowed
//   - parse_warnings: exactly count skipped lines
//   - pending: the labels of unterminated frames, exactly and in order
//   - export_row: one row of the SQLite export matches expect
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run ID (scenario.run_id, or
// "test-run-default") and a fresh in-memory export database, so golden
// reports compare byte for byte.
package harness
