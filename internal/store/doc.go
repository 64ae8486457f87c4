// Package store exports one analysis run to a SQLite database for ad-hoc
// SQL.
//
// Each export is a fresh file: Create removes whatever was at the path.
// Nothing in screentrace reads an export back as input; runs stay
// independent.
//
// # Tables
//
//   - runs: one row, with the input digest, config and report JSON
//   - records: every accepted record, in timeline order
//   - frames: every scope frame with its interval
//   - attributions: (record seq, frame) pairs from the correlator
//   - issues, issue_evidence: detector output and its backing records
//
// # Ordering
//
// Every table carries the timeline seq or an explicit position column.
// Read queries ORDER BY those columns, never by rowid or timestamps, so
// two exports of the same input read back identically.
//
// records.details holds canonical JSON from trace.MarshalCanonical, so
// it matches the bytes hashed into records.record_id. runs.config and
// runs.report hold plain encoding/json output with HTML escaping off.
package store
