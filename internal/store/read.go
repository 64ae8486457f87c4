package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run ID has no row in runs.
var ErrRunNotFound = errors.New("run not found")

// RunRow is the runs row of an export.
type RunRow struct {
	ID       string
	Digest   string
	Complete bool
	Config   string
	Report   string
	Records  int
	Warnings int
}

// Counts is the number of rows per table for one run.
type Counts struct {
	Records       int
	Frames        int
	Attributions  int
	Issues        int
	IssueEvidence int
}

// IssueRow is one issue read back with its evidence.
type IssueRow struct {
	Position int
	Kind     string
	Severity string
	FirstMs  int64
	Subject  string
	Scope    string
	Message  string
	Evidence []int
}

// Run reads the runs row.
func (s *Store) Run(ctx context.Context, runID string) (RunRow, error) {
	var r RunRow
	var complete int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, digest, complete, config, report, records, warnings
		FROM runs WHERE id = ?
	`, runID).Scan(&r.ID, &r.Digest, &complete, &r.Config, &r.Report, &r.Records, &r.Warnings)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRow{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunRow{}, fmt.Errorf("query run: %w", err)
	}
	r.Complete = complete != 0
	return r, nil
}

// Counts returns per-table row counts for a run.
func (s *Store) Counts(ctx context.Context, runID string) (Counts, error) {
	var c Counts
	queries := []struct {
		table string
		dst   *int
	}{
		{"records", &c.Records},
		{"frames", &c.Frames},
		{"attributions", &c.Attributions},
		{"issues", &c.Issues},
		{"issue_evidence", &c.IssueEvidence},
	}
	for _, q := range queries {
		// Table names come from the fixed list above.
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+q.table+" WHERE run_id = ?", runID).Scan(q.dst)
		if err != nil {
			return Counts{}, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return c, nil
}

// Issues returns the issues of a run in report order, each with its
// evidence seqs in order.
func (s *Store) Issues(ctx context.Context, runID string) ([]IssueRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, kind, severity, first_ms, subject, scope, message
		FROM issues
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}

	var issues []IssueRow
	for rows.Next() {
		var is IssueRow
		if err := rows.Scan(&is.Position, &is.Kind, &is.Severity, &is.FirstMs,
			&is.Subject, &is.Scope, &is.Message); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, is)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	rows.Close()

	// SetMaxOpenConns(1): the issues cursor must be closed before the
	// evidence queries run.
	for i := range issues {
		ev, err := s.evidence(ctx, runID, issues[i].Position)
		if err != nil {
			return nil, err
		}
		issues[i].Evidence = ev
	}
	return issues, nil
}

func (s *Store) evidence(ctx context.Context, runID string, pos int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq FROM issue_evidence
		WHERE run_id = ? AND position = ?
		ORDER BY ordinal ASC
	`, runID, pos)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var seqs []int
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}
