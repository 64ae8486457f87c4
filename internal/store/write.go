package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/report"
	"github.com/roach88/screentrace/internal/trace"
)

// ErrNoTimeline is returned when an Export has nothing to write.
var ErrNoTimeline = errors.New("export has no timeline")

// Export is everything written for one run.
type Export struct {
	RunID    string
	Timeline *engine.Timeline
	Report   *report.Report
	Config   config.Config
}

// WriteRun writes a complete run in a single transaction. Either every
// table gets its rows or none does.
func (s *Store) WriteRun(ctx context.Context, x Export) (err error) {
	if x.Timeline == nil || x.Report == nil {
		return ErrNoTimeline
	}
	if x.RunID == "" {
		return fmt.Errorf("export run ID is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = writeRunRow(ctx, tx, x); err != nil {
		return err
	}
	if err = writeRecords(ctx, tx, x.RunID, x.Timeline); err != nil {
		return err
	}
	if err = writeFrames(ctx, tx, x.RunID, x.Timeline); err != nil {
		return err
	}
	if err = writeIssues(ctx, tx, x.RunID, x.Report.Issues); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

func writeRunRow(ctx context.Context, tx *sql.Tx, x Export) error {
	cfgJSON, err := marshalJSON(x.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	reportJSON, err := marshalJSON(x.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, digest, complete, config, report, records, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, x.RunID, x.Timeline.Digest, boolToInt(x.Timeline.Complete), cfgJSON, reportJSON,
		len(x.Timeline.Events), x.Timeline.Stats.ParseWarnings)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func writeRecords(ctx context.Context, tx *sql.Tx, runID string, tl *engine.Timeline) error {
	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (run_id, seq, record_id, line, at_ms, code, raw_code, subject, details, lifecycle, frame_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare records: %w", err)
	}
	defer recStmt.Close()

	attrStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attributions (run_id, seq, frame_id, label, ambiguous, low_confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare attributions: %w", err)
	}
	defer attrStmt.Close()

	for _, ev := range tl.Events {
		rec := ev.Record
		id, err := trace.RecordID(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", ev.Seq, err)
		}
		details, err := marshalDetails(rec.Details)
		if err != nil {
			return fmt.Errorf("record %d: %w", ev.Seq, err)
		}
		frame := sql.NullInt64{}
		if ev.Lifecycle {
			frame = nullFrame(ev.Frame)
		}
		if _, err := recStmt.ExecContext(ctx, runID, ev.Seq, id, rec.Line, ev.At.Millis(),
			string(rec.Code), rec.Name(), rec.Subject, details, boolToInt(ev.Lifecycle), frame); err != nil {
			return fmt.Errorf("insert record %d: %w", ev.Seq, err)
		}

		for _, scope := range ev.Scopes {
			if _, err := attrStmt.ExecContext(ctx, runID, ev.Seq, int64(scope), tl.Label(scope),
				boolToInt(ev.Ambiguous), boolToInt(ev.LowConfidence)); err != nil {
				return fmt.Errorf("insert attribution %d/%d: %w", ev.Seq, scope, err)
			}
		}
	}
	return nil
}

func writeFrames(ctx context.Context, tx *sql.Tx, runID string, tl *engine.Timeline) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frames (run_id, id, kind, subject, label, host, host_id, declared_host,
			opened_ms, open_seq, closed_ms, close_seq, implicit, low_confidence,
			from_background, reentries, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare frames: %w", err)
	}
	defer stmt.Close()

	for _, f := range tl.Frames {
		var closedMs, closeSeq sql.NullInt64
		if f.Closed {
			closedMs = sql.NullInt64{Int64: f.ClosedAt.Millis(), Valid: true}
			closeSeq = sql.NullInt64{Int64: int64(f.CloseSeq), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, int64(f.ID), string(f.Kind), f.Subject, f.Label(),
			f.Host, nullFrame(f.HostID), f.DeclaredHost, f.OpenedAt.Millis(), f.OpenSeq,
			closedMs, closeSeq, boolToInt(f.Implicit), boolToInt(f.LowConfidence),
			boolToInt(f.ReturnedFromBackground), f.Reentries, f.State); err != nil {
			return fmt.Errorf("insert frame %d: %w", f.ID, err)
		}
	}
	return nil
}

func writeIssues(ctx context.Context, tx *sql.Tx, runID string, issues []report.Issue) error {
	issueStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issues (run_id, position, kind, severity, first_ms, subject, scope, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare issues: %w", err)
	}
	defer issueStmt.Close()

	evStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issue_evidence (run_id, position, ordinal, seq)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare issue evidence: %w", err)
	}
	defer evStmt.Close()

	for pos, is := range issues {
		if _, err := issueStmt.ExecContext(ctx, runID, pos, string(is.Kind), string(is.Severity),
			is.FirstSeenAt.Millis(), is.Subject, is.Scope, is.Message); err != nil {
			return fmt.Errorf("insert issue %d: %w", pos, err)
		}
		for ord, seq := range is.Evidence {
			if _, err := evStmt.ExecContext(ctx, runID, pos, ord, seq); err != nil {
				return fmt.Errorf("insert issue %d evidence: %w", pos, err)
			}
		}
	}
	return nil
}
