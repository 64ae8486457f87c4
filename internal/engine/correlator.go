package engine

import "github.com/roach88/screentrace/internal/trace"

// Correlator attaches open scopes to non-lifecycle records.
//
// It reads snapshots and never touches frames. Attribution order:
//  1. every open COMPONENT frame (ambiguous when more than one)
//  2. otherwise the foreground TOP_LEVEL frame
//  3. otherwise nothing
//
// WORKER, SEC_GATE and SETTING records additionally go to BACKGROUND when
// no TOP_LEVEL frame is open.
type Correlator struct{}

// Attribution is the result of correlating one record.
type Attribution struct {
	Scopes        []FrameID
	Ambiguous     bool
	LowConfidence bool
}

// Attribute returns the scopes rec belongs to under snap.
func (Correlator) Attribute(rec trace.Record, snap Snapshot) Attribution {
	var a Attribution
	switch {
	case len(snap.Components) > 0:
		a.Scopes = make([]FrameID, 0, len(snap.Components))
		for _, f := range snap.Components {
			a.Scopes = append(a.Scopes, f.ID)
			a.LowConfidence = a.LowConfidence || f.LowConfidence
		}
		a.Ambiguous = len(snap.Components) > 1
	default:
		if f, ok := snap.Foreground(); ok {
			a.Scopes = []FrameID{f.ID}
		}
	}
	if rec.Code.AttributesToBackground() && len(snap.TopLevel) == 0 {
		a.Scopes = append(a.Scopes, BackgroundID)
	}
	return a
}

// Correlate builds the timeline event for a non-lifecycle record.
func (c Correlator) Correlate(seq int, rec trace.Record, at trace.Timestamp, snap Snapshot) Event {
	a := c.Attribute(rec, snap)
	ev := Event{
		Seq:           seq,
		At:            at,
		Record:        rec,
		Scopes:        a.Scopes,
		Ambiguous:     a.Ambiguous,
		LowConfidence: a.LowConfidence,
	}
	if rec.Code.IsQuery() {
		q := &Query{Operation: rec.Operation()}
		q.Rows, q.HasRows = rec.Rows()
		q.DurationMs, q.HasDuration = rec.DurationMs()
		ev.Query = q
	}
	return ev
}
