package engine

import "github.com/roach88/screentrace/internal/trace"

// Query is the data-access view of a DB_READ, DB_WRITE or HTTP record.
type Query struct {
	Operation   string `json:"operation,omitempty"`
	Rows        int64  `json:"rows,omitempty"`
	HasRows     bool   `json:"has_rows,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	HasDuration bool   `json:"has_duration,omitempty"`
}

// Event is one record placed on the timeline.
//
// Lifecycle events carry the frame they opened, closed or re-entered.
// Every other event carries the scopes it was attributed to.
type Event struct {
	Seq    int             `json:"seq"`
	At     trace.Timestamp `json:"at"`
	Record trace.Record    `json:"-"`

	Lifecycle bool    `json:"lifecycle,omitempty"`
	Frame     FrameID `json:"frame,omitempty"`

	Scopes        []FrameID `json:"scopes,omitempty"`
	Ambiguous     bool      `json:"ambiguous,omitempty"`
	LowConfidence bool      `json:"low_confidence,omitempty"`

	Query *Query `json:"query,omitempty"`
}

// AttributedTo reports whether the event was attributed to id.
func (e Event) AttributedTo(id FrameID) bool {
	for _, s := range e.Scopes {
		if s == id {
			return true
		}
	}
	return false
}

// DurationMs returns the record's `dur` detail.
func (e Event) DurationMs() (int64, bool) {
	if e.Query != nil {
		return e.Query.DurationMs, e.Query.HasDuration
	}
	return e.Record.DurationMs()
}

// TransitionAction is one step of the navigation sequence.
type TransitionAction string

const (
	ActionOpen       TransitionAction = "open"
	ActionReenter    TransitionAction = "reenter"
	ActionClose      TransitionAction = "close"
	ActionBackground TransitionAction = "background"
	ActionForeground TransitionAction = "foreground"
)

// Transition is a scope change. Background and foreground transitions
// have no frame.
type Transition struct {
	Seq     int              `json:"seq"`
	At      trace.Timestamp  `json:"at"`
	Action  TransitionAction `json:"action"`
	Kind    FrameKind        `json:"kind,omitempty"`
	Subject string           `json:"subject,omitempty"`
	Host    string           `json:"host,omitempty"`
	Frame   FrameID          `json:"frame,omitempty"`

	Implicit               bool `json:"implicit,omitempty"`
	LowConfidence          bool `json:"low_confidence,omitempty"`
	ReturnedFromBackground bool `json:"returned_from_background,omitempty"`
}

// SignalKind classifies a tracker signal.
type SignalKind string

const (
	// SignalUnmatchedClose is a pause/destroy with no matching open frame.
	SignalUnmatchedClose SignalKind = "unmatched_close"

	// SignalLowConfidenceHost is a component attached by the host fallback.
	SignalLowConfidenceHost SignalKind = "low_confidence_host"
)

// Signal is an inconsistency the tracker noticed and stepped over.
type Signal struct {
	Kind    SignalKind      `json:"kind"`
	Seq     int             `json:"seq"`
	At      trace.Timestamp `json:"at"`
	Code    string          `json:"code"`
	Subject string          `json:"subject"`
	Host    string          `json:"host,omitempty"`
	Frame   FrameID         `json:"frame,omitempty"`
}

// Stats counts what happened to the input.
type Stats struct {
	Lines         int `json:"lines"`
	Records       int `json:"records"`
	RawRecords    int `json:"raw_records"`
	ParseWarnings int `json:"parse_warnings"`
	OutOfOrder    int `json:"out_of_order"`
	MidnightWraps int `json:"midnight_wraps"`
}

// Timeline is the fully correlated view of a run (or of the prefix seen
// so far). It is a value: nothing in the engine changes a Timeline after
// handing it out.
type Timeline struct {
	Events      []Event              `json:"events"`
	Frames      []Frame              `json:"frames"`
	Transitions []Transition         `json:"transitions"`
	Signals     []Signal             `json:"signals"`
	Warnings    []trace.ParseWarning `json:"warnings"`
	Stats       Stats                `json:"stats"`

	// Digest is the content hash of the accepted records.
	Digest string `json:"digest"`

	// Complete is false for partial snapshots taken mid-run.
	Complete bool `json:"complete"`

	StartAt trace.Timestamp `json:"start_at"`
	EndAt   trace.Timestamp `json:"end_at"`
}

// Frame looks up a frame by ID. BackgroundID returns the synthetic frame.
func (tl *Timeline) Frame(id FrameID) (Frame, bool) {
	if id == BackgroundID {
		return backgroundFrame(), true
	}
	// IDs come from a per-run clock starting at 1, in append order.
	i := int(id) - 1
	if i < 0 || i >= len(tl.Frames) || tl.Frames[i].ID != id {
		return Frame{}, false
	}
	return tl.Frames[i], true
}

// Label returns the display label for a frame ID.
func (tl *Timeline) Label(id FrameID) string {
	f, ok := tl.Frame(id)
	if !ok {
		return "?"
	}
	return f.Label()
}

// Hosted returns the IDs of COMPONENT frames attached to host.
func (tl *Timeline) Hosted(host FrameID) []FrameID {
	var ids []FrameID
	for _, f := range tl.Frames {
		if f.Kind == KindComponent && f.HostID == host && host != BackgroundID {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// Event returns the event at seq.
func (tl *Timeline) Event(seq int) (Event, bool) {
	if seq < 0 || seq >= len(tl.Events) {
		return Event{}, false
	}
	return tl.Events[seq], true
}
