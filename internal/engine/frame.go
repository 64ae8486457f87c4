package engine

import "github.com/roach88/screentrace/internal/trace"

// FrameKind classifies a scope frame.
type FrameKind string

const (
	KindTopLevel  FrameKind = "TOP_LEVEL"
	KindComponent FrameKind = "COMPONENT"
	KindWorker    FrameKind = "WORKER"

	// KindBackground is the synthetic scope that catches worker, security
	// and setting events while no screen is open.
	KindBackground FrameKind = "BACKGROUND"
)

// FrameID identifies a frame within one run. Real frames start at 1.
type FrameID int64

// BackgroundID is the ID of the synthetic BACKGROUND scope.
const BackgroundID FrameID = 0

// BackgroundLabel is the display label of the BACKGROUND scope.
const BackgroundLabel = "BACKGROUND"

// Frame is one lifecycle-bounded region of visibility.
//
// A frame covers a single open/close interval. Re-opening a screen after it
// closed creates a new frame; a RESUME while it is still open is a re-entry
// of the same frame.
type Frame struct {
	ID      FrameID   `json:"id"`
	Kind    FrameKind `json:"kind"`
	Subject string    `json:"subject"`

	// Host is the subject of the enclosing TOP_LEVEL frame (COMPONENT only).
	// After a fallback it names the screen the component was attached to;
	// DeclaredHost keeps what the record said.
	Host         string  `json:"host,omitempty"`
	HostID       FrameID `json:"host_id,omitempty"`
	DeclaredHost string  `json:"declared_host,omitempty"`

	OpenedAt trace.Timestamp `json:"opened_at"`
	OpenSeq  int             `json:"open_seq"`

	Closed   bool            `json:"closed"`
	ClosedAt trace.Timestamp `json:"closed_at,omitempty"`
	CloseSeq int             `json:"close_seq,omitempty"`

	// Implicit is set when the frame was closed because its host closed.
	Implicit bool `json:"implicit,omitempty"`

	// LowConfidence marks a component attached by the host fallback.
	LowConfidence bool `json:"low_confidence,omitempty"`

	// ReturnedFromBackground marks a screen opened (or re-entered) after the
	// run sat in the background longer than the background timeout.
	ReturnedFromBackground bool            `json:"returned_from_background,omitempty"`
	BackgroundReturnAt     trace.Timestamp `json:"background_return_at,omitempty"`

	Reentries int `json:"reentries,omitempty"`

	// State is the last worker state seen (WORKER only).
	State string `json:"state,omitempty"`
}

// Label names the frame the way reports group it: the subject for
// screens and workers, host/subject for components.
func (f Frame) Label() string {
	switch f.Kind {
	case KindComponent:
		if f.Host == "" {
			return "?/" + f.Subject
		}
		return f.Host + "/" + f.Subject
	case KindBackground:
		return BackgroundLabel
	}
	return f.Subject
}

// Contains reports whether at falls inside the frame's interval. Open
// frames extend to the end of the run.
func (f Frame) Contains(at trace.Timestamp) bool {
	if at < f.OpenedAt {
		return false
	}
	return !f.Closed || at <= f.ClosedAt
}

// backgroundFrame is the synthetic frame returned for BackgroundID.
func backgroundFrame() Frame {
	return Frame{ID: BackgroundID, Kind: KindBackground, Subject: BackgroundLabel}
}

// Snapshot is the set of frames open at one instant.
type Snapshot struct {
	At         trace.Timestamp
	TopLevel   []Frame // in open order
	Components []Frame // in open order, across all hosts
	Workers    []Frame // in open order

	// Background is true once the run has been without a screen for longer
	// than the background timeout.
	Background bool
}

// Foreground returns the most recently opened TOP_LEVEL frame.
func (s Snapshot) Foreground() (Frame, bool) {
	if len(s.TopLevel) == 0 {
		return Frame{}, false
	}
	return s.TopLevel[len(s.TopLevel)-1], true
}

// OpenCount returns the number of open COMPONENT frames under host.
func (s Snapshot) OpenCount(host string) int {
	n := 0
	for _, f := range s.Components {
		if f.Host == host {
			n++
		}
	}
	return n
}
