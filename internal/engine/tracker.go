package engine

import (
	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/trace"
)

// Worker states that open and close a WORKER frame. Anything else is a
// point event on the worker.
var (
	workerOpenStates = map[string]bool{
		"START": true, "STARTED": true, "ENQUEUED": true, "RUNNING": true,
	}
	workerCloseStates = map[string]bool{
		"SUCCEEDED": true, "SUCCESS": true, "FAILED": true, "FAILURE": true,
		"CANCELLED": true, "STOPPED": true, "DONE": true, "COMPLETED": true,
	}
)

// TrackerConfig is the subset of the run configuration the tracker reads.
type TrackerConfig struct {
	BackgroundTimeoutMs int64
	HostFallback        string
}

// trackerConfig extracts the tracker's settings from a run config.
func trackerConfig(cfg config.Config) TrackerConfig {
	return TrackerConfig{
		BackgroundTimeoutMs: cfg.BackgroundTimeoutMs,
		HostFallback:        cfg.HostFallback,
	}
}

// Tracker replays lifecycle records into a set of open frames.
//
// Open frames are a set, not a stack: any number of components may be open
// under one screen, but never two with the same (subject, host). The
// tracker owns every Frame it creates; callers receive copies.
//
// Thread-safety: Tracker is NOT safe for concurrent use. The Engine drives
// it from a single goroutine.
type Tracker struct {
	cfg   TrackerConfig
	clock *Clock

	frames      []*Frame // index is ID-1
	openTop     []*Frame // open order
	openComp    []*Frame // open order, all hosts
	openWorkers []*Frame // open order

	// implicitComp holds components closed with their host that have not
	// logged their own close yet.
	implicitComp []*Frame

	seenTop  map[string]bool
	seenComp map[string]bool

	// pausedAt is the time of the last screen pause not yet followed by a
	// screen resume.
	pausedAt     trace.Timestamp
	pausePending bool
	background   bool

	transitions []Transition
	signals     []Signal
}

// NewTracker creates a tracker with no open frames.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.BackgroundTimeoutMs <= 0 {
		cfg.BackgroundTimeoutMs = config.DefaultBackgroundTimeoutMs
	}
	if cfg.HostFallback == "" {
		cfg.HostFallback = config.HostFallbackMostRecent
	}
	return &Tracker{
		cfg:      cfg,
		clock:    NewClock(),
		seenTop:  make(map[string]bool),
		seenComp: make(map[string]bool),
	}
}

// Apply advances the tracker to at and applies rec. It returns the frame
// the record opened, closed or re-entered, or 0 when the record touched no
// frame. Non-lifecycle records other than WORKER only advance time.
func (t *Tracker) Apply(seq int, rec trace.Record, at trace.Timestamp) FrameID {
	t.advance(seq, at)

	switch rec.Code {
	case trace.CodeActCreate, trace.CodeActResume:
		return t.openTopLevel(seq, rec, at)
	case trace.CodeActPause:
		return t.pauseTopLevel(seq, rec, at)
	case trace.CodeActDestroy:
		return t.destroyTopLevel(seq, rec, at)
	case trace.CodeFragResume:
		return t.openComponent(seq, rec, at)
	case trace.CodeFragPause, trace.CodeFragDestroyView:
		return t.closeComponent(seq, rec, at)
	case trace.CodeWorker:
		return t.worker(seq, rec, at)
	}
	return 0
}

// Snapshot returns the frames open right now.
func (t *Tracker) Snapshot(at trace.Timestamp) Snapshot {
	return Snapshot{
		At:         at,
		TopLevel:   copyFrames(t.openTop),
		Components: copyFrames(t.openComp),
		Workers:    copyFrames(t.openWorkers),
		Background: t.background,
	}
}

// Background reports whether the run is currently backgrounded.
func (t *Tracker) Background() bool {
	return t.background
}

// Frames returns copies of every frame created so far, in ID order.
func (t *Tracker) Frames() []Frame {
	return copyFrames(t.frames)
}

// Transitions returns the navigation sequence so far.
func (t *Tracker) Transitions() []Transition {
	return t.transitions[:len(t.transitions):len(t.transitions)]
}

// Signals returns the lifecycle inconsistencies seen so far.
func (t *Tracker) Signals() []Signal {
	return t.signals[:len(t.signals):len(t.signals)]
}

// OpenFrames returns the number of open frames of each kind.
func (t *Tracker) OpenFrames() (top, comp, workers int) {
	return len(t.openTop), len(t.openComp), len(t.openWorkers)
}

// advance moves the run into BACKGROUND once the last screen pause is
// older than the timeout and no screen is open.
func (t *Tracker) advance(seq int, at trace.Timestamp) {
	if !t.pausePending || t.background || len(t.openTop) > 0 {
		return
	}
	if int64(at-t.pausedAt) <= t.cfg.BackgroundTimeoutMs {
		return
	}
	t.background = true
	t.transitions = append(t.transitions, Transition{
		Seq:    seq,
		At:     t.pausedAt + trace.Timestamp(t.cfg.BackgroundTimeoutMs),
		Action: ActionBackground,
		Kind:   KindBackground,
	})
}

func (t *Tracker) openTopLevel(seq int, rec trace.Record, at trace.Timestamp) FrameID {
	returning := false
	if rec.Code == trace.CodeActResume {
		returning = t.background
		t.background = false
		t.pausePending = false
		if returning {
			t.transitions = append(t.transitions, Transition{
				Seq:    seq,
				At:     at,
				Action: ActionForeground,
				Kind:   KindBackground,
			})
		}
	}
	t.seenTop[rec.Subject] = true

	if f := lastMatch(t.openTop, func(f *Frame) bool { return f.Subject == rec.Subject }); f != nil {
		f.Reentries++
		if returning {
			f.ReturnedFromBackground = true
			f.BackgroundReturnAt = at
		}
		t.transition(seq, at, ActionReenter, f, returning)
		return f.ID
	}

	f := t.newFrame(KindTopLevel, rec.Subject, seq, at)
	if returning {
		f.ReturnedFromBackground = true
		f.BackgroundReturnAt = at
	}
	t.openTop = append(t.openTop, f)
	t.transition(seq, at, ActionOpen, f, returning)
	return f.ID
}

func (t *Tracker) pauseTopLevel(seq int, rec trace.Record, at trace.Timestamp) FrameID {
	// An unmatched pause still starts the background clock: the app went
	// somewhere, we just missed it arriving.
	t.pausedAt = at
	t.pausePending = true

	f := lastMatch(t.openTop, func(f *Frame) bool { return f.Subject == rec.Subject })
	if f == nil {
		t.signal(SignalUnmatchedClose, seq, at, rec, 0)
		return 0
	}
	t.closeTopLevel(seq, at, f)
	return f.ID
}

func (t *Tracker) destroyTopLevel(seq int, rec trace.Record, at trace.Timestamp) FrameID {
	f := lastMatch(t.openTop, func(f *Frame) bool { return f.Subject == rec.Subject })
	if f != nil {
		t.pausedAt = at
		t.pausePending = true
		t.closeTopLevel(seq, at, f)
		return f.ID
	}
	if !t.seenTop[rec.Subject] {
		t.signal(SignalUnmatchedClose, seq, at, rec, 0)
	}
	return 0
}

func (t *Tracker) closeTopLevel(seq int, at trace.Timestamp, f *Frame) {
	for _, c := range copyPtrs(t.openComp) {
		if c.HostID == f.ID {
			t.openComp = remove(t.openComp, c)
			t.close(c, seq, at, true)
			t.implicitComp = append(t.implicitComp, c)
		}
	}
	t.openTop = remove(t.openTop, f)
	t.close(f, seq, at, false)
}

func (t *Tracker) openComponent(seq int, rec trace.Record, at trace.Timestamp) FrameID {
	declared := rec.Host()
	t.seenComp[rec.Subject] = true

	var (
		hostID FrameID
		host   = declared
		low    bool
	)
	if h := lastMatch(t.openTop, func(f *Frame) bool { return declared != "" && f.Subject == declared }); h != nil {
		hostID, host = h.ID, h.Subject
	} else {
		low = true
		if t.cfg.HostFallback == config.HostFallbackMostRecent && len(t.openTop) > 0 {
			h := t.openTop[len(t.openTop)-1]
			hostID, host = h.ID, h.Subject
		}
	}

	if f := lastMatch(t.openComp, func(f *Frame) bool { return f.Subject == rec.Subject && f.Host == host }); f != nil {
		f.Reentries++
		t.transition(seq, at, ActionReenter, f, false)
		return f.ID
	}

	if stale := lastMatch(t.implicitComp, func(f *Frame) bool { return f.Subject == rec.Subject && f.Host == host }); stale != nil {
		t.implicitComp = remove(t.implicitComp, stale)
	}

	f := t.newFrame(KindComponent, rec.Subject, seq, at)
	f.Host = host
	f.HostID = hostID
	f.DeclaredHost = declared
	f.LowConfidence = low
	t.openComp = append(t.openComp, f)
	t.transition(seq, at, ActionOpen, f, false)
	if low {
		t.signal(SignalLowConfidenceHost, seq, at, rec, f.ID)
	}
	return f.ID
}

func (t *Tracker) closeComponent(seq int, rec trace.Record, at trace.Timestamp) FrameID {
	declared := rec.Host()
	match := func(f *Frame) bool {
		if f.Subject != rec.Subject {
			return false
		}
		return declared == "" || f.Host == declared || f.DeclaredHost == declared
	}
	if f := lastMatch(t.openComp, match); f != nil {
		t.openComp = remove(t.openComp, f)
		t.close(f, seq, at, false)
		return f.ID
	}
	// The host's close already ended the frame; this is its own late close.
	if f := lastMatch(t.implicitComp, match); f != nil {
		t.implicitComp = remove(t.implicitComp, f)
		return f.ID
	}
	// DESTROY_VIEW normally follows a PAUSE that already closed the frame.
	if rec.Code == trace.CodeFragDestroyView && t.seenComp[rec.Subject] {
		return 0
	}
	t.signal(SignalUnmatchedClose, seq, at, rec, 0)
	return 0
}

func (t *Tracker) worker(seq int, rec trace.Record, at trace.Timestamp) FrameID {
	state := rec.State()
	f := lastMatch(t.openWorkers, func(f *Frame) bool { return f.Subject == rec.Subject })

	switch {
	case workerOpenStates[state]:
		if f != nil {
			f.State = state
			f.Reentries++
			t.transition(seq, at, ActionReenter, f, false)
			return f.ID
		}
		f = t.newFrame(KindWorker, rec.Subject, seq, at)
		f.State = state
		t.openWorkers = append(t.openWorkers, f)
		t.transition(seq, at, ActionOpen, f, false)
		return f.ID
	case workerCloseStates[state]:
		if f == nil {
			return 0
		}
		f.State = state
		t.openWorkers = remove(t.openWorkers, f)
		t.close(f, seq, at, false)
		return f.ID
	}
	if f != nil {
		f.State = state
		return f.ID
	}
	return 0
}

func (t *Tracker) newFrame(kind FrameKind, subject string, seq int, at trace.Timestamp) *Frame {
	f := &Frame{
		ID:       FrameID(t.clock.Next()),
		Kind:     kind,
		Subject:  subject,
		OpenedAt: at,
		OpenSeq:  seq,
	}
	t.frames = append(t.frames, f)
	return f
}

func (t *Tracker) close(f *Frame, seq int, at trace.Timestamp, implicit bool) {
	f.Closed = true
	f.ClosedAt = at
	f.CloseSeq = seq
	f.Implicit = implicit
	t.transitions = append(t.transitions, Transition{
		Seq:      seq,
		At:       at,
		Action:   ActionClose,
		Kind:     f.Kind,
		Subject:  f.Subject,
		Host:     f.Host,
		Frame:    f.ID,
		Implicit: implicit,
	})
}

func (t *Tracker) transition(seq int, at trace.Timestamp, action TransitionAction, f *Frame, returning bool) {
	t.transitions = append(t.transitions, Transition{
		Seq:                    seq,
		At:                     at,
		Action:                 action,
		Kind:                   f.Kind,
		Subject:                f.Subject,
		Host:                   f.Host,
		Frame:                  f.ID,
		LowConfidence:          f.LowConfidence,
		ReturnedFromBackground: returning,
	})
}

func (t *Tracker) signal(kind SignalKind, seq int, at trace.Timestamp, rec trace.Record, id FrameID) {
	t.signals = append(t.signals, Signal{
		Kind:    kind,
		Seq:     seq,
		At:      at,
		Code:    rec.Name(),
		Subject: rec.Subject,
		Host:    rec.Host(),
		Frame:   id,
	})
}

// lastMatch returns the most recently opened frame satisfying ok.
func lastMatch(frames []*Frame, ok func(*Frame) bool) *Frame {
	for i := len(frames) - 1; i >= 0; i-- {
		if ok(frames[i]) {
			return frames[i]
		}
	}
	return nil
}

func remove(frames []*Frame, f *Frame) []*Frame {
	for i, x := range frames {
		if x == f {
			return append(frames[:i:i], frames[i+1:]...)
		}
	}
	return frames
}

func copyPtrs(frames []*Frame) []*Frame {
	return append([]*Frame(nil), frames...)
}

func copyFrames(frames []*Frame) []Frame {
	if len(frames) == 0 {
		return nil
	}
	out := make([]Frame, len(frames))
	for i, f := range frames {
		out[i] = *f
	}
	return out
}
