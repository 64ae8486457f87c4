package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/trace"
)

// halfDay is the largest backwards step still read as out-of-order rather
// than as a midnight crossing.
const halfDay = trace.DayMillis / 2

// Observer receives counters as the engine works. internal/metrics
// implements it; the default does nothing.
type Observer interface {
	ObserveRecord(code string)
	ObserveWarning()
	ObserveFrame(kind FrameKind)
}

type nopObserver struct{}

func (nopObserver) ObserveRecord(string)   {}
func (nopObserver) ObserveWarning()        {}
func (nopObserver) ObserveFrame(FrameKind) {}

// Engine turns a stream of trace lines into a Timeline.
//
// Thread-safety model:
//   - Enqueue(), RequestSnapshot(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - FeedLine(), Feed(), Snapshot(), Finish(): the feeding goroutine only;
//     do not mix with Run() while it is running
//
// INVARIANTS:
//   - events are appended in feed order; seq is the index
//   - effective timestamps never decrease
//   - a Timeline handed out is never written again
type Engine struct {
	cfg      config.Config
	log      *zap.Logger
	observer Observer

	parser  *trace.Parser
	tracker *Tracker
	corr    Correlator
	queue   *lineQueue

	lineNo   int
	events   []Event
	warnings []trace.ParseWarning
	stats    Stats
	digest   trace.Digest

	offset   trace.Timestamp // added to raw times after midnight wraps
	lastAt   trace.Timestamp
	started  bool
	startAt  trace.Timestamp
	finished bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger. The default discards everything.
func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithObserver sets the counter sink.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// New creates an Engine for one run. cfg is copied; unset fields take
// their defaults.
func New(cfg config.Config, opts ...EngineOption) *Engine {
	cfg.ApplyDefaults()
	e := &Engine{
		cfg:      cfg,
		log:      zap.NewNop(),
		observer: nopObserver{},
		parser:   trace.NewParser(cfg.Marker),
		tracker:  NewTracker(trackerConfig(cfg)),
		queue:    newLineQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration of the run.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// FeedLine parses and processes one raw line.
//
// Malformed lines are recorded as warnings and skipped. With tolerant
// parsing off, the first malformed line returns a *StrictParseError instead
// and the line is not processed.
func (e *Engine) FeedLine(line string) error {
	if e.finished {
		return ErrStopped
	}
	e.lineNo++
	e.stats.Lines++

	rec, ok, err := e.parser.Parse(e.lineNo, line)
	if err != nil {
		var w *trace.ParseWarning
		if !errors.As(err, &w) {
			return err
		}
		if !e.cfg.Tolerant() {
			return &StrictParseError{Warning: w}
		}
		e.warnings = append(e.warnings, *w)
		e.stats.ParseWarnings++
		e.observer.ObserveWarning()
		e.log.Debug("skipping malformed line",
			zap.Int("line", w.Line),
			zap.String("reason", w.Reason),
		)
		return nil
	}
	if !ok {
		return nil
	}
	return e.feed(rec)
}

// Feed processes an already-parsed record.
func (e *Engine) Feed(rec trace.Record) error {
	if e.finished {
		return ErrStopped
	}
	return e.feed(rec)
}

func (e *Engine) feed(rec trace.Record) error {
	if err := e.digest.Add(rec); err != nil {
		return err
	}
	at := e.normalize(rec.Time)
	seq := len(e.events)

	e.stats.Records++
	if rec.Code == trace.CodeRaw {
		e.stats.RawRecords++
	}
	e.observer.ObserveRecord(rec.Name())

	before := len(e.tracker.frames)
	id := e.tracker.Apply(seq, rec, at)
	for _, f := range e.tracker.frames[before:] {
		e.observer.ObserveFrame(f.Kind)
		if f.LowConfidence {
			e.log.Debug("component attached by host fallback",
				zap.String("subject", f.Subject),
				zap.String("declared_host", f.DeclaredHost),
				zap.String("host", f.Host),
				zap.String("strategy", e.cfg.HostFallback),
			)
		}
	}

	var ev Event
	if rec.Code.IsLifecycle() {
		ev = Event{Seq: seq, At: at, Record: rec, Lifecycle: true, Frame: id}
	} else {
		ev = e.corr.Correlate(seq, rec, at, e.tracker.Snapshot(at))
		ev.Frame = id
	}
	e.events = append(e.events, ev)
	return nil
}

// normalize maps a time-of-day to the run's monotonic effective time.
func (e *Engine) normalize(t trace.Timestamp) trace.Timestamp {
	at := t + e.offset
	if !e.started {
		e.started = true
		e.startAt = at
		e.lastAt = at
		return at
	}
	if at < e.lastAt {
		if e.lastAt-at > halfDay {
			e.offset += trace.DayMillis
			at += trace.DayMillis
			e.stats.MidnightWraps++
		} else {
			at = e.lastAt
			e.stats.OutOfOrder++
		}
	}
	e.lastAt = at
	return at
}

// Snapshot returns the timeline of everything fed so far. Open frames stay
// open and the result is marked incomplete.
func (e *Engine) Snapshot() *Timeline {
	return e.timeline(false)
}

// Finish ends the run and returns the complete timeline. Frames still open
// are unterminated. Further feeds return ErrStopped.
func (e *Engine) Finish() *Timeline {
	if !e.finished {
		e.finished = true
		e.queue.Close()
		top, comp, workers := e.tracker.OpenFrames()
		e.log.Info("run finished",
			zap.Int("lines", e.stats.Lines),
			zap.Int("records", e.stats.Records),
			zap.Int("warnings", e.stats.ParseWarnings),
			zap.Int("unterminated", top+comp+workers),
		)
	}
	return e.timeline(true)
}

func (e *Engine) timeline(complete bool) *Timeline {
	n := len(e.events)
	tl := &Timeline{
		Events:      e.events[:n:n],
		Frames:      e.tracker.Frames(),
		Transitions: e.tracker.Transitions(),
		Signals:     e.tracker.Signals(),
		Warnings:    e.warnings[:len(e.warnings):len(e.warnings)],
		Stats:       e.stats,
		Digest:      e.digest.Sum(),
		Complete:    complete,
	}
	if n > 0 {
		tl.StartAt = e.startAt
		tl.EndAt = e.lastAt
	}
	return tl
}

// Enqueue submits a raw line to the Run loop.
// Returns false once the engine is stopped.
func (e *Engine) Enqueue(line string) bool {
	return e.queue.Enqueue(item{line: line})
}

// RequestSnapshot asks the Run loop for a partial timeline, taken after
// every line enqueued before the request.
func (e *Engine) RequestSnapshot(ctx context.Context) (*Timeline, error) {
	reply := make(chan *Timeline, 1)
	if !e.queue.Enqueue(item{reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case tl := <-reply:
		return tl, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop closes the queue. Run processes what is already queued and returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Run is the single-writer loop draining the queue.
//
// It returns nil after Stop once the queue is empty, ctx.Err() when ctx is
// cancelled (after draining lines already queued), or the first
// *StrictParseError. Cancellation is not a failure: call Finish afterwards
// for a best-effort timeline.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Debug("engine loop starting")

	for {
		if it, ok := e.queue.TryDequeue(); ok {
			if err := e.process(it); err != nil {
				e.queue.Close()
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Debug("engine loop stopping: context cancelled")
			e.queue.Close()
			if err := e.drain(); err != nil {
				return err
			}
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue.
			if e.queue.isClosed() && e.queue.Len() == 0 {
				e.log.Debug("engine loop stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) drain() error {
	for {
		it, ok := e.queue.TryDequeue()
		if !ok {
			return nil
		}
		if err := e.process(it); err != nil {
			return err
		}
	}
}

func (e *Engine) process(it item) error {
	if it.reply != nil {
		it.reply <- e.Snapshot()
		return nil
	}
	err := e.FeedLine(it.line)
	if errors.Is(err, ErrStopped) {
		return nil
	}
	return err
}
