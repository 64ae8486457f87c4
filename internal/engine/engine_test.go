package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/testutil"
	"github.com/roach88/screentrace/internal/trace"
)

func feedAll(t *testing.T, e *Engine, lines ...string) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, e.FeedLine(l))
	}
}

func TestEngine_New_AppliesDefaults(t *testing.T) {
	e := New(config.Config{})

	cfg := e.Config()
	assert.Equal(t, int64(config.DefaultSlowCallThresholdMs), cfg.SlowCallThresholdMs)
	assert.True(t, cfg.Tolerant())
	assert.NotNil(t, e.queue)
	assert.NotNil(t, e.tracker)
}

func TestEngine_Timeline(t *testing.T) {
	b := testutil.NewTraceBuilder("10:00:00.000").
		Emit("INIT", "App").
		After(500).Emit("ACT_RESUME", "Main").
		After(10).Emit("DB_READ", "Users", "rows=50", "dur=20ms").
		After(10).Emit("FRAG_RESUME", "List", "host=Main").
		After(10).Emit("HTTP", "GET /items", "code=200").
		After(10).Emit("ACT_PAUSE", "Main")

	e := New(config.Default())
	feedAll(t, e, b.Lines()...)
	tl := e.Finish()

	require.Len(t, tl.Events, 6)
	assert.True(t, tl.Complete)
	assert.Equal(t, 6, tl.Stats.Records)

	first := tl.Events[0]
	assert.False(t, first.Lifecycle)
	assert.Empty(t, first.Scopes)

	resume := tl.Events[1]
	assert.True(t, resume.Lifecycle)
	assert.Equal(t, FrameID(1), resume.Frame)

	read := tl.Events[2]
	assert.Equal(t, []FrameID{1}, read.Scopes)
	require.NotNil(t, read.Query)
	assert.Equal(t, int64(50), read.Query.Rows)

	http := tl.Events[4]
	assert.Equal(t, []FrameID{2}, http.Scopes, "component takes precedence over its screen")
	assert.Equal(t, "Main/List", tl.Label(2))

	f, ok := tl.Frame(2)
	require.True(t, ok)
	assert.True(t, f.Implicit)
	assert.Equal(t, []FrameID{2}, tl.Hosted(1))

	assert.Equal(t, "10:00:00.000", tl.StartAt.String())
	assert.Equal(t, "10:00:00.540", tl.EndAt.String())
	assert.NotEmpty(t, tl.Digest)
}

func TestEngine_MalformedLineContinues(t *testing.T) {
	e := New(config.Default())
	feedAll(t, e,
		"10:00:00.000|ACT_RESUME|Main",
		"garbage text with no pipes",
		"10:00:00.100|DB_READ|Users|rows=1",
	)
	tl := e.Finish()

	assert.Equal(t, 1, tl.Stats.ParseWarnings)
	require.Len(t, tl.Warnings, 1)
	assert.Equal(t, 2, tl.Warnings[0].Line)
	assert.Len(t, tl.Events, 2)
	assert.Equal(t, 3, tl.Stats.Lines)
}

func TestEngine_StrictParsing(t *testing.T) {
	cfg := config.Default()
	cfg.TolerantParsing = config.Bool(false)
	e := New(cfg)

	require.NoError(t, e.FeedLine("10:00:00.000|ACT_RESUME|Main"))
	err := e.FeedLine("10:00|broken")
	require.Error(t, err)
	assert.True(t, IsStrictParseError(err))

	var w *trace.ParseWarning
	require.True(t, errors.As(err, &w))
	assert.Equal(t, 2, w.Line)
}

func TestEngine_MarkerAndNoise(t *testing.T) {
	cfg := config.Default()
	cfg.Marker = "TRACE: "
	e := New(cfg)
	feedAll(t, e,
		"01-02 10:00:00.000 I/App: started",
		"",
		"01-02 10:00:00.001 D/TRACE: 10:00:00.001|ACT_RESUME|Main",
	)
	tl := e.Finish()

	assert.Len(t, tl.Events, 1)
	assert.Zero(t, tl.Stats.ParseWarnings)
}

func TestEngine_TimestampNormalization(t *testing.T) {
	e := New(config.Default())
	feedAll(t, e,
		"23:59:59.000|ACT_RESUME|Main",
		"23:59:58.500|DB_READ|Late",
		"00:00:01.000|DB_READ|AfterMidnight",
	)
	tl := e.Finish()

	assert.Equal(t, 1, tl.Stats.OutOfOrder)
	assert.Equal(t, 1, tl.Stats.MidnightWraps)
	assert.Equal(t, tl.Events[0].At, tl.Events[1].At, "out-of-order record is clamped")
	assert.Equal(t, trace.DayMillis+1000, tl.Events[2].At)
	assert.Equal(t, "00:00:01.000", tl.Events[2].At.String())
}

func TestEngine_FeedAfterFinish(t *testing.T) {
	e := New(config.Default())
	e.Finish()

	assert.ErrorIs(t, e.FeedLine("10:00:00.000|INIT|App"), ErrStopped)
	assert.ErrorIs(t, e.Feed(trace.Record{Code: trace.CodeInit}), ErrStopped)
}

func TestEngine_SnapshotIsPartialAndStable(t *testing.T) {
	e := New(config.Default())
	feedAll(t, e, "10:00:00.000|ACT_RESUME|Main", "10:00:00.100|DB_READ|Users")

	snap := e.Snapshot()
	assert.False(t, snap.Complete)
	require.Len(t, snap.Events, 2)

	feedAll(t, e, "10:00:00.200|ACT_PAUSE|Main")
	assert.Len(t, snap.Events, 2, "snapshot does not see later records")
	assert.False(t, snap.Frames[0].Closed)

	final := e.Finish()
	assert.Len(t, final.Events, 3)
	assert.True(t, final.Frames[0].Closed)
}

func TestEngine_Deterministic(t *testing.T) {
	lines := []string{
		"10:00:00.000|INIT|App",
		"10:00:00.100|ACT_RESUME|Main",
		"10:00:00.200|FRAG_RESUME|A|host=Main",
		"10:00:00.300|FRAG_RESUME|B|host=Main",
		"10:00:00.400|DB_READ|Users|rows=2",
		"10:00:00.500|SOMETHING_NEW|x|k=v",
	}
	run := func() *Timeline {
		e := New(config.Default())
		feedAll(t, e, lines...)
		return e.Finish()
	}

	a, b := run(), run()
	assert.Equal(t, a, b)
	assert.Equal(t, 1, a.Stats.RawRecords)
	assert.True(t, a.Events[4].Ambiguous)
}

type countingObserver struct {
	mu       sync.Mutex
	records  map[string]int
	warnings int
	frames   map[FrameKind]int
}

func (o *countingObserver) ObserveRecord(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records[code]++
}

func (o *countingObserver) ObserveWarning() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnings++
}

func (o *countingObserver) ObserveFrame(kind FrameKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames[kind]++
}

func TestEngine_ObserverAndLogger(t *testing.T) {
	obs := &countingObserver{records: map[string]int{}, frames: map[FrameKind]int{}}
	core, logs := observer.New(zap.DebugLevel)

	e := New(config.Default(), WithObserver(obs), WithLogger(zap.New(core)))
	feedAll(t, e,
		"10:00:00.000|ACT_RESUME|Main",
		"10:00:00.100|FRAG_RESUME|Orphan|host=Gone",
		"bad",
		"10:00:00.200|WORKER|Sync|state=RUNNING",
	)
	e.Finish()

	assert.Equal(t, 1, obs.records["ACT_RESUME"])
	assert.Equal(t, 1, obs.warnings)
	assert.Equal(t, 1, obs.frames[KindTopLevel])
	assert.Equal(t, 1, obs.frames[KindComponent])
	assert.Equal(t, 1, obs.frames[KindWorker])

	assert.Equal(t, 1, logs.FilterMessage("skipping malformed line").Len())
	assert.Equal(t, 1, logs.FilterMessage("component attached by host fallback").Len())
	assert.Equal(t, 1, logs.FilterMessage("run finished").Len())
}

func TestEngine_RunLoop(t *testing.T) {
	e := New(config.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.True(t, e.Enqueue("10:00:00.000|ACT_RESUME|Main"))
	require.True(t, e.Enqueue("10:00:00.100|DB_READ|Users"))

	snap, err := e.RequestSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Events, 2)
	assert.False(t, snap.Complete)

	e.Stop()
	require.NoError(t, <-done)
	assert.False(t, e.Enqueue("late"))

	_, err = e.RequestSnapshot(ctx)
	assert.ErrorIs(t, err, ErrStopped)

	tl := e.Finish()
	assert.Len(t, tl.Events, 2)
}

func TestEngine_RunCancelDrains(t *testing.T) {
	e := New(config.Default())
	for i := 0; i < 10; i++ {
		e.Enqueue("10:00:00.000|DB_READ|Users")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Run(ctx)
	// Either the loop drained before noticing cancellation or after.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Len(t, e.Finish().Events, 10)
}

func TestEngine_RunStrictError(t *testing.T) {
	cfg := config.Default()
	cfg.TolerantParsing = config.Bool(false)
	e := New(cfg)
	e.Enqueue("nonsense")

	err := e.Run(context.Background())
	assert.True(t, IsStrictParseError(err))
}
