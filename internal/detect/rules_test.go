package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/testutil"
)

func timeline(t *testing.T, cfg config.Config, lines ...string) *engine.Timeline {
	t.Helper()
	e := engine.New(cfg)
	for _, l := range lines {
		require.NoError(t, e.FeedLine(l))
	}
	return e.Finish()
}

func ofKind(issues []Issue, k Kind) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Kind == k {
			out = append(out, i)
		}
	}
	return out
}

func TestDuplicateQuery(t *testing.T) {
	tl := timeline(t, config.Default(),
		"10:00:00.000|ACT_RESUME|Main",
		"10:00:00.100|DB_READ|Users|rows=50",
		"10:00:00.200|DB_READ|Users|rows=50",
		"10:00:00.300|DB_READ|Users|rows=50",
		"10:00:00.400|ACT_PAUSE|Main",
	)

	issues := DuplicateQuery{}.Detect(tl)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityMedium, issues[0].Severity)
	assert.Equal(t, []int{1, 2, 3}, issues[0].Evidence)
	assert.Equal(t, "Users", issues[0].Subject)
	assert.Equal(t, "Main", issues[0].Scope)
}

func TestDuplicateQuery_SeparateIntervals(t *testing.T) {
	tl := timeline(t, config.Default(),
		"10:00:00.000|ACT_RESUME|Main",
		"10:00:00.100|DB_READ|Users",
		"10:00:00.400|ACT_PAUSE|Main",
		"10:00:00.500|ACT_RESUME|Main",
		"10:00:00.600|DB_READ|Users",
		"10:00:00.700|DB_WRITE|Users",
		"10:00:00.800|ACT_PAUSE|Main",
	)
	assert.Empty(t, DuplicateQuery{}.Detect(tl), "a reopened screen is a new interval; codes differ")
}

func TestMissingLoad(t *testing.T) {
	tl := timeline(t, config.Default(),
		"10:00:00.000|ACT_RESUME|Empty",
		"10:00:00.500|ACT_PAUSE|Empty",
		"10:00:01.000|ACT_RESUME|Host",
		"10:00:01.100|FRAG_RESUME|Pane|host=Host",
		"10:00:01.200|HTTP|GET /pane",
		"10:00:01.300|FRAG_PAUSE|Pane|host=Host",
		"10:00:01.400|ACT_PAUSE|Host",
		"10:00:02.000|ACT_RESUME|StillOpen",
	)

	issues := MissingLoad{}.Detect(tl)
	require.Len(t, issues, 1, "screens count hosted loads; open frames are skipped")
	assert.Equal(t, "Empty", issues[0].Subject)
	assert.Equal(t, SeverityLow, issues[0].Severity)
	assert.Equal(t, []int{0, 1}, issues[0].Evidence)
}

func TestMissingLoad_WorkerCounts(t *testing.T) {
	tl := timeline(t, config.Default(),
		"10:00:00.000|ACT_RESUME|Main",
		"10:00:00.100|WORKER|Sync|state=ENQUEUED",
		"10:00:00.500|ACT_PAUSE|Main",
	)
	assert.Empty(t, MissingLoad{}.Detect(tl))
}

func TestZeroRowQuery(t *testing.T) {
	tl := timeline(t, config.Default(),
		"10:00:00.000|DB_READ|Empty|rows=0",
		"10:00:00.100|DB_READ|Some|rows=3",
		"10:00:00.200|DB_READ|Unknown",
		"10:00:00.300|DB_WRITE|Nothing|rows=0",
	)

	issues := ZeroRowQuery{}.Detect(tl)
	require.Len(t, issues, 1)
	assert.Equal(t, "Empty", issues[0].Subject)
	assert.Equal(t, UnscopedLabel, issues[0].Scope)
	assert.Equal(t, SeverityInfo, issues[0].Severity)
}

func TestSlowCall(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		issues int
	}{
		{"slow http", "10:00:00.000|HTTP|GET /x|code=200 dur=1500ms", 1},
		{"fast http", "10:00:00.000|HTTP|GET /x|code=200 dur=900ms", 0},
		{"at threshold", "10:00:00.000|HTTP|GET /x|dur=1000", 0},
		{"seconds", "10:00:00.000|DB_READ|Big|dur=2s", 1},
		{"worker", "10:00:00.000|WORKER|Sync|state=DONE dur=5000", 1},
		{"no duration", "10:00:00.000|HTTP|GET /x|code=200", 0},
		{"garbage duration", "10:00:00.000|HTTP|GET /x|dur=slow", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := timeline(t, config.Default(), tt.line)
			issues := SlowCall{ThresholdMs: config.DefaultSlowCallThresholdMs}.Detect(tl)
			assert.Len(t, issues, tt.issues)
			for _, i := range issues {
				assert.Equal(t, SeverityHigh, i.Severity)
			}
		})
	}
}

func backgroundTrace() []string {
	b := testutil.NewTraceBuilder("10:00:00.000").
		Emit("ACT_PAUSE", "Main").
		After(60_000).Emit("ACT_RESUME", "Main")
	for _, q := range []string{"A", "B", "C", "D", "E"} {
		b.After(100).Emit("DB_READ", q)
	}
	// Outside the window.
	b.After(5_000).Emit("DB_READ", "Late")
	return b.Lines()
}

func TestBackgroundReQuery(t *testing.T) {
	tests := []struct {
		threshold int
		issues    int
	}{
		{3, 1},
		{5, 1},
		{6, 0},
	}
	tl := timeline(t, config.Default(), backgroundTrace()...)

	for _, tt := range tests {
		rule := BackgroundReQuery{WindowMs: config.DefaultBackgroundResumeWindowMs, Threshold: tt.threshold}
		issues := rule.Detect(tl)
		require.Len(t, issues, tt.issues, "threshold %d", tt.threshold)
		if tt.issues > 0 {
			assert.Equal(t, SeverityHigh, issues[0].Severity)
			assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, issues[0].Evidence)
			assert.Equal(t, "Main", issues[0].Subject)
		}
	}
}

func TestBackgroundReQuery_CountsHostedComponents(t *testing.T) {
	b := testutil.NewTraceBuilder("10:00:00.000").
		Emit("ACT_RESUME", "Main").
		After(100).Emit("ACT_PAUSE", "Main").
		After(45_000).Emit("ACT_RESUME", "Main").
		After(10).Emit("FRAG_RESUME", "List", "host=Main").
		After(10).Emit("DB_READ", "A").
		After(10).Emit("HTTP", "GET /b").
		After(10).Emit("DB_READ", "A")

	tl := timeline(t, config.Default(), b.Lines()...)
	issues := BackgroundReQuery{WindowMs: 2000, Threshold: 3}.Detect(tl)
	require.Len(t, issues, 1)
	assert.Equal(t, []int{2, 4, 5, 6}, issues[0].Evidence)
}

func TestBackgroundReQuery_ShortGap(t *testing.T) {
	b := testutil.NewTraceBuilder("10:00:00.000").
		Emit("ACT_PAUSE", "Main").
		After(10_000).Emit("ACT_RESUME", "Main")
	for i := 0; i < 5; i++ {
		b.After(10).Emit("DB_READ", "Q")
	}
	tl := timeline(t, config.Default(), b.Lines()...)
	assert.Empty(t, BackgroundReQuery{WindowMs: 2000, Threshold: 3}.Detect(tl))
}

func TestUnbalancedLifecycle_LonePause(t *testing.T) {
	tl := timeline(t, config.Default(), "10:00:00.000|ACT_PAUSE|Foo")

	issues := UnbalancedLifecycle{}.Detect(tl)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityMedium, issues[0].Severity)
	assert.Equal(t, "Foo", issues[0].Subject)
}

func TestUnbalancedLifecycle_Unterminated(t *testing.T) {
	lines := []string{
		"10:00:00.000|ACT_RESUME|Main",
		"10:00:00.100|FRAG_RESUME|List|host=Main",
		"10:00:00.200|WORKER|Sync|state=RUNNING",
	}

	tl := timeline(t, config.Default(), lines...)
	issues := UnbalancedLifecycle{}.Detect(tl)
	require.Len(t, issues, 2, "workers are pending, not unbalanced")
	assert.Equal(t, "Main", issues[0].Scope)
	assert.Equal(t, "Main/List", issues[1].Scope)

	e := engine.New(config.Default())
	for _, l := range lines {
		require.NoError(t, e.FeedLine(l))
	}
	assert.Empty(t, UnbalancedLifecycle{}.Detect(e.Snapshot()), "partial timelines skip run-end checks")
}

func TestAmbiguousAttribution(t *testing.T) {
	tl := timeline(t, config.Default(),
		"10:00:00.000|ACT_RESUME|Main",
		"10:00:00.100|FRAG_RESUME|Left|host=Main",
		"10:00:00.200|FRAG_RESUME|Right|host=Main",
		"10:00:00.300|DB_READ|Users",
		"10:00:00.400|HTTP|GET /x",
		"10:00:00.500|SETTING|theme|value=dark",
	)

	issues := AmbiguousAttribution{}.Detect(tl)
	require.Len(t, issues, 1)
	assert.Equal(t, []int{3, 4}, issues[0].Evidence)
	assert.Equal(t, "Main/Left, Main/Right", issues[0].Scope)
}

func TestLowConfidenceHost(t *testing.T) {
	tl := timeline(t, config.Default(),
		"10:00:00.000|ACT_RESUME|Main",
		"10:00:00.100|FRAG_RESUME|Orphan|host=Gone",
		"10:00:00.200|FRAG_RESUME|Orphan|host=Gone",
	)

	issues := LowConfidenceHost{}.Detect(tl)
	require.Len(t, issues, 1, "re-entry does not raise a second issue")
	assert.Equal(t, "Main/Orphan", issues[0].Scope)
	assert.Contains(t, issues[0].Message, "attached to Main")
}
