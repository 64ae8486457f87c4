package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/detect"
	"github.com/roach88/screentrace/internal/engine"
)

func run(t *testing.T, complete bool, lines ...string) *Report {
	t.Helper()
	cfg := config.Default()
	e := engine.New(cfg)
	for _, l := range lines {
		require.NoError(t, e.FeedLine(l))
	}
	tl := e.Snapshot()
	if complete {
		tl = e.Finish()
	}
	issues, err := detect.NewDetector(detect.DefaultRegistry(cfg)).Run(context.Background(), tl)
	require.NoError(t, err)
	return Build(tl, issues, Options{SlowestCalls: 2})
}

var session = []string{
	"09:59:59.000|INIT|App",
	"10:00:00.200|ACT_CREATE|Main",
	"10:00:00.250|ACT_RESUME|Main",
	"10:00:00.300|DB_READ|Users|rows=10 dur=10",
	"10:00:00.400|DB_READ|Users|rows=20 dur=21",
	"10:00:00.500|HTTP|GET /feed|code=200 dur=1200ms",
	"10:00:00.600|FRAG_RESUME|List|host=Main",
	"10:00:00.700|DB_READ|Items|rows=3",
	"10:00:01.000|ACT_PAUSE|Main",
	"10:00:01.100|ACT_RESUME|Detail",
	"10:00:01.200|FRAG_RESUME|List|host=Detail",
	"10:00:01.300|WORKER|Sync|state=RUNNING",
	"not a trace line",
}

func TestBuild_Inventory(t *testing.T) {
	r := run(t, true, session...)

	require.Len(t, r.Inventory, 3)
	assert.Equal(t, "Main", r.Inventory[0].Subject)
	assert.Equal(t, "10:00:00.200", r.Inventory[0].FirstSeenAt)
	assert.Equal(t, "List", r.Inventory[1].Subject)
	assert.Equal(t, 2, r.Inventory[1].Intervals)
	assert.Equal(t, []string{"Main", "Detail"}, r.Inventory[1].Hosts)
	assert.Equal(t, "Detail", r.Inventory[2].Subject)
}

func TestBuild_QueryTable(t *testing.T) {
	r := run(t, true, session...)

	require.Len(t, r.Queries, 2)
	main := r.Queries[0]
	assert.Equal(t, "Main", main.Screen)
	require.Len(t, main.Queries, 2)

	users := main.Queries[0]
	assert.Equal(t, "Users", users.Name)
	assert.Equal(t, 2, users.Count)
	assert.Equal(t, int64(10), users.MinMs)
	assert.Equal(t, int64(16), users.AvgMs, "15.5 rounds half up")
	assert.Equal(t, int64(21), users.MaxMs)
	assert.Equal(t, int64(30), users.TotalRows)

	feed := main.Queries[1]
	assert.Equal(t, "HTTP", feed.Code)
	assert.Equal(t, int64(1200), feed.AvgMs)

	list := r.Queries[1]
	assert.Equal(t, "Main/List", list.Screen)
	assert.Equal(t, 0, list.Queries[0].Timed)
	assert.Equal(t, int64(0), list.Queries[0].AvgMs)
}

func TestBuild_Timing(t *testing.T) {
	r := run(t, true, session...)

	require.NotNil(t, r.Timing.StartupMs)
	assert.Equal(t, int64(1250), *r.Timing.StartupMs)
	assert.Equal(t, int64(2300), r.Timing.SpanMs)

	require.Len(t, r.Timing.Slowest, 2)
	assert.Equal(t, "GET /feed", r.Timing.Slowest[0].Subject)
	assert.Equal(t, 6, r.Timing.Slowest[0].Line)
	assert.Equal(t, int64(21), r.Timing.Slowest[1].DurationMs)
}

func TestBuild_NoStartupWithoutInit(t *testing.T) {
	r := run(t, true, "10:00:00.000|ACT_RESUME|Main")
	assert.Nil(t, r.Timing.StartupMs)
}

func TestBuild_IssuesAndGroups(t *testing.T) {
	r := run(t, true, session...)

	require.NotEmpty(t, r.Issues)
	require.Len(t, r.BySeverity, 4)
	assert.Equal(t, detect.SeverityHigh, r.BySeverity[0].Severity)

	total := 0
	for _, g := range r.BySeverity {
		total += g.Count
		for _, i := range g.Issues {
			assert.Equal(t, g.Severity, r.Issues[i].Severity)
		}
	}
	assert.Equal(t, len(r.Issues), total)

	assert.Equal(t, 1, r.Count(detect.SeverityHigh))
	slow := r.Issues[r.BySeverity[0].Issues[0]]
	assert.Equal(t, detect.KindSlowCall, slow.Kind)
	assert.Equal(t, []int{6}, slow.Lines)
	assert.Equal(t, "10:00:00.500", slow.At)
}

func TestBuild_WorkersAndPending(t *testing.T) {
	r := run(t, true, session...)

	require.Len(t, r.Workers, 1)
	assert.Equal(t, "Sync", r.Workers[0].Subject)
	assert.True(t, r.Workers[0].Running)

	var labels []string
	for _, p := range r.Pending {
		labels = append(labels, p.Label)
	}
	assert.Equal(t, []string{"Detail", "Detail/List", "Sync"}, labels)
	assert.Equal(t, 1, r.ParseWarnings)
	assert.Equal(t, 13, r.Warnings[0].Line)
}

func TestBuild_PartialSkipsOpenIntervals(t *testing.T) {
	r := run(t, false, session...)

	assert.False(t, r.Complete)
	var screens []string
	for _, s := range r.Queries {
		screens = append(screens, s.Screen)
	}
	assert.Equal(t, []string{"Main", "Main/List"}, screens)

	open := run(t, false, "10:00:00.000|ACT_RESUME|Main", "10:00:00.100|DB_READ|Users")
	assert.Empty(t, open.Queries)
	assert.Len(t, open.Inventory, 1, "inventory does not wait for closes")
}

func TestBuild_DeterministicJSON(t *testing.T) {
	a, err := run(t, true, session...).JSON()
	require.NoError(t, err)
	b, err := run(t, true, session...).JSON()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestBuild_EmptyTimeline(t *testing.T) {
	r := Build(&engine.Timeline{Complete: true}, nil, Options{})
	data, err := r.JSON()
	require.NoError(t, err)

	assert.Contains(t, string(data), `"inventory": []`)
	assert.Contains(t, string(data), `"issues": []`)
	assert.Equal(t, int64(0), r.Timing.SpanMs)
}
