package report

import (
	"cmp"
	"slices"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/detect"
	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/trace"
)

// Options tune report building.
type Options struct {
	// SlowestCalls is the length of Timing.Slowest.
	SlowestCalls int
}

// Build aggregates tl and issues into a Report. issues must already be in
// detector order.
func Build(tl *engine.Timeline, issues []detect.Issue, opts Options) *Report {
	if opts.SlowestCalls <= 0 {
		opts.SlowestCalls = config.DefaultSlowestCalls
	}
	r := &Report{
		Digest:        tl.Digest,
		Complete:      tl.Complete,
		Inventory:     inventory(tl),
		Navigation:    navigation(tl),
		Queries:       queries(tl),
		Timing:        timing(tl, opts.SlowestCalls),
		Workers:       workers(tl),
		Pending:       pending(tl),
		ParseWarnings: tl.Stats.ParseWarnings,
		Warnings:      append([]trace.ParseWarning{}, tl.Warnings...),
		Stats:         tl.Stats,
	}
	r.Issues, r.BySeverity = issueList(tl, issues)
	return r
}

func inventory(tl *engine.Timeline) []Screen {
	out := []Screen{}
	index := make(map[string]int)
	for _, f := range tl.Frames {
		if f.Kind != engine.KindTopLevel && f.Kind != engine.KindComponent {
			continue
		}
		key := string(f.Kind) + "\x00" + f.Subject
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Screen{
				Subject:     f.Subject,
				Kind:        string(f.Kind),
				FirstSeenAt: f.OpenedAt.String(),
			})
		}
		out[i].Intervals++
		if f.Kind == engine.KindComponent && f.Host != "" && !slices.Contains(out[i].Hosts, f.Host) {
			out[i].Hosts = append(out[i].Hosts, f.Host)
		}
	}
	return out
}

func navigation(tl *engine.Timeline) []Step {
	out := make([]Step, 0, len(tl.Transitions))
	for _, tn := range tl.Transitions {
		out = append(out, Step{
			Seq:                    tn.Seq,
			At:                     tn.At.String(),
			Action:                 string(tn.Action),
			Kind:                   string(tn.Kind),
			Subject:                tn.Subject,
			Host:                   tn.Host,
			Implicit:               tn.Implicit,
			LowConfidence:          tn.LowConfidence,
			ReturnedFromBackground: tn.ReturnedFromBackground,
		})
	}
	return out
}

// queries builds the per-screen table. A partial timeline only counts
// queries whose frames have all closed; open intervals may still grow.
func queries(tl *engine.Timeline) []ScreenQueries {
	type key struct {
		code trace.EventCode
		name string
	}
	var (
		screens []ScreenQueries
		byLabel = make(map[string]int)
		byQuery = make(map[string]map[key]int)
	)

	for _, ev := range tl.Events {
		if ev.Query == nil {
			continue
		}
		if !tl.Complete && !allClosed(tl, ev.Scopes) {
			continue
		}
		labels := []string{detect.UnscopedLabel}
		if len(ev.Scopes) > 0 {
			labels = labels[:0]
			for _, id := range ev.Scopes {
				labels = append(labels, tl.Label(id))
			}
		}
		for _, label := range labels {
			si, ok := byLabel[label]
			if !ok {
				si = len(screens)
				byLabel[label] = si
				byQuery[label] = make(map[key]int)
				screens = append(screens, ScreenQueries{Screen: label})
			}
			k := key{ev.Record.Code, ev.Record.Subject}
			qi, ok := byQuery[label][k]
			if !ok {
				qi = len(screens[si].Queries)
				byQuery[label][k] = qi
				screens[si].Queries = append(screens[si].Queries, QueryStats{Code: string(k.code), Name: k.name})
			}
			screens[si].Queries[qi].add(ev.Query)
		}
	}

	if screens == nil {
		return []ScreenQueries{}
	}
	for i := range screens {
		for j := range screens[i].Queries {
			screens[i].Queries[j].finish()
		}
	}
	return screens
}

func allClosed(tl *engine.Timeline, scopes []engine.FrameID) bool {
	for _, id := range scopes {
		if id == engine.BackgroundID {
			continue
		}
		if f, ok := tl.Frame(id); !ok || !f.Closed {
			return false
		}
	}
	return true
}

func (s *QueryStats) add(q *engine.Query) {
	s.Count++
	if q.HasRows {
		s.TotalRows += q.Rows
	}
	if !q.HasDuration {
		return
	}
	if s.Timed == 0 || q.DurationMs < s.MinMs {
		s.MinMs = q.DurationMs
	}
	if q.DurationMs > s.MaxMs {
		s.MaxMs = q.DurationMs
	}
	s.Timed++
	s.sumMs += q.DurationMs
}

// finish computes the average, rounded half up.
func (s *QueryStats) finish() {
	if s.Timed == 0 {
		return
	}
	n := int64(s.Timed)
	s.AvgMs = (2*s.sumMs + n) / (2 * n)
}

func timing(tl *engine.Timeline, n int) Timing {
	t := Timing{Slowest: []Call{}}
	if len(tl.Events) > 0 {
		t.SpanMs = int64(tl.EndAt - tl.StartAt)
	}

	initAt, resumeAt := trace.Timestamp(-1), trace.Timestamp(-1)
	var calls []Call
	for _, ev := range tl.Events {
		switch ev.Record.Code {
		case trace.CodeInit:
			if initAt < 0 {
				initAt = ev.At
			}
		case trace.CodeActResume:
			if resumeAt < 0 && initAt >= 0 {
				resumeAt = ev.At
			}
		}
		if ev.Lifecycle {
			continue
		}
		d, ok := ev.DurationMs()
		if !ok {
			continue
		}
		calls = append(calls, Call{
			Seq:        ev.Seq,
			Line:       ev.Record.Line,
			At:         ev.At.String(),
			Code:       ev.Record.Name(),
			Subject:    ev.Record.Subject,
			Scope:      scopeLabel(tl, ev.Scopes),
			DurationMs: d,
		})
	}
	if initAt >= 0 && resumeAt >= 0 {
		ms := int64(resumeAt - initAt)
		t.StartupMs = &ms
	}

	slices.SortStableFunc(calls, func(a, b Call) int {
		return cmpOr(cmp.Compare(b.DurationMs, a.DurationMs), cmp.Compare(a.Seq, b.Seq))
	})
	if len(calls) > n {
		calls = calls[:n]
	}
	t.Slowest = append(t.Slowest, calls...)
	return t
}

func scopeLabel(tl *engine.Timeline, scopes []engine.FrameID) string {
	if len(scopes) == 0 {
		return detect.UnscopedLabel
	}
	label := tl.Label(scopes[0])
	for _, id := range scopes[1:] {
		label += ", " + tl.Label(id)
	}
	return label
}

func issueList(tl *engine.Timeline, issues []detect.Issue) ([]Issue, []SeverityGroup) {
	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		lines := make([]int, 0, len(is.Evidence))
		for _, seq := range is.Evidence {
			if ev, ok := tl.Event(seq); ok {
				lines = append(lines, ev.Record.Line)
			}
		}
		out = append(out, Issue{Issue: is, At: is.FirstSeenAt.String(), Lines: lines})
	}

	groups := make([]SeverityGroup, 0, len(detect.Severities))
	for _, sev := range detect.Severities {
		g := SeverityGroup{Severity: sev, Issues: []int{}}
		for i, is := range out {
			if is.Severity == sev {
				g.Issues = append(g.Issues, i)
			}
		}
		g.Count = len(g.Issues)
		groups = append(groups, g)
	}
	return out, groups
}

func workers(tl *engine.Timeline) []Worker {
	out := []Worker{}
	index := make(map[string]int)
	for _, f := range tl.Frames {
		if f.Kind != engine.KindWorker {
			continue
		}
		i, ok := index[f.Subject]
		if !ok {
			i = len(out)
			index[f.Subject] = i
			out = append(out, Worker{Subject: f.Subject, FirstSeenAt: f.OpenedAt.String()})
		}
		out[i].Runs++
		out[i].LastState = f.State
		out[i].Running = !f.Closed
	}
	return out
}

func pending(tl *engine.Timeline) []PendingFrame {
	out := []PendingFrame{}
	for _, f := range tl.Frames {
		if f.Closed {
			continue
		}
		out = append(out, PendingFrame{
			Kind:     string(f.Kind),
			Label:    f.Label(),
			OpenedAt: f.OpenedAt.String(),
			OpenSeq:  f.OpenSeq,
		})
	}
	return out
}
