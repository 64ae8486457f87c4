package detect

import (
	"fmt"
	"strings"

	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/trace"
)

// UnscopedLabel labels events attributed to no frame.
const UnscopedLabel = "(unscoped)"

func scopeLabel(tl *engine.Timeline, scopes []engine.FrameID) string {
	if len(scopes) == 0 {
		return UnscopedLabel
	}
	labels := make([]string, len(scopes))
	for i, id := range scopes {
		labels[i] = tl.Label(id)
	}
	return strings.Join(labels, ", ")
}

// DuplicateQuery flags the same query run two or more times within one
// open interval of one frame.
type DuplicateQuery struct{}

func (DuplicateQuery) Kind() Kind { return KindDuplicateQuery }

func (DuplicateQuery) Detect(tl *engine.Timeline) []Issue {
	type key struct {
		code    trace.EventCode
		subject string
		frame   engine.FrameID
	}
	groups := make(map[key][]int)
	var order []key
	for _, ev := range tl.Events {
		if !ev.Record.Code.IsQuery() {
			continue
		}
		for _, id := range ev.Scopes {
			k := key{ev.Record.Code, ev.Record.Subject, id}
			if _, ok := groups[k]; !ok {
				order = append(order, k)
			}
			groups[k] = append(groups[k], ev.Seq)
		}
	}

	var issues []Issue
	for _, k := range order {
		seqs := groups[k]
		if len(seqs) < 2 {
			continue
		}
		label := tl.Label(k.frame)
		issues = append(issues, Issue{
			Kind:        KindDuplicateQuery,
			Severity:    SeverityMedium,
			Evidence:    seqs,
			FirstSeenAt: tl.Events[seqs[0]].At,
			Subject:     k.subject,
			Scope:       label,
			Message:     fmt.Sprintf("%s %q ran %d times while %s was open", k.code, k.subject, len(seqs), label),
		})
	}
	return issues
}

// MissingLoad flags a closed screen or component interval that saw no data
// access or worker activity. Screens count loads of the components they
// hosted. Expect false positives for purely static screens.
type MissingLoad struct{}

func (MissingLoad) Kind() Kind { return KindMissingLoad }

func (MissingLoad) Detect(tl *engine.Timeline) []Issue {
	loads := make(map[engine.FrameID]int)
	for _, ev := range tl.Events {
		if !ev.Record.Code.IsLoad() {
			continue
		}
		for _, id := range ev.Scopes {
			loads[id]++
			if f, ok := tl.Frame(id); ok && f.Kind == engine.KindComponent && f.HostID != engine.BackgroundID {
				loads[f.HostID]++
			}
		}
	}

	var issues []Issue
	for _, f := range tl.Frames {
		if f.Kind != engine.KindTopLevel && f.Kind != engine.KindComponent {
			continue
		}
		if !f.Closed || loads[f.ID] > 0 {
			continue
		}
		issues = append(issues, Issue{
			Kind:        KindMissingLoad,
			Severity:    SeverityLow,
			Evidence:    []int{f.OpenSeq, f.CloseSeq},
			FirstSeenAt: f.OpenedAt,
			Subject:     f.Subject,
			Scope:       f.Label(),
			Message:     fmt.Sprintf("%s %s was shown for %dms without loading data", strings.ToLower(string(f.Kind)), f.Label(), int64(f.ClosedAt-f.OpenedAt)),
		})
	}
	return issues
}

// ZeroRowQuery flags reads that returned nothing.
type ZeroRowQuery struct{}

func (ZeroRowQuery) Kind() Kind { return KindZeroRowQuery }

func (ZeroRowQuery) Detect(tl *engine.Timeline) []Issue {
	var issues []Issue
	for _, ev := range tl.Events {
		if ev.Record.Code != trace.CodeDBRead || ev.Query == nil {
			continue
		}
		if !ev.Query.HasRows || ev.Query.Rows != 0 {
			continue
		}
		issues = append(issues, Issue{
			Kind:        KindZeroRowQuery,
			Severity:    SeverityInfo,
			Evidence:    []int{ev.Seq},
			FirstSeenAt: ev.At,
			Subject:     ev.Record.Subject,
			Scope:       scopeLabel(tl, ev.Scopes),
			Message:     fmt.Sprintf("DB_READ %q returned 0 rows", ev.Record.Subject),
		})
	}
	return issues
}

// SlowCall flags any non-lifecycle record whose duration exceeds the
// threshold.
type SlowCall struct {
	ThresholdMs int64
}

func (SlowCall) Kind() Kind { return KindSlowCall }

func (r SlowCall) Detect(tl *engine.Timeline) []Issue {
	var issues []Issue
	for _, ev := range tl.Events {
		if ev.Lifecycle {
			continue
		}
		d, ok := ev.DurationMs()
		if !ok || d <= r.ThresholdMs {
			continue
		}
		issues = append(issues, Issue{
			Kind:        KindSlowCall,
			Severity:    SeverityHigh,
			Evidence:    []int{ev.Seq},
			FirstSeenAt: ev.At,
			Subject:     ev.Record.Subject,
			Scope:       scopeLabel(tl, ev.Scopes),
			Message:     fmt.Sprintf("%s %q took %dms (threshold %dms)", ev.Record.Name(), ev.Record.Subject, d, r.ThresholdMs),
		})
	}
	return issues
}

// BackgroundReQuery flags a screen that, on returning from the
// background, fires Threshold or more queries within WindowMs.
type BackgroundReQuery struct {
	WindowMs  int64
	Threshold int
}

func (BackgroundReQuery) Kind() Kind { return KindBackgroundReQuery }

func (r BackgroundReQuery) Detect(tl *engine.Timeline) []Issue {
	var issues []Issue
	for _, tn := range tl.Transitions {
		if !tn.ReturnedFromBackground || tn.Frame == engine.BackgroundID {
			continue
		}
		owned := map[engine.FrameID]bool{tn.Frame: true}
		for _, id := range tl.Hosted(tn.Frame) {
			owned[id] = true
		}
		end := tn.At + trace.Timestamp(r.WindowMs)

		evidence := []int{tn.Seq}
		for _, ev := range tl.Events[tn.Seq+1:] {
			if ev.At > end {
				break
			}
			if !ev.Record.Code.IsQuery() {
				continue
			}
			for _, id := range ev.Scopes {
				if owned[id] {
					evidence = append(evidence, ev.Seq)
					break
				}
			}
		}

		n := len(evidence) - 1
		if n < r.Threshold {
			continue
		}
		issues = append(issues, Issue{
			Kind:        KindBackgroundReQuery,
			Severity:    SeverityHigh,
			Evidence:    evidence,
			FirstSeenAt: tn.At,
			Subject:     tn.Subject,
			Scope:       tl.Label(tn.Frame),
			Message:     fmt.Sprintf("%s fired %d queries within %dms of returning from background", tn.Subject, n, r.WindowMs),
		})
	}
	return issues
}

// UnbalancedLifecycle flags closes with no matching open and, once the run
// is complete, screens and components that never closed.
type UnbalancedLifecycle struct{}

func (UnbalancedLifecycle) Kind() Kind { return KindUnbalancedLifecycle }

func (UnbalancedLifecycle) Detect(tl *engine.Timeline) []Issue {
	var issues []Issue
	for _, s := range tl.Signals {
		if s.Kind != engine.SignalUnmatchedClose {
			continue
		}
		issues = append(issues, Issue{
			Kind:        KindUnbalancedLifecycle,
			Severity:    SeverityMedium,
			Evidence:    []int{s.Seq},
			FirstSeenAt: s.At,
			Subject:     s.Subject,
			Message:     fmt.Sprintf("%s %s with no matching open", s.Code, s.Subject),
		})
	}
	if !tl.Complete {
		return issues
	}
	for _, f := range tl.Frames {
		if f.Closed || (f.Kind != engine.KindTopLevel && f.Kind != engine.KindComponent) {
			continue
		}
		issues = append(issues, Issue{
			Kind:        KindUnbalancedLifecycle,
			Severity:    SeverityMedium,
			Evidence:    []int{f.OpenSeq},
			FirstSeenAt: f.OpenedAt,
			Subject:     f.Subject,
			Scope:       f.Label(),
			Message:     fmt.Sprintf("%s %s never closed before the end of the trace", strings.ToLower(string(f.Kind)), f.Label()),
		})
	}
	return issues
}

// AmbiguousAttribution reports each distinct set of concurrently open
// components that shared queries.
type AmbiguousAttribution struct{}

func (AmbiguousAttribution) Kind() Kind { return KindAmbiguousAttribution }

func (AmbiguousAttribution) Detect(tl *engine.Timeline) []Issue {
	groups := make(map[string][]int)
	scopes := make(map[string][]engine.FrameID)
	var order []string
	for _, ev := range tl.Events {
		if !ev.Ambiguous || !ev.Record.Code.IsQuery() {
			continue
		}
		k := fmt.Sprint(ev.Scopes)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
			scopes[k] = ev.Scopes
		}
		groups[k] = append(groups[k], ev.Seq)
	}

	var issues []Issue
	for _, k := range order {
		seqs := groups[k]
		label := scopeLabel(tl, scopes[k])
		issues = append(issues, Issue{
			Kind:        KindAmbiguousAttribution,
			Severity:    SeverityInfo,
			Evidence:    seqs,
			FirstSeenAt: tl.Events[seqs[0]].At,
			Scope:       label,
			Message:     fmt.Sprintf("%d queries attributed to %d concurrently open components: %s", len(seqs), len(scopes[k]), label),
		})
	}
	return issues
}

// LowConfidenceHost reports components attached by the host fallback.
type LowConfidenceHost struct{}

func (LowConfidenceHost) Kind() Kind { return KindLowConfidenceHost }

func (LowConfidenceHost) Detect(tl *engine.Timeline) []Issue {
	var issues []Issue
	for _, s := range tl.Signals {
		if s.Kind != engine.SignalLowConfidenceHost {
			continue
		}
		f, ok := tl.Frame(s.Frame)
		if !ok {
			continue
		}
		declared := f.DeclaredHost
		if declared == "" {
			declared = "(none)"
		}
		msg := fmt.Sprintf("component %s declared host %s, which is not open; left unattached", f.Subject, declared)
		if f.HostID != engine.BackgroundID {
			msg = fmt.Sprintf("component %s declared host %s, which is not open; attached to %s", f.Subject, declared, f.Host)
		}
		issues = append(issues, Issue{
			Kind:        KindLowConfidenceHost,
			Severity:    SeverityInfo,
			Evidence:    []int{s.Seq},
			FirstSeenAt: s.At,
			Subject:     f.Subject,
			Scope:       f.Label(),
			Message:     msg,
		})
	}
	return issues
}
