package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/screentrace/internal/report"
)

const rule = "------------------------------------------------------------"

// writeReportText prints the human-readable form of a report.
func writeReportText(w io.Writer, r *report.Report) {
	state := "complete"
	if !r.Complete {
		state = "partial"
	}
	fmt.Fprintf(w, "Trace Report (%s)\n", state)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Digest:         %s\n", r.Digest)
	fmt.Fprintf(w, "Records:        %d of %d lines\n", r.Stats.Records, r.Stats.Lines)
	fmt.Fprintf(w, "Parse warnings: %d\n", r.ParseWarnings)
	fmt.Fprintf(w, "Span:           %dms\n", r.Timing.SpanMs)
	if r.Timing.StartupMs != nil {
		fmt.Fprintf(w, "Startup:        %dms\n", *r.Timing.StartupMs)
	}
	if r.Stats.OutOfOrder > 0 || r.Stats.MidnightWraps > 0 {
		fmt.Fprintf(w, "Out of order:   %d (midnight wraps: %d)\n", r.Stats.OutOfOrder, r.Stats.MidnightWraps)
	}
	fmt.Fprintln(w, rule)

	fmt.Fprintf(w, "\nScreens (%d)\n", len(r.Inventory))
	for _, s := range r.Inventory {
		host := ""
		if len(s.Hosts) > 0 {
			host = " in " + strings.Join(s.Hosts, ", ")
		}
		fmt.Fprintf(w, "  %-12s %-30s first %s, %d interval(s)%s\n",
			s.Kind, s.Subject, s.FirstSeenAt, s.Intervals, host)
	}

	if len(r.Queries) > 0 {
		fmt.Fprintln(w, "\nQueries")
		fmt.Fprintf(w, "  %-30s %-10s %-30s %6s %8s %8s %8s\n", "SCREEN", "CODE", "NAME", "COUNT", "MIN", "AVG", "MAX")
		for _, sq := range r.Queries {
			for _, q := range sq.Queries {
				fmt.Fprintf(w, "  %-30s %-10s %-30s %6d %8s %8s %8s\n",
					sq.Screen, q.Code, q.Name, q.Count,
					durationCell(q.Timed, q.MinMs), durationCell(q.Timed, q.AvgMs), durationCell(q.Timed, q.MaxMs))
			}
		}
	}

	if len(r.Timing.Slowest) > 0 {
		fmt.Fprintln(w, "\nSlowest calls")
		for _, c := range r.Timing.Slowest {
			fmt.Fprintf(w, "  %6dms  %s  %-10s %s (%s, line %d)\n",
				c.DurationMs, c.At, c.Code, c.Subject, c.Scope, c.Line)
		}
	}

	if len(r.Workers) > 0 {
		fmt.Fprintln(w, "\nWorkers")
		for _, wk := range r.Workers {
			running := ""
			if wk.Running {
				running = " (running)"
			}
			fmt.Fprintf(w, "  %-30s %d run(s), last %s%s\n", wk.Subject, wk.Runs, wk.LastState, running)
		}
	}

	fmt.Fprintf(w, "\nIssues (%d)\n", len(r.Issues))
	for _, g := range r.BySeverity {
		if g.Count == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s (%d)\n", g.Severity, g.Count)
		for _, i := range g.Issues {
			is := r.Issues[i]
			fmt.Fprintf(w, "    %s %-22s %s [%s] lines %s\n",
				is.At, is.Kind, is.Message, is.Scope, joinInts(is.Lines))
		}
	}
	if len(r.Issues) == 0 {
		fmt.Fprintln(w, "  (none)")
	}

	if len(r.Pending) > 0 {
		fmt.Fprintln(w, "\nUnterminated")
		for _, p := range r.Pending {
			fmt.Fprintf(w, "  %-12s %s opened %s\n", p.Kind, p.Label, p.OpenedAt)
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\nSkipped lines")
		for _, pw := range r.Warnings {
			fmt.Fprintf(w, "  line %d: %s\n", pw.Line, pw.Reason)
		}
	}
}

func durationCell(timed int, ms int64) string {
	if timed == 0 {
		return "-"
	}
	return fmt.Sprintf("%dms", ms)
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
