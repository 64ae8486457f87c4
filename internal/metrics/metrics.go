// Package metrics counts what one analysis run saw, in Prometheus form.
//
// Every Run owns its own registry. Nothing is registered globally, so two
// runs in one process never share counters.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/screentrace/internal/detect"
	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/trace"
)

// Run holds the collectors of a single run. It implements
// engine.Observer.
type Run struct {
	reg *prometheus.Registry

	Records      *prometheus.CounterVec
	Warnings     prometheus.Counter
	Frames       *prometheus.CounterVec
	Issues       *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	SpanSeconds  prometheus.Gauge
	OpenFrames   prometheus.Gauge
}

var _ engine.Observer = (*Run)(nil)

// New creates a Run with a fresh registry.
func New() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	r := &Run{
		reg: reg,
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screentrace_records_total",
			Help: "Accepted trace records by event code",
		}, []string{"code"}),
		Warnings: f.NewCounter(prometheus.CounterOpts{
			Name: "screentrace_parse_warnings_total",
			Help: "Lines skipped as malformed",
		}),
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screentrace_frames_total",
			Help: "Scope frames opened by kind",
		}, []string{"kind"}),
		Issues: f.NewCounterVec(prometheus.CounterOpts{
			Name: "screentrace_issues_total",
			Help: "Detected issues by kind and severity",
		}, []string{"kind", "severity"}),
		CallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screentrace_call_duration_seconds",
			Help:    "Durations reported by query and call records",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"code"}),
		SpanSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "screentrace_span_seconds",
			Help: "Time between the first and last accepted record",
		}),
		OpenFrames: f.NewGauge(prometheus.GaugeOpts{
			Name: "screentrace_open_frames",
			Help: "Frames still open when the timeline was taken",
		}),
	}

	// Pre-initialize so the textfile lists every series even at zero.
	r.Records.WithLabelValues(string(trace.CodeRaw))
	for _, k := range []engine.FrameKind{engine.KindTopLevel, engine.KindComponent, engine.KindWorker} {
		r.Frames.WithLabelValues(string(k))
	}
	return r
}

// Registry returns the run's registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.reg
}

// ObserveRecord counts one accepted record. Codes outside the known set
// count as RAW to keep label cardinality bounded.
func (r *Run) ObserveRecord(code string) {
	c, _ := trace.LookupCode(code)
	r.Records.WithLabelValues(string(c)).Inc()
}

// ObserveWarning counts one skipped line.
func (r *Run) ObserveWarning() {
	r.Warnings.Inc()
}

// ObserveFrame counts one opened frame.
func (r *Run) ObserveFrame(kind engine.FrameKind) {
	r.Frames.WithLabelValues(string(kind)).Inc()
}

// ObserveIssues counts detector output.
func (r *Run) ObserveIssues(issues []detect.Issue) {
	for _, is := range issues {
		r.Issues.WithLabelValues(string(is.Kind), string(is.Severity)).Inc()
	}
}

// ObserveTimeline records call durations and run-level gauges from a
// finished (or partial) timeline. Call it once per timeline.
func (r *Run) ObserveTimeline(tl *engine.Timeline) {
	for _, ev := range tl.Events {
		if ev.Lifecycle {
			continue
		}
		ms, ok := ev.DurationMs()
		if !ok {
			continue
		}
		code := ev.Record.Code
		if code == "" {
			code = trace.CodeRaw
		}
		r.CallDuration.WithLabelValues(string(code)).Observe(float64(ms) / 1000)
	}
	r.SpanSeconds.Set(float64(tl.EndAt.Millis()-tl.StartAt.Millis()) / 1000)

	open := 0
	for _, f := range tl.Frames {
		if !f.Closed {
			open++
		}
	}
	r.OpenFrames.Set(float64(open))
}

// WriteTextfile writes every collector in the Prometheus text format, for
// the node exporter textfile collector or plain inspection.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
