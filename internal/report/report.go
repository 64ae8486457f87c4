// Package report aggregates a correlated timeline and its issues into the
// structured result of a run.
//
// A Report is plain data. Every collection is a slice in a defined order,
// so encoding the same Report twice gives the same bytes.
package report

import (
	"encoding/json"

	"github.com/roach88/screentrace/internal/detect"
	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/trace"
)

// Report is the result of one run (or, with Complete=false, of the prefix
// seen so far).
type Report struct {
	Digest   string `json:"digest"`
	Complete bool   `json:"complete"`

	Inventory  []Screen        `json:"inventory"`
	Navigation []Step          `json:"navigation"`
	Queries    []ScreenQueries `json:"queries"`
	Timing     Timing          `json:"timing"`
	Issues     []Issue         `json:"issues"`
	BySeverity []SeverityGroup `json:"by_severity"`
	Workers    []Worker        `json:"workers"`
	Pending    []PendingFrame  `json:"pending"`

	ParseWarnings int                  `json:"parse_warnings"`
	Warnings      []trace.ParseWarning `json:"warnings"`
	Stats         engine.Stats         `json:"stats"`
}

// Screen is one inventory entry: a unique screen or component subject.
type Screen struct {
	Subject     string   `json:"subject"`
	Kind        string   `json:"kind"`
	FirstSeenAt string   `json:"first_seen_at"`
	Intervals   int      `json:"intervals"`
	Hosts       []string `json:"hosts,omitempty"`
}

// Step is one entry of the navigation sequence.
type Step struct {
	Seq     int    `json:"seq"`
	At      string `json:"at"`
	Action  string `json:"action"`
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Host    string `json:"host,omitempty"`

	Implicit               bool `json:"implicit,omitempty"`
	LowConfidence          bool `json:"low_confidence,omitempty"`
	ReturnedFromBackground bool `json:"returned_from_background,omitempty"`
}

// ScreenQueries is the query table of one scope label.
type ScreenQueries struct {
	Screen  string       `json:"screen"`
	Queries []QueryStats `json:"queries"`
}

// QueryStats aggregates one query or endpoint within a screen. Duration
// fields only cover occurrences that carried a duration.
type QueryStats struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
	Timed     int    `json:"timed"`
	MinMs     int64  `json:"min_ms"`
	AvgMs     int64  `json:"avg_ms"`
	MaxMs     int64  `json:"max_ms"`
	TotalRows int64  `json:"total_rows"`

	sumMs int64
}

// Timing is the global timing summary.
type Timing struct {
	// StartupMs runs from the first INIT to the first screen resume.
	StartupMs *int64 `json:"startup_ms,omitempty"`

	// SpanMs is the time between the first and last record.
	SpanMs int64 `json:"span_ms"`

	Slowest []Call `json:"slowest"`
}

// Call is a timed record in the slowest-calls list.
type Call struct {
	Seq        int    `json:"seq"`
	Line       int    `json:"line"`
	At         string `json:"at"`
	Code       string `json:"code"`
	Subject    string `json:"subject"`
	Scope      string `json:"scope"`
	DurationMs int64  `json:"duration_ms"`
}

// Issue is a detected issue with its evidence resolved to source lines.
type Issue struct {
	detect.Issue
	At    string `json:"at"`
	Lines []int  `json:"lines"`
}

// SeverityGroup lists the issues of one severity as indexes into
// Report.Issues.
type SeverityGroup struct {
	Severity detect.Severity `json:"severity"`
	Count    int             `json:"count"`
	Issues   []int           `json:"issues"`
}

// Worker summarizes the frames of one worker subject.
type Worker struct {
	Subject     string `json:"subject"`
	FirstSeenAt string `json:"first_seen_at"`
	Runs        int    `json:"runs"`
	LastState   string `json:"last_state"`
	Running     bool   `json:"running"`
}

// PendingFrame is a frame still open when the report was built.
type PendingFrame struct {
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	OpenedAt string `json:"opened_at"`
	OpenSeq  int    `json:"open_seq"`
}

// JSON encodes the report with indentation.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Count returns the number of issues at or above min.
func (r *Report) Count(min detect.Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity.AtLeast(min) {
			n++
		}
	}
	return n
}
