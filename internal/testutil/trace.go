package testutil

import (
	"io"
	"strings"

	"github.com/roach88/screentrace/internal/trace"
)

// TraceBuilder writes trace lines against a TraceClock.
//
//	b := testutil.NewTraceBuilder("10:00:00.000")
//	b.Emit("ACT_RESUME", "Main")
//	b.After(100).Emit("DB_READ", "Users", "rows=50")
//	res, err := a.Analyze(ctx, b.Reader())
type TraceBuilder struct {
	clock *TraceClock
	lines []string
}

// NewTraceBuilder starts a trace at start ("HH:MM:SS.mmm").
func NewTraceBuilder(start string) *TraceBuilder {
	return &TraceBuilder{clock: NewTraceClock(start)}
}

// After advances the clock by ms.
func (b *TraceBuilder) After(ms int64) *TraceBuilder {
	b.clock.Advance(ms)
	return b
}

// Emit appends one line at the current time. details are joined with
// spaces into the fourth field.
func (b *TraceBuilder) Emit(code, subject string, details ...string) *TraceBuilder {
	line := b.clock.Now().String() + "|" + code + "|" + subject
	if len(details) > 0 {
		line += "|" + strings.Join(details, " ")
	}
	b.lines = append(b.lines, line)
	return b
}

// Raw appends a line verbatim.
func (b *TraceBuilder) Raw(line string) *TraceBuilder {
	b.lines = append(b.lines, line)
	return b
}

// Now returns the builder's current time.
func (b *TraceBuilder) Now() trace.Timestamp {
	return b.clock.Now()
}

// Lines returns the lines written so far.
func (b *TraceBuilder) Lines() []string {
	return append([]string(nil), b.lines...)
}

// String returns the trace as newline-terminated text.
func (b *TraceBuilder) String() string {
	if len(b.lines) == 0 {
		return ""
	}
	return strings.Join(b.lines, "\n") + "\n"
}

// Reader returns the trace as an io.Reader.
func (b *TraceBuilder) Reader() io.Reader {
	return strings.NewReader(b.String())
}
