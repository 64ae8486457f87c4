package trace

import (
	"fmt"
	"strings"
)

// MaxLineLen bounds a single input line. Longer lines are reported as
// warnings and never parsed.
const MaxLineLen = 1 << 20

// longLinePreview is how much of an oversized line a warning keeps.
const longLinePreview = 80

// ParseWarning describes a line that was skipped.
type ParseWarning struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func (w *ParseWarning) Error() string {
	if w.Line > 0 {
		return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
	}
	return w.Reason
}

// ParseLine parses a single trace line with no marker and no line number.
func ParseLine(line string) (Record, error) {
	rec, ok, err := (&Parser{}).Parse(0, line)
	if err == nil && !ok {
		err = &ParseWarning{Text: line, Reason: "empty line"}
	}
	return rec, err
}

// Parser turns raw lines into records.
//
// When Marker is set, only lines containing it are considered and parsing
// starts right after its first occurrence. Everything else is foreign log
// noise and is ignored without a warning.
type Parser struct {
	Marker string
}

// NewParser creates a Parser with the given marker (may be empty).
func NewParser(marker string) *Parser {
	return &Parser{Marker: marker}
}

// Parse parses one line. ok is false for lines that carry no trace record
// at all (blank, or no marker); err is a *ParseWarning for lines that look
// like trace records but are malformed.
func (p *Parser) Parse(lineNo int, line string) (rec Record, ok bool, err error) {
	if len(line) > MaxLineLen {
		return Record{}, false, &ParseWarning{
			Line:   lineNo,
			Text:   strings.ToValidUTF8(line[:longLinePreview], "") + "...",
			Reason: fmt.Sprintf("line longer than %d bytes", MaxLineLen),
		}
	}
	text := strings.TrimRight(line, "\r\n")
	if p.Marker != "" {
		_, after, found := strings.Cut(text, p.Marker)
		if !found {
			return Record{}, false, nil
		}
		text = after
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Record{}, false, nil
	}

	warn := func(format string, args ...any) (Record, bool, error) {
		return Record{}, false, &ParseWarning{Line: lineNo, Text: text, Reason: fmt.Sprintf(format, args...)}
	}

	fields := strings.SplitN(text, "|", 4)
	if len(fields) < 3 {
		return warn("expected at least 3 pipe-delimited fields, got %d", len(fields))
	}

	ts, err := ParseTimestamp(strings.TrimSpace(fields[0]))
	if err != nil {
		return warn("%v", err)
	}

	token := strings.TrimSpace(fields[1])
	if token == "" {
		return warn("empty event code")
	}
	code, _ := LookupCode(token)

	rec = Record{
		Line:    lineNo,
		Time:    ts,
		Code:    code,
		RawCode: token,
		Subject: strings.TrimSpace(fields[2]),
	}
	if len(fields) == 4 {
		rec.Details = ParseDetails(fields[3])
	}
	return rec, true, nil
}
