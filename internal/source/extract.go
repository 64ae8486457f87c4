package source

import (
	"bytes"
	"strings"

	"github.com/valyala/fastjson"
)

// Extractor pulls the trace line out of a raw input line.
//
// With no field configured every line passes through unchanged. With a
// field, lines that are JSON objects yield that field's string value;
// objects without it are dropped, and non-JSON lines pass through so mixed
// captures still work.
//
// A nil *Extractor passes everything through.
type Extractor struct {
	path   []string
	parser fastjson.ParserPool
}

// NewExtractor creates an extractor for field (may be empty). Dots in
// field select nested objects: "log.msg".
func NewExtractor(field string) *Extractor {
	x := &Extractor{}
	if field != "" {
		x.path = strings.Split(field, ".")
	}
	return x
}

// Extract returns the trace line carried by raw.
func (x *Extractor) Extract(raw []byte) (string, bool) {
	if x == nil || len(x.path) == 0 {
		return string(raw), true
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return string(raw), true
	}

	p := x.parser.Get()
	defer x.parser.Put(p)

	v, err := p.ParseBytes(trimmed)
	if err != nil {
		return string(raw), true
	}
	field := v.Get(x.path...)
	if field == nil || field.Type() != fastjson.TypeString {
		return "", false
	}
	return string(field.GetStringBytes()), true
}
