package trace

import (
	"math"
	"strconv"
	"strings"
)

// Detail is one details token. Tokens without '=' are flags; their Value
// is "true" and they re-serialize as the bare key.
type Detail struct {
	Key   string
	Value string
	Flag  bool
}

// Details is the ordered key/value tail of a record. Keys are unique.
type Details []Detail

// ParseDetails splits s on whitespace and each token on its first '='.
// A repeated key overwrites the earlier value in place.
func ParseDetails(s string) Details {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return nil
	}
	out := make(Details, 0, len(tokens))
	index := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		d := Detail{Key: tok, Value: "true", Flag: true}
		if k, v, ok := strings.Cut(tok, "="); ok {
			d = Detail{Key: k, Value: v}
		}
		if i, seen := index[d.Key]; seen {
			out[i] = d
			continue
		}
		index[d.Key] = len(out)
		out = append(out, d)
	}
	return out
}

// Get returns the value for key.
func (d Details) Get(key string) (string, bool) {
	for _, kv := range d {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Int returns the value for key parsed as a base-10 integer.
func (d Details) Int(key string) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Map returns the details as a plain map.
func (d Details) Map() map[string]string {
	m := make(map[string]string, len(d))
	for _, kv := range d {
		m[kv.Key] = kv.Value
	}
	return m
}

// String re-serializes the details in their original order.
func (d Details) String() string {
	parts := make([]string, len(d))
	for i, kv := range d {
		if kv.Flag {
			parts[i] = kv.Key
		} else {
			parts[i] = kv.Key + "=" + kv.Value
		}
	}
	return strings.Join(parts, " ")
}

// ParseDuration reads a `dur` value in milliseconds: "120", "120ms",
// "1.5ms" (rounded) or "2s".
func ParseDuration(v string) (int64, bool) {
	scale := 1.0
	switch {
	case strings.HasSuffix(v, "ms"):
		v = strings.TrimSuffix(v, "ms")
	case strings.HasSuffix(v, "s"):
		v = strings.TrimSuffix(v, "s")
		scale = 1000
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n < 0 || n > math.MaxInt64/int64(scale) {
			return 0, false
		}
		return n * int64(scale), true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	ms := math.Round(f * scale)
	if ms >= float64(math.MaxInt64) {
		return 0, false
	}
	return int64(ms), true
}

// Record is one parsed trace line. Records are values; nothing in the
// engine mutates them after parsing.
type Record struct {
	// Line is the 1-based position of the line in its source.
	Line int

	Time Timestamp
	Code EventCode

	// RawCode is the code token exactly as it appeared. For known codes it
	// equals string(Code).
	RawCode string

	Subject string
	Details Details
}

// Name returns the code token as written on the line.
func (r Record) Name() string {
	if r.RawCode != "" {
		return r.RawCode
	}
	return string(r.Code)
}

// Host returns the `host` detail.
func (r Record) Host() string {
	v, _ := r.Details.Get("host")
	return v
}

// Rows returns the `rows` detail.
func (r Record) Rows() (int64, bool) {
	return r.Details.Int("rows")
}

// DurationMs returns the `dur` detail in milliseconds.
func (r Record) DurationMs() (int64, bool) {
	v, ok := r.Details.Get("dur")
	if !ok {
		return 0, false
	}
	return ParseDuration(v)
}

// State returns the `state` detail upper-cased.
func (r Record) State() string {
	v, _ := r.Details.Get("state")
	return strings.ToUpper(v)
}

// Operation returns the `op` detail, or for HTTP records the method taken
// from the first word of the subject.
func (r Record) Operation() string {
	if v, ok := r.Details.Get("op"); ok {
		return v
	}
	if r.Code == CodeHTTP {
		if method, _, ok := strings.Cut(r.Subject, " "); ok {
			return method
		}
	}
	return ""
}

// String re-serializes the record as a trace line.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString(r.Time.String())
	b.WriteByte('|')
	b.WriteString(r.Name())
	b.WriteByte('|')
	b.WriteString(r.Subject)
	if len(r.Details) > 0 {
		b.WriteByte('|')
		b.WriteString(r.Details.String())
	}
	return b.String()
}
