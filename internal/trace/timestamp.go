package trace

import (
	"fmt"
	"strconv"
)

// Timestamp is a wall-clock time of day in milliseconds.
//
// Trace lines carry no date. After a midnight wrap the engine shifts
// timestamps by a whole day, so values can exceed DayMillis.
type Timestamp int64

// DayMillis is the length of one day in milliseconds.
const DayMillis Timestamp = 24 * 60 * 60 * 1000

// ParseTimestamp parses "HH:MM:SS.mmm".
func ParseTimestamp(s string) (Timestamp, error) {
	if len(s) != 12 || s[2] != ':' || s[5] != ':' || s[8] != '.' {
		return 0, fmt.Errorf("timestamp %q: want HH:MM:SS.mmm", s)
	}
	h, err := parseField(s[0:2], 23)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: hours: %w", s, err)
	}
	m, err := parseField(s[3:5], 59)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: minutes: %w", s, err)
	}
	sec, err := parseField(s[6:8], 59)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: seconds: %w", s, err)
	}
	ms, err := parseField(s[9:12], 999)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: millis: %w", s, err)
	}
	return Timestamp(((h*60+m)*60+sec)*1000 + ms), nil
}

func parseField(s string, max int64) (int64, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("non-digit in %q", s)
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v > max {
		return 0, fmt.Errorf("%d out of range", v)
	}
	return v, nil
}

// String formats t as HH:MM:SS.mmm, folding values past midnight back
// into the 24h clock.
func (t Timestamp) String() string {
	v := int64(t % DayMillis)
	if v < 0 {
		v += int64(DayMillis)
	}
	ms := v % 1000
	v /= 1000
	sec := v % 60
	v /= 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", v/60, v%60, sec, ms)
}

// Millis returns t as a plain integer.
func (t Timestamp) Millis() int64 {
	return int64(t)
}
