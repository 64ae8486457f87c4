package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/trace"
)

// marshalJSON encodes v without HTML escaping, so "<" and "&" in subjects
// survive as written.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encode appends a newline.
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// marshalDetails encodes record details as canonical JSON. An empty
// details list is "{}".
func marshalDetails(d trace.Details) (string, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	b, err := trace.MarshalCanonical(d)
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullFrame maps the zero FrameID to NULL.
func nullFrame(id engine.FrameID) sql.NullInt64 {
	if id == engine.BackgroundID {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}
