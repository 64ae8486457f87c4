package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/screentrace/internal/trace"
)

// ErrStopped is returned when records are fed after Finish or Stop.
var ErrStopped = errors.New("engine stopped")

// StrictParseError is returned by FeedLine when tolerant parsing is off and
// a line does not parse. The run cannot continue past it.
type StrictParseError struct {
	Warning *trace.ParseWarning
}

// Error implements the error interface.
func (e *StrictParseError) Error() string {
	return fmt.Sprintf("strict parsing: %v", e.Warning)
}

// Unwrap exposes the underlying ParseWarning to errors.As.
func (e *StrictParseError) Unwrap() error {
	return e.Warning
}

// IsStrictParseError reports whether err is (or wraps) a StrictParseError.
func IsStrictParseError(err error) bool {
	var se *StrictParseError
	return errors.As(err, &se)
}
