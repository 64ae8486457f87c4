// Package trace defines the trace record model and the line parser.
//
// A trace line has the shape:
//
//	HH:MM:SS.mmm|EVENT_CODE|subject[|key=value key=value flag]
//
// Parsing is pure: ParseLine never touches shared state and never aborts a
// run. Lines that cannot be parsed come back as *ParseWarning so the caller
// can count them and move on.
//
// # Determinism
//
// Everything exported from this package that ends up in a report or an
// export is serialized through MarshalCanonical (sorted keys, NFC strings,
// no floats) so that identical input produces byte-identical output.
package trace
