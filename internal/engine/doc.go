// Package engine replays a trace into a scope-annotated timeline.
//
// ARCHITECTURE:
//
// Single-Writer Pipeline:
// Records must be seen in order because scope state is path-dependent. The
// Engine owns one Tracker and one Correlator and feeds them from a single
// goroutine, either synchronously (FeedLine/Feed) or from the Run loop
// draining a line queue (Enqueue).
//
// Record Flow:
// 1. Line parsed by trace.Parser (noise skipped, malformed lines warned)
// 2. Timestamp normalized (midnight wrap, out-of-order clamp)
// 3. Tracker applies lifecycle codes and advances background state
// 4. Correlator attributes every non-lifecycle record to the open scopes
// 5. Event appended to the timeline
//
// Snapshot() hands out a partial Timeline at any point; Finish() hands out
// the complete one. Timelines are never mutated after they are returned, so
// detectors may read them from many goroutines.
//
// Frame IDs come from a per-run logical Clock starting at 1, never from
// trace timestamps. No state is shared between Engines.
package engine
