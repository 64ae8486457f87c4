// Package detect scans a correlated timeline for known bug signatures.
//
// Each Rule is a pure function of an immutable *engine.Timeline. Rules are
// registered in an ordered Registry and evaluated in parallel by a
// Detector; their results are merged and sorted so the output never depends
// on which rule finished first.
//
// Issue ordering is total: firstSeenAt, then the rule's fixed rank, then
// the first evidence seq, then subject and scope label.
package detect
