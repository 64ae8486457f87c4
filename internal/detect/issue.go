package detect

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/screentrace/internal/trace"
)

// Severity of an Issue.
type Severity string

const (
	SeverityInfo   Severity = "INFO"
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Severities lists every severity, most severe first.
var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Rank orders severities; higher is more severe. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	}
	return 0
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity accepts a severity name in any case.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", fmt.Errorf("unknown severity %q (want high, medium, low or info)", s)
	}
	return sev, nil
}

// Kind names the rule that raised an Issue.
type Kind string

const (
	KindDuplicateQuery       Kind = "DuplicateQuery"
	KindMissingLoad          Kind = "MissingLoad"
	KindZeroRowQuery         Kind = "ZeroRowQuery"
	KindSlowCall             Kind = "SlowCall"
	KindBackgroundReQuery    Kind = "BackgroundReQuery"
	KindUnbalancedLifecycle  Kind = "UnbalancedLifecycle"
	KindAmbiguousAttribution Kind = "AmbiguousAttribution"
	KindLowConfidenceHost    Kind = "LowConfidenceHost"
)

// kindRank fixes the tie-break order between rules regardless of how a
// registry was assembled.
var kindRank = map[Kind]int{
	KindDuplicateQuery:       0,
	KindMissingLoad:          1,
	KindZeroRowQuery:         2,
	KindSlowCall:             3,
	KindBackgroundReQuery:    4,
	KindUnbalancedLifecycle:  5,
	KindAmbiguousAttribution: 6,
	KindLowConfidenceHost:    7,
}

func rank(k Kind) int {
	if r, ok := kindRank[k]; ok {
		return r
	}
	return len(kindRank)
}

// Issue is one detected anomaly.
type Issue struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`

	// Evidence is the ordered list of timeline seqs backing the issue.
	Evidence []int `json:"evidence"`

	FirstSeenAt trace.Timestamp `json:"first_seen_at"`

	// Subject is the query, screen or call the issue is about.
	Subject string `json:"subject,omitempty"`

	// Scope is the label of the frame the issue belongs to, if any.
	Scope string `json:"scope,omitempty"`

	Message string `json:"message"`
}

func (i Issue) firstEvidence() int {
	if len(i.Evidence) == 0 {
		return -1
	}
	return i.Evidence[0]
}

// compareIssues is the total order of the issue list.
func compareIssues(a, b Issue) int {
	return cmpOr(
		cmp.Compare(a.FirstSeenAt, b.FirstSeenAt),
		cmp.Compare(rank(a.Kind), rank(b.Kind)),
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.firstEvidence(), b.firstEvidence()),
		cmp.Compare(a.Subject, b.Subject),
		cmp.Compare(a.Scope, b.Scope),
		slices.Compare(a.Evidence, b.Evidence),
		cmp.Compare(a.Message, b.Message),
	)
}

// Sort orders issues in place.
func Sort(issues []Issue) {
	slices.SortStableFunc(issues, compareIssues)
}
