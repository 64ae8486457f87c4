package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrExportMismatch is returned when an export does not read back as it
// was written.
var ErrExportMismatch = errors.New("export does not match run")

// Verify reads run x.RunID back and checks it against x: the runs row,
// the row count of every table, and each issue with its evidence. It
// returns the counts it read.
func (s *Store) Verify(ctx context.Context, x Export) (Counts, error) {
	if x.Timeline == nil || x.Report == nil {
		return Counts{}, ErrNoTimeline
	}
	run, err := s.Run(ctx, x.RunID)
	if err != nil {
		return Counts{}, err
	}
	counts, err := s.Counts(ctx, x.RunID)
	if err != nil {
		return Counts{}, err
	}
	issues, err := s.Issues(ctx, x.RunID)
	if err != nil {
		return counts, err
	}

	var problems []string
	check := func(name string, got, want any) {
		if got != want {
			problems = append(problems, fmt.Sprintf("%s = %v, want %v", name, got, want))
		}
	}
	tl := x.Timeline
	check("digest", run.Digest, tl.Digest)
	check("complete", run.Complete, tl.Complete)
	check("runs.records", run.Records, len(tl.Events))
	check("records", counts.Records, len(tl.Events))
	check("frames", counts.Frames, len(tl.Frames))

	attributions := 0
	for _, ev := range tl.Events {
		attributions += len(ev.Scopes)
	}
	check("attributions", counts.Attributions, attributions)
	check("issues", counts.Issues, len(x.Report.Issues))

	for i, is := range issues {
		if i >= len(x.Report.Issues) {
			break
		}
		want := x.Report.Issues[i]
		if is.Kind != string(want.Kind) || !slices.Equal(is.Evidence, want.Evidence) {
			problems = append(problems, fmt.Sprintf("issue %d = %s %v, want %s %v",
				i, is.Kind, is.Evidence, want.Kind, want.Evidence))
		}
	}

	if len(problems) > 0 {
		return counts, fmt.Errorf("%w: %s", ErrExportMismatch, strings.Join(problems, "; "))
	}
	return counts, nil
}
