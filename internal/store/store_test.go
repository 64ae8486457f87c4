package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/screentrace/internal/config"
	"github.com/roach88/screentrace/internal/detect"
	"github.com/roach88/screentrace/internal/engine"
	"github.com/roach88/screentrace/internal/report"
)

var exportTrace = []string{
	"10:00:00.000|ACT_RESUME|Main",
	"10:00:00.100|DB_READ|Users|rows=0",
	"10:00:00.200|FRAG_RESUME|List|host=Main",
	"10:00:00.300|HTTP|GET /x?a=1&b=<2>|code=200 dur=1500ms",
	"10:00:00.400|ACT_PAUSE|Main",
	"10:00:00.500|ACT_PAUSE|Ghost",
}

func testExport(t *testing.T) Export {
	t.Helper()
	cfg := config.Default()
	e := engine.New(cfg)
	for _, line := range exportTrace {
		if err := e.FeedLine(line); err != nil {
			t.Fatalf("FeedLine(%q) failed: %v", line, err)
		}
	}
	tl := e.Finish()
	issues, err := detect.NewDetector(detect.DefaultRegistry(cfg)).Run(context.Background(), tl)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	return Export{
		RunID:    "run-1",
		Timeline: tl,
		Report:   report.Build(tl, issues, report.Options{SlowestCalls: cfg.SlowestCalls}),
		Config:   cfg,
	}
}

func createTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.db")
	st, err := Create(path)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st, path
}

func TestCreate_Pragmas(t *testing.T) {
	st, _ := createTestStore(t)

	tests := []struct {
		pragma   string
		expected string
	}{
		{"journal_mode", "delete"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		if err := st.verifyPragma(tt.pragma, tt.expected); err != nil {
			t.Errorf("pragma check failed: %v", err)
		}
	}
}

func TestCreate_ReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")
	if err := os.WriteFile(path, []byte("not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+"-journal", []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := Create(path)
	if err != nil {
		t.Fatalf("Create() over a stale file failed: %v", err)
	}
	defer st.Close()

	if err := st.WriteRun(context.Background(), testExport(t)); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
}

func TestCreate_FreshEachTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		st, err := Create(path)
		if err != nil {
			t.Fatalf("Create() #%d failed: %v", i, err)
		}
		// Same run ID twice only works if the second file starts empty.
		if err := st.WriteRun(ctx, testExport(t)); err != nil {
			t.Fatalf("WriteRun() #%d failed: %v", i, err)
		}
		st.Close()
	}
}

func TestWriteRun_Counts(t *testing.T) {
	st, _ := createTestStore(t)
	ctx := context.Background()
	x := testExport(t)

	if err := st.WriteRun(ctx, x); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	c, err := st.Counts(ctx, x.RunID)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if c.Records != len(exportTrace) {
		t.Errorf("records = %d, want %d", c.Records, len(exportTrace))
	}
	if c.Frames != len(x.Timeline.Frames) {
		t.Errorf("frames = %d, want %d", c.Frames, len(x.Timeline.Frames))
	}
	// DB_READ goes to Main, HTTP to the open List component.
	if c.Attributions != 2 {
		t.Errorf("attributions = %d, want 2", c.Attributions)
	}
	if c.Issues != len(x.Report.Issues) {
		t.Errorf("issues = %d, want %d", c.Issues, len(x.Report.Issues))
	}
	evidence := 0
	for _, is := range x.Report.Issues {
		evidence += len(is.Evidence)
	}
	if c.IssueEvidence != evidence {
		t.Errorf("issue_evidence = %d, want %d", c.IssueEvidence, evidence)
	}
}

func TestWriteRun_IssuesRoundTrip(t *testing.T) {
	st, _ := createTestStore(t)
	ctx := context.Background()
	x := testExport(t)

	if err := st.WriteRun(ctx, x); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	got, err := st.Issues(ctx, x.RunID)
	if err != nil {
		t.Fatalf("Issues() failed: %v", err)
	}
	if len(got) != len(x.Report.Issues) {
		t.Fatalf("got %d issues, want %d", len(got), len(x.Report.Issues))
	}
	for i, want := range x.Report.Issues {
		g := got[i]
		if g.Position != i || g.Kind != string(want.Kind) || g.Severity != string(want.Severity) {
			t.Errorf("issue %d = %+v, want kind %s severity %s", i, g, want.Kind, want.Severity)
		}
		if len(g.Evidence) != len(want.Evidence) {
			t.Errorf("issue %d evidence = %v, want %v", i, g.Evidence, want.Evidence)
			continue
		}
		for j := range want.Evidence {
			if g.Evidence[j] != want.Evidence[j] {
				t.Errorf("issue %d evidence = %v, want %v", i, g.Evidence, want.Evidence)
				break
			}
		}
	}
}

func TestWriteRun_RunRow(t *testing.T) {
	st, _ := createTestStore(t)
	ctx := context.Background()
	x := testExport(t)

	if err := st.WriteRun(ctx, x); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	row, err := st.Run(ctx, x.RunID)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if row.Digest != x.Timeline.Digest {
		t.Errorf("digest = %q, want %q", row.Digest, x.Timeline.Digest)
	}
	if !row.Complete {
		t.Error("complete = false, want true")
	}

	var rep report.Report
	if err := json.Unmarshal([]byte(row.Report), &rep); err != nil {
		t.Fatalf("stored report is not JSON: %v", err)
	}
	if rep.Digest != x.Report.Digest {
		t.Errorf("stored report digest = %q, want %q", rep.Digest, x.Report.Digest)
	}

	var cfg config.Config
	if err := json.Unmarshal([]byte(row.Config), &cfg); err != nil {
		t.Fatalf("stored config is not JSON: %v", err)
	}
	if cfg.SlowCallThresholdMs != x.Config.SlowCallThresholdMs {
		t.Errorf("stored slow_call_threshold_ms = %d", cfg.SlowCallThresholdMs)
	}
}

func TestWriteRun_NoHTMLEscaping(t *testing.T) {
	st, _ := createTestStore(t)
	ctx := context.Background()
	x := testExport(t)

	if err := st.WriteRun(ctx, x); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	var subject, details string
	err := st.DB().QueryRow(`SELECT subject, details FROM records WHERE run_id = ? AND seq = 3`, x.RunID).
		Scan(&subject, &details)
	if err != nil {
		t.Fatalf("query record failed: %v", err)
	}
	if subject != "GET /x?a=1&b=<2>" {
		t.Errorf("subject = %q", subject)
	}
	if details != `{"code":"200","dur":"1500ms"}` {
		t.Errorf("details = %s", details)
	}

	row, err := st.Run(ctx, x.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(row.Report, "&b=<2>") {
		t.Error("report JSON escaped HTML characters")
	}
}

func TestWriteRun_AttributionLabels(t *testing.T) {
	st, _ := createTestStore(t)
	ctx := context.Background()
	x := testExport(t)

	if err := st.WriteRun(ctx, x); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	rows, err := st.DB().QueryContext(ctx,
		"SELECT seq, label FROM attributions WHERE run_id = ? ORDER BY seq", x.RunID)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var seq int
		var label string
		if err := rows.Scan(&seq, &label); err != nil {
			t.Fatal(err)
		}
		got = append(got, fmt.Sprintf("%d:%s", seq, label))
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	want := []string{"1:Main", "3:Main/List"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("attributions = %v, want %v", got, want)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	st, _ := createTestStore(t)
	ctx := context.Background()
	x := testExport(t)

	if err := st.WriteRun(ctx, x); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	c, err := st.Verify(ctx, x)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if c.Records != len(exportTrace) || c.Issues != len(x.Report.Issues) {
		t.Errorf("Verify() counts = %+v", c)
	}
}

func TestVerify_DetectsMismatch(t *testing.T) {
	st, _ := createTestStore(t)
	ctx := context.Background()
	x := testExport(t)

	if err := st.WriteRun(ctx, x); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	if _, err := st.DB().ExecContext(ctx, "DELETE FROM issue_evidence WHERE run_id = ?", x.RunID); err != nil {
		t.Fatal(err)
	}

	_, err := st.Verify(ctx, x)
	if !errors.Is(err, ErrExportMismatch) {
		t.Fatalf("Verify() = %v, want ErrExportMismatch", err)
	}
	if !strings.Contains(err.Error(), "issue 0") {
		t.Errorf("Verify() error %q does not name the issue", err)
	}
}

func TestVerify_MissingRun(t *testing.T) {
	st, _ := createTestStore(t)
	if _, err := st.Verify(context.Background(), testExport(t)); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Verify(unwritten) = %v, want ErrRunNotFound", err)
	}
}

func TestWriteRun_Errors(t *testing.T) {
	st, _ := createTestStore(t)
	ctx := context.Background()

	if err := st.WriteRun(ctx, Export{RunID: "x"}); err != ErrNoTimeline {
		t.Errorf("WriteRun(no timeline) = %v, want ErrNoTimeline", err)
	}
	x := testExport(t)
	x.RunID = ""
	if err := st.WriteRun(ctx, x); err == nil {
		t.Error("WriteRun(empty run ID) succeeded")
	}
	if _, err := st.Run(ctx, "missing"); err == nil {
		t.Error("Run(missing) succeeded")
	}
}

func TestWriteRun_DuplicateRollsBack(t *testing.T) {
	st, _ := createTestStore(t)
	ctx := context.Background()
	x := testExport(t)

	if err := st.WriteRun(ctx, x); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	if err := st.WriteRun(ctx, x); err == nil {
		t.Fatal("second WriteRun() with the same run ID succeeded")
	}
	c, err := st.Counts(ctx, x.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Records != len(exportTrace) {
		t.Errorf("records after failed write = %d, want %d", c.Records, len(exportTrace))
	}
}
