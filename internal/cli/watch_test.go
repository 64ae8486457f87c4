package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/screentrace/internal/report"
	"github.com/roach88/screentrace/internal/testutil"
)

const openTrace = "10:00:00.000|ACT_RESUME|Main\n10:00:00.100|DB_READ|Users|rows=5\n"

func runWatchCmd(t *testing.T, format string, timeout time.Duration, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newWatchCommand(&WatchOptions{
		RootOptions: &RootOptions{Format: format, Quiet: true},
		RunIDs:      testutil.NewFixedRunID("watch-run"),
	})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

func TestWatch_FinalReportOnStop(t *testing.T) {
	path := writeCapture(t, openTrace)

	out, err := runWatchCmd(t, "json", 300*time.Millisecond, path, "--interval", "0")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		RunID  string        `json:"run_id"`
		Data   report.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "watch-run", resp.RunID)
	assert.Equal(t, 2, resp.Data.Stats.Records)
	require.Len(t, resp.Data.Pending, 1)
	assert.Equal(t, "Main", resp.Data.Pending[0].Label)
}

func TestWatch_PartialReports(t *testing.T) {
	path := writeCapture(t, openTrace)

	out, err := runWatchCmd(t, "text", 500*time.Millisecond, path, "--interval", "50ms")
	require.NoError(t, err)
	assert.Contains(t, out, "=== partial report 1 ===")
	assert.Contains(t, out, "Trace Report (partial)")
	assert.Contains(t, out, "=== final report ===")
	assert.Contains(t, out, "Unterminated")
}

func TestWatch_Errors(t *testing.T) {
	_, err := runWatchCmd(t, "text", time.Second, filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)

	path := writeCapture(t, openTrace)
	_, err = runWatchCmd(t, "text", time.Second, path, "--interval", "-1s")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeConfig)
}
