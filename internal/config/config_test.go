package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, int64(1000), c.SlowCallThresholdMs)
	assert.Equal(t, int64(30000), c.BackgroundTimeoutMs)
	assert.Equal(t, int64(2000), c.BackgroundResumeWindowMs)
	assert.Equal(t, 3, c.BackgroundReQueryThreshold)
	assert.True(t, c.Tolerant())
	assert.Equal(t, HostFallbackMostRecent, c.HostFallback)
	assert.Equal(t, 5, c.SlowestCalls)
	assert.NoError(t, c.Validate())
}

func TestTolerant_ExplicitFalseSurvivesDefaults(t *testing.T) {
	c := Config{TolerantParsing: Bool(false)}
	c.ApplyDefaults()
	assert.False(t, c.Tolerant())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	c := Default()
	c.SlowCallThresholdMs = -1
	c.BackgroundReQueryThreshold = -2
	c.HostFallback = "guess"

	err := c.Validate()
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Problems, 3)
	assert.Contains(t, err.Error(), "slow_call_threshold_ms must be positive")
	assert.Contains(t, err.Error(), "host_fallback")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "screentrace.yaml", `
slow_call_threshold_ms: 250
background_requery_threshold: 6
tolerant_parsing: false
host_fallback: detached
rules: [SlowCall, DuplicateQuery]
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(250), c.SlowCallThresholdMs)
	assert.Equal(t, 6, c.BackgroundReQueryThreshold)
	assert.False(t, c.Tolerant())
	assert.Equal(t, HostFallbackDetached, c.HostFallback)
	assert.Equal(t, []string{"SlowCall", "DuplicateQuery"}, c.Rules)
	assert.Equal(t, int64(30000), c.BackgroundTimeoutMs, "unset fields get defaults")
}

func TestLoad_YAMLEnvExpansion(t *testing.T) {
	t.Setenv("SCREENTRACE_MARKER", "TRACE: ")
	path := writeFile(t, "c.yml", "marker: \"${SCREENTRACE_MARKER}\"\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "TRACE: ", c.Marker)
}

func TestLoad_YAMLRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "c.yaml", "slow_call_treshold_ms: 10\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow_call_treshold_ms")
}

func TestLoad_EmptyYAMLIsDefaults(t *testing.T) {
	path := writeFile(t, "c.yaml", "\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_YAMLValidation(t *testing.T) {
	path := writeFile(t, "c.yaml", "background_timeout_ms: -5\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "background_timeout_ms must be positive")
}

func TestLoad_YAMLExplicitZeroIsRejected(t *testing.T) {
	for _, key := range []string{
		"slow_call_threshold_ms",
		"background_timeout_ms",
		"background_resume_window_ms",
		"background_requery_threshold",
		"slowest_calls",
	} {
		t.Run(key, func(t *testing.T) {
			path := writeFile(t, "c.yaml", key+": 0\n")

			_, err := Load(path)
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, []string{key + " must be positive, got 0"}, ve.Problems)
		})
	}
}

func TestLoad_CommentOnlyYAMLIsDefaults(t *testing.T) {
	path := writeFile(t, "c.yaml", "# nothing set yet\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_CUE(t *testing.T) {
	path := writeFile(t, "screentrace.cue", `
slow_call_threshold_ms: 400
background_resume_window_ms: 1500
host_fallback: "most-recent"
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(400), c.SlowCallThresholdMs)
	assert.Equal(t, int64(1500), c.BackgroundResumeWindowMs)
	assert.True(t, c.Tolerant())
}

func TestLoad_CUESchemaViolation(t *testing.T) {
	path := writeFile(t, "bad.cue", `host_fallback: "anywhere"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host_fallback")
}

func TestLoad_CUEClosedSchema(t *testing.T) {
	path := writeFile(t, "bad.cue", `slowness: 3`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
