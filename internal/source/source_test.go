package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "10:00:00.000|ACT_RESUME|Main\n10:00:00.100|DB_READ|Users|rows=1\n"

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	rc, err := Open(r)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestOpen_Plain(t *testing.T) {
	assert.Equal(t, sample, readAll(t, strings.NewReader(sample)))
}

func TestOpen_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	assert.Equal(t, sample, readAll(t, &buf))
}

func TestOpen_Zstd(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll([]byte(sample), nil)
	require.NoError(t, enc.Close())

	assert.Equal(t, sample, readAll(t, bytes.NewReader(compressed)))
}

func TestOpen_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"empty", nil, ErrEmptyInput},
		{"whitespace only", []byte(" \n\n\t\n"), ErrEmptyInput},
		{"nul bytes", []byte("10:00:00.000|INIT|\x00\x01\x02"), ErrBinaryInput},
		{"invalid utf-8", []byte{0xff, 0xfe, 0xfd, 'a', 'b'}, ErrBinaryInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(bytes.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpen_LongTextWithSplitRune(t *testing.T) {
	// A two-byte rune straddling the sniff boundary is still text.
	input := strings.Repeat("a", sniffLen-1) + "\u00e9" + "\n"
	assert.Equal(t, input, readAll(t, strings.NewReader(input)))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	rc, err := OpenFile(path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, sample, string(data))

	empty := filepath.Join(t.TempDir(), "empty.log")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = OpenFile(empty)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Contains(t, err.Error(), "empty.log")

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScan(t *testing.T) {
	var got []string
	err := Scan(context.Background(), strings.NewReader(sample+"tail-without-newline"), nil, func(l string) error {
		got = append(got, l)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"10:00:00.000|ACT_RESUME|Main",
		"10:00:00.100|DB_READ|Users|rows=1",
		"tail-without-newline",
	}, got)
}

func TestScan_OversizedLine(t *testing.T) {
	long := "10:00:00.050|DB_READ|" + strings.Repeat("x", 2<<20)
	input := "10:00:00.000|ACT_RESUME|Main\n" + long + "\n10:00:00.100|ACT_PAUSE|Main\n"

	var got []string
	err := Scan(context.Background(), strings.NewReader(input), nil, func(l string) error {
		got = append(got, l)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3, "the scan continues past the long line")
	assert.Equal(t, "10:00:00.000|ACT_RESUME|Main", got[0])
	assert.Len(t, got[1], maxLine+1)
	assert.True(t, strings.HasPrefix(got[1], "10:00:00.050|DB_READ|"))
	assert.Equal(t, "10:00:00.100|ACT_PAUSE|Main", got[2])
}

func TestScan_OversizedLineSkipsExtraction(t *testing.T) {
	x := NewExtractor("msg")
	long := `{"msg":"` + strings.Repeat("x", maxLine) + `"}`

	var got []string
	err := Scan(context.Background(), strings.NewReader(long+"\n"), x, func(l string) error {
		got = append(got, l)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0], maxLine+1)
}

func TestScan_StopsOnError(t *testing.T) {
	stop := assert.AnError
	n := 0
	err := Scan(context.Background(), strings.NewReader(sample), nil, func(string) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Scan(ctx, strings.NewReader(sample), nil, func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractor(t *testing.T) {
	tests := []struct {
		name  string
		field string
		raw   string
		want  string
		ok    bool
	}{
		{"no field passes through", "", `{"msg":"x"}`, `{"msg":"x"}`, true},
		{"top-level field", "msg", `{"msg":"10:00:00.000|INIT|App","level":"info"}`, "10:00:00.000|INIT|App", true},
		{"nested field", "log.msg", `{"log":{"msg":"10:00:00.000|INIT|App"}}`, "10:00:00.000|INIT|App", true},
		{"escaped pipe text", "msg", `{"msg":"10:00:00.000|HTTP|GET /a b"}`, "10:00:00.000|HTTP|GET /a b", true},
		{"missing field dropped", "msg", `{"other":"x"}`, "", false},
		{"non-string field dropped", "msg", `{"msg":42}`, "", false},
		{"plain line passes through", "msg", "10:00:00.000|INIT|App", "10:00:00.000|INIT|App", true},
		{"broken json passes through", "msg", `{"msg":`, `{"msg":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewExtractor(tt.field).Extract([]byte(tt.raw))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractor_Nil(t *testing.T) {
	var x *Extractor
	got, ok := x.Extract([]byte("line"))
	assert.True(t, ok)
	assert.Equal(t, "line", got)
}
