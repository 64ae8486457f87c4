// Package source turns capture files and streams into trace lines.
//
// It handles the envelopes real captures come in: gzip or zstd
// compression (sniffed from magic bytes), JSON-lines logs whose field
// holds the trace line, and growing files followed live (Tail).
package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/screentrace/internal/trace"
)

// ErrEmptyInput is returned for input with no content at all.
var ErrEmptyInput = errors.New("input is empty")

// ErrBinaryInput is returned for input that is not text.
var ErrBinaryInput = errors.New("input is not text")

// sniffLen is how much of the stream is inspected up front.
const sniffLen = 4096

// maxLine bounds a single line. Longer lines are cut to maxLine+1 bytes,
// enough for the parser to report them, and the rest is dropped.
const maxLine = trace.MaxLineLen

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// Open wraps r, decompressing it if needed, and rejects empty or binary
// input before any line is handed out.
func Open(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read input: %w", err)
	}

	var (
		body   io.Reader = br
		closer func()
	)
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		body, closer = zr, func() { zr.Close() }
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd: %w", err)
		}
		body, closer = zr, zr.Close
	}

	text := bufio.NewReaderSize(body, sniffLen)
	if err := checkText(text); err != nil {
		if closer != nil {
			closer()
		}
		return nil, err
	}
	return &readCloser{Reader: text, close: closer}, nil
}

// OpenFile opens path (or stdin for "-") with Open.
func OpenFile(path string) (io.ReadCloser, error) {
	if path == Stdin || path == "" {
		return Open(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rc, err := Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &readCloser{Reader: rc, close: func() {
		rc.Close()
		f.Close()
	}}, nil
}

// checkText peeks at the start of the stream.
func checkText(r *bufio.Reader) error {
	head, err := r.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return fmt.Errorf("read input: %w", err)
	}
	if len(bytes.TrimSpace(head)) == 0 {
		if len(head) < sniffLen {
			return ErrEmptyInput
		}
		return nil
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return ErrBinaryInput
	}
	// The peek may cut a multi-byte rune in half.
	if len(head) == sniffLen {
		if i := lastRuneStart(head); !utf8.FullRune(head[i:]) {
			head = head[:i]
		}
	}
	if !utf8.Valid(head) {
		return ErrBinaryInput
	}
	return nil
}

func lastRuneStart(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			return i
		}
	}
	return len(b)
}

type readCloser struct {
	io.Reader
	close func()
}

func (r *readCloser) Close() error {
	if r.close != nil {
		r.close()
		r.close = nil
	}
	return nil
}

// Scan reads r line by line, unwraps each line with x, and calls fn with
// the result. It stops at the first error from fn, or when ctx is done.
//
// An oversized line does not stop the scan: fn receives it cut short and
// unextracted, and the rest of the line is skipped.
func Scan(ctx context.Context, r io.Reader, x *Extractor, fn func(string) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	for {
		line, err := readLine(br, buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		buf = line[:0]
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := deliver(line, x, fn); err != nil {
			return err
		}
	}
}

// readLine returns the next line without its terminator, reusing buf.
// At most maxLine+1 bytes of a line are kept.
func readLine(br *bufio.Reader, buf []byte) ([]byte, error) {
	buf = buf[:0]
	for {
		chunk, err := br.ReadSlice('\n')
		buf = appendCapped(buf, chunk)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(buf) > 0 {
			err = nil
		}
		return bytes.TrimRight(buf, "\r\n"), err
	}
}

// appendCapped appends src to dst without growing dst past maxLine+1.
func appendCapped(dst, src []byte) []byte {
	if room := maxLine + 1 - len(dst); room > 0 {
		return append(dst, src[:min(len(src), room)]...)
	}
	return dst
}

// deliver hands one line to fn. Oversized lines skip extraction so the
// parser sees their length.
func deliver(line []byte, x *Extractor, fn func(string) error) error {
	if len(line) > maxLine {
		return fn(string(line))
	}
	text, ok := x.Extract(line)
	if !ok {
		return nil
	}
	return fn(text)
}
