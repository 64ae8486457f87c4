package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultPoll is how often Tail re-reads the file when no event arrives.
// Some filesystems (network mounts, some containers) never deliver
// write events.
const DefaultPoll = 500 * time.Millisecond

// TailOptions configure Tail.
type TailOptions struct {
	Extractor *Extractor
	Poll      time.Duration
	Log       *zap.Logger
}

// Tail follows a growing plain-text capture, calling fn for each complete
// line: first everything already in the file, then lines as they are
// appended. A truncated file is read again from the start.
//
// Tail returns when ctx is done (with ctx.Err(), after handing out any
// trailing partial line) or when fn returns an error.
func Tail(ctx context.Context, path string, opts TailOptions, fn func(string) error) error {
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		f.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	t := &tailer{file: f, path: path, x: opts.Extractor, fn: fn, log: opts.Log}
	defer func() { t.file.Close() }()
	if err := t.read(); err != nil {
		return err
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := t.flush(); err != nil {
				return err
			}
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				opts.Log.Info("capture file moved away; waiting for it to return", zap.String("path", path))
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := t.read(); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			opts.Log.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			if err := t.read(); err != nil {
				return err
			}
		}
	}
}

type tailer struct {
	file    *os.File
	path    string
	offset  int64
	partial []byte
	x       *Extractor
	fn      func(string) error
	log     *zap.Logger
}

// read consumes everything appended since the last read.
func (t *tailer) read() error {
	if err := t.checkTruncate(); err != nil {
		return err
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := t.file.ReadAt(buf, t.offset)
		if n > 0 {
			t.offset += int64(n)
			if err := t.consume(buf[:n]); err != nil {
				return err
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", t.path, err)
		}
	}
}

func (t *tailer) checkTruncate() error {
	info, err := os.Stat(t.path)
	if err != nil {
		// Moved away mid-rotation; keep the open handle.
		return nil
	}
	if cur, err := t.file.Stat(); err == nil && !os.SameFile(info, cur) {
		nf, err := os.Open(t.path)
		if err != nil {
			return nil
		}
		t.log.Info("capture file replaced; reading from the start", zap.String("path", t.path))
		t.file.Close()
		t.file = nf
		t.offset = 0
		t.partial = nil
		return nil
	}
	if info.Size() < t.offset {
		t.log.Info("capture file truncated; reading from the start", zap.String("path", t.path))
		t.offset = 0
		t.partial = nil
	}
	return nil
}

func (t *tailer) consume(data []byte) error {
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			t.partial = appendCapped(t.partial, data)
			return nil
		}
		line := data[:i]
		if len(t.partial) > 0 {
			line = appendCapped(t.partial, line)
			t.partial = nil
		}
		if err := t.emit(line); err != nil {
			return err
		}
		data = data[i+1:]
	}
}

func (t *tailer) flush() error {
	if len(t.partial) == 0 {
		return nil
	}
	line := t.partial
	t.partial = nil
	return t.emit(line)
}

func (t *tailer) emit(raw []byte) error {
	return deliver(bytes.TrimRight(raw, "\r"), t.x, t.fn)
}
