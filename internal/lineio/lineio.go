// Package lineio provides small io.Writer helpers for consuming subprocess
// output streams: a line-splitting writer shared by every external-engine
// invocation, and a bounded writer that keeps only the tail of stderr.
package lineio

import (
	"bytes"
	"strings"
	"sync"
)

// DefaultTailLimit is the stderr tail kept for diagnostics.
const DefaultTailLimit = 8 * 1024

// LineWriter buffers written bytes and invokes a callback for every
// complete line. Close flushes any trailing partial line. It is safe to
// use as exec.Cmd stdout/stderr, which write from a separate goroutine.
type LineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	fn  func(line string)
}

// NewLineWriter creates a LineWriter that calls fn for each line without
// its trailing newline. A nil fn discards all lines.
func NewLineWriter(fn func(line string)) *LineWriter {
	if fn == nil {
		fn = func(string) {}
	}
	return &LineWriter{fn: fn}
}

// Write implements io.Writer. It never returns an error.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(data[:idx], "\r"))
		w.buf.Next(idx + 1)
		w.fn(line)
	}
	return len(p), nil
}

// Close flushes a trailing partial line, if any.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		line := strings.TrimRight(w.buf.String(), "\r")
		w.buf.Reset()
		w.fn(line)
	}
	return nil
}

// TailWriter keeps only the last limit bytes written to it, bounding
// memory when capturing stderr from long-running subprocesses.
type TailWriter struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

// NewTailWriter creates a TailWriter retaining at most limit bytes.
// A non-positive limit falls back to DefaultTailLimit.
func NewTailWriter(limit int) *TailWriter {
	if limit <= 0 {
		limit = DefaultTailLimit
	}
	return &TailWriter{limit: limit}
}

// Write implements io.Writer. It never returns an error.
func (w *TailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	if w.buf.Len() > w.limit {
		// Keep only the tail
		b := w.buf.Bytes()
		tail := make([]byte, w.limit)
		copy(tail, b[len(b)-w.limit:])
		w.buf.Reset()
		w.buf.Write(tail)
	}
	return len(p), nil
}

// String returns the retained tail.
func (w *TailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// Truncate shortens s to at most maxLen bytes, keeping the tail.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
