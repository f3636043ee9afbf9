package server

import (
	"bytes"
	"strings"
	"sync"
)

// LogRing is a bounded line buffer for child console output. Bytes are
// decoded as UTF-8 with lossy replacement; an unterminated trailing chunk is
// held as the partial line until its newline arrives.
type LogRing struct {
	mu      sync.Mutex
	lines   []string
	start   int
	count   int
	partial []byte
}

// NewLogRing creates a ring holding at most max lines.
func NewLogRing(max int) *LogRing {
	if max <= 0 {
		max = 10000
	}
	return &LogRing{lines: make([]string, max)}
}

// Write implements io.Writer for the PTY reader.
func (r *LogRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial = append(r.partial, p...)
	for {
		idx := bytes.IndexByte(r.partial, '\n')
		if idx < 0 {
			break
		}
		r.appendLine(decodeLine(r.partial[:idx]))
		r.partial = r.partial[idx+1:]
	}
	return len(p), nil
}

func decodeLine(b []byte) string {
	return strings.ToValidUTF8(strings.TrimSuffix(string(b), "\r"), "�")
}

func (r *LogRing) appendLine(line string) {
	pos := (r.start + r.count) % len(r.lines)
	r.lines[pos] = line
	if r.count < len(r.lines) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.lines)
	}
}

// Tail returns the last n lines, oldest first. With includePartial set, the
// current unterminated line is appended as a final element when non-empty.
func (r *LogRing) Tail(n int, includePartial bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]string, 0, n+1)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.lines[(r.start+i)%len(r.lines)])
	}
	if includePartial && len(r.partial) > 0 {
		out = append(out, decodeLine(r.partial))
	}
	return out
}

// Len returns the number of complete lines held.
func (r *LogRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Clear drops all buffered lines.
func (r *LogRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start, r.count, r.partial = 0, 0, nil
}
