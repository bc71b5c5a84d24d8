package cmdutil

import (
	"bytes"
	"sync"
)

// DefaultLogRingSize is the number of lines kept by a LogRing created with
// size 0.
const DefaultLogRingSize = 1024

// LogRing is an io.Writer keeping the most recent lines written to it. It
// is safe for concurrent use.
type LogRing struct {
	mut     sync.Mutex
	lines   []string
	next    int
	full    bool
	partial []byte
}

// NewLogRing creates a LogRing holding up to size lines.
func NewLogRing(size int) *LogRing {
	if size <= 0 {
		size = DefaultLogRingSize
	}
	return &LogRing{lines: make([]string, size)}
}

// Write implements io.Writer. Text after the last newline is kept until the
// line is completed by a later write.
func (r *LogRing) Write(p []byte) (int, error) {
	r.mut.Lock()
	defer r.mut.Unlock()

	buf := p
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			r.partial = append(r.partial, buf...)
			break
		}
		r.push(string(append(r.partial, buf[:i]...)))
		r.partial = r.partial[:0]
		buf = buf[i+1:]
	}
	return len(p), nil
}

func (r *LogRing) push(line string) {
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the kept lines, oldest first.
func (r *LogRing) Lines() []string {
	r.mut.Lock()
	defer r.mut.Unlock()

	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
