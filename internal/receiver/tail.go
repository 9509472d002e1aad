package receiver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sioly123/Lazarus-Ground-Station/internal/frame"
)

const defaultTailLineBytes = 256

// TailLine is one recent raw radio line together with how it decoded.
type TailLine struct {
	At     time.Time `json:"at"`
	Line   string    `json:"line"`
	Kind   string    `json:"kind"`
	Reason string    `json:"reason,omitempty"`
	// Cut is the number of bytes removed from the end of Line.
	Cut int `json:"cut,omitempty"`
}

func (l TailLine) Rejected() bool { return l.Reason != "" }

func (l TailLine) String() string {
	var b strings.Builder
	b.WriteString(l.At.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(l.Kind)
	if l.Reason != "" {
		fmt.Fprintf(&b, " (%s)", l.Reason)
	}
	b.WriteString(": ")
	b.WriteString(l.Line)
	if l.Cut > 0 {
		fmt.Fprintf(&b, "...[+%d bytes]", l.Cut)
	}
	return b.String()
}

// lineTail is a fixed ring of the most recent lines.
type lineTail struct {
	mu       sync.Mutex
	ring     []TailLine
	next     int
	full     bool
	maxBytes int
}

func newLineTail(size, maxBytes int) *lineTail {
	if size < 0 {
		size = 0
	}
	if maxBytes <= 0 {
		maxBytes = defaultTailLineBytes
	}
	return &lineTail{ring: make([]TailLine, size), maxBytes: maxBytes}
}

func (t *lineTail) record(at time.Time, line []byte, f frame.Frame) {
	if t == nil || len(t.ring) == 0 {
		return
	}
	e := TailLine{At: at.UTC(), Kind: f.Kind.String()}
	if f.Reason != nil {
		e.Reason = f.Reason.Error()
	}
	if cut := len(line) - t.maxBytes; cut > 0 {
		line = line[:t.maxBytes]
		e.Cut = cut
	}
	e.Line = strings.ToValidUTF8(string(line), "\uFFFD")

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring[t.next] = e
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.full = true
	}
}

// lines returns the kept lines oldest first.
func (t *lineTail) lines() []TailLine {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		return append([]TailLine(nil), t.ring[:t.next]...)
	}
	out := make([]TailLine, 0, len(t.ring))
	out = append(out, t.ring[t.next:]...)
	return append(out, t.ring[:t.next]...)
}

// LastRejected returns the newest kept line the decoder rejected.
func (s Snapshot) LastRejected() (TailLine, bool) {
	for i := len(s.Tail) - 1; i >= 0; i-- {
		if s.Tail[i].Rejected() {
			return s.Tail[i], true
		}
	}
	return TailLine{}, false
}
