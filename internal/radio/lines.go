package radio

import (
	"bytes"
	"io"
)

// lineReader splits a timeout-driven byte stream into trimmed lines. Partial
// lines are carried over between calls.
type lineReader struct {
	r       io.Reader
	buf     []byte
	chunk   []byte
	max     int
	dropped uint64
}

func newLineReader(r io.Reader, maxLineBytes int) *lineReader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &lineReader{
		r:     r,
		buf:   make([]byte, 0, 512),
		chunk: make([]byte, 256),
		max:   maxLineBytes,
	}
}

// next returns the next non-empty line. It performs at most one Read, so it
// blocks no longer than the underlying read timeout. A nil line with a nil
// error means no complete line arrived in time.
func (lr *lineReader) next() ([]byte, error) {
	if line, ok := lr.pop(); ok {
		return line, nil
	}

	n, err := lr.r.Read(lr.chunk)
	if n > 0 {
		lr.buf = append(lr.buf, lr.chunk[:n]...)
	}
	if line, ok := lr.pop(); ok {
		return line, nil
	}
	if len(lr.buf) > lr.max {
		// No terminator in sight; resynchronise on the next newline.
		lr.buf = lr.buf[:0]
		lr.dropped++
	}
	return nil, err
}

func (lr *lineReader) pop() ([]byte, bool) {
	for {
		i := bytes.IndexByte(lr.buf, '\n')
		if i < 0 {
			return nil, false
		}
		line := bytes.TrimSpace(lr.buf[:i])
		var out []byte
		if len(line) > 0 && len(line) <= lr.max {
			out = append([]byte(nil), line...)
		} else if len(line) > lr.max {
			lr.dropped++
		}
		lr.buf = append(lr.buf[:0], lr.buf[i+1:]...)
		if out != nil {
			return out, true
		}
	}
}

func (lr *lineReader) reset() {
	lr.buf = lr.buf[:0]
}
