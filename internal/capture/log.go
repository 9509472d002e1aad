package capture

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sioly123/Lazarus-Ground-Station/internal/frame"
)

// Capture format: line-oriented text.
//
//	# comment
//	START
//	<t_ns>,<hex>[,<kind>]
//
// t_ns is nanoseconds since the preceding START, hex is the raw radio line
// without its terminator and kind is the frame kind the line decoded to when
// it was recorded. Captures without the kind column are still accepted.
//
// Hex keeps quotes, separators and damaged bytes from the module intact.

const startMarker = "START"

type Record struct {
	At time.Duration
	// Line is nil for a START marker.
	Line []byte
	Kind frame.Kind
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var recs []Record
	for lineNo := 1; s.Scan(); lineNo++ {
		text := strings.TrimSpace(s.Text())
		switch {
		case text == "", strings.HasPrefix(text, "#"):
			continue
		case text == startMarker:
			recs = append(recs, Record{})
			continue
		}
		rec, err := parseRecord(text)
		if err != nil {
			return nil, fmt.Errorf("capture line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseRecord(text string) (Record, error) {
	fields := strings.Split(text, ",")
	if len(fields) < 2 || len(fields) > 3 {
		return Record{}, fmt.Errorf("want <t_ns>,<hex>[,<kind>], got %d fields", len(fields))
	}

	ts := strings.TrimSpace(fields[0])
	ns, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("timestamp %q: %w", ts, err)
	}
	if ns < 0 {
		return Record{}, fmt.Errorf("negative timestamp %d", ns)
	}

	h := strings.ReplaceAll(strings.TrimSpace(fields[1]), " ", "")
	if h == "" {
		return Record{}, errors.New("empty line payload")
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return Record{}, fmt.Errorf("hex payload: %w", err)
	}
	// Older tools captured the module's CRLF with each line.
	raw = bytes.TrimRight(raw, "\r\n")
	if len(raw) == 0 {
		return Record{}, errors.New("line payload is only a terminator")
	}

	rec := Record{At: time.Duration(ns), Line: raw}
	if len(fields) == 3 {
		if err := rec.Kind.UnmarshalText([]byte(strings.TrimSpace(fields[2]))); err != nil {
			return Record{}, err
		}
	} else {
		rec.Kind = frame.Decode(string(raw)).Kind
	}
	return rec, nil
}

// ReadFile loads a capture from disk.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// Writer appends raw lines to a capture file. It is safe for concurrent use
// so a shutdown flush cannot race a late line from the reader loop.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	lines  uint64
	bytes  uint64
	kinds  [3]uint64
	closed bool
}

// CreateWriter truncates path, creating parent directories as needed.
func CreateWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString(startMarker + "\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

// WriteLine records line with its decoded kind. Trailing CR/LF is dropped.
func (ww *Writer) WriteLine(now time.Time, line []byte) error {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return errors.New("line is empty")
	}
	kind := frame.Decode(string(line)).Kind

	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("capture writer is closed")
	}

	d := max(now.Sub(ww.start), 0)
	if _, err := fmt.Fprintf(ww.w, "%d,%s,%s\n", d.Nanoseconds(), hex.EncodeToString(line), kind); err != nil {
		return err
	}
	ww.lines++
	ww.bytes += uint64(len(line))
	if int(kind) < len(ww.kinds) {
		ww.kinds[kind]++
	}
	return nil
}

// Counts reports lines and raw bytes written so far.
func (ww *Writer) Counts() (lines, size uint64) {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	return ww.lines, ww.bytes
}

// KindCount reports how many written lines decoded to k.
func (ww *Writer) KindCount(k frame.Kind) uint64 {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if k < 0 || int(k) >= len(ww.kinds) {
		return 0
	}
	return ww.kinds[k]
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}
