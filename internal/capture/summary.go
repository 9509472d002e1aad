package capture

import (
	"errors"
	"time"

	"github.com/sioly123/Lazarus-Ground-Station/internal/frame"
)

// Summary counts the frame kinds in a capture. It decodes every line but
// does not fuse or classify.
type Summary struct {
	Segments     int
	Lines        int
	Bytes        uint64
	Telemetry    int
	Transmission int
	Unrecognized int
	Malformed    int
	Partial      int
	NumericParse int
	MaxDuration  time.Duration
}

func Summarize(records []Record) Summary {
	var s Summary
	if len(records) == 0 {
		return s
	}

	var origin time.Duration
	hasLines := false
	for _, r := range records {
		if r.Line == nil {
			s.Segments++
			origin = r.At
			continue
		}
		hasLines = true
		s.Lines++
		s.Bytes += uint64(len(r.Line))

		at := r.At - origin
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		f := frame.Decode(string(r.Line))
		switch {
		case errors.Is(f.Reason, frame.ErrPartialFieldCount):
			s.Partial++
		case errors.Is(f.Reason, frame.ErrNumericParse):
			s.NumericParse++
		case f.Reason != nil:
			s.Malformed++
		case f.Kind == frame.KindTelemetry:
			s.Telemetry++
		case f.Kind == frame.KindTransmission:
			s.Transmission++
		default:
			s.Unrecognized++
		}
	}
	if s.Segments == 0 && hasLines {
		s.Segments = 1
	}
	return s
}

// Rejected is the number of data lines the decoder discarded.
func (s Summary) Rejected() int {
	return s.Malformed + s.Partial + s.NumericParse
}
