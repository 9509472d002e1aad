package fusion

import (
	"time"

	"github.com/sioly123/Lazarus-Ground-Station/internal/frame"
)

// Source names the half whose update produced a CombinedRecord.
type Source string

const (
	SourceTelemetry    Source = "telemetry"
	SourceTransmission Source = "transmission"
)

// CombinedRecord pairs the latest telemetry with the latest link report.
//
// The two halves are independent radio lines joined by recency only; they
// are not guaranteed to describe the same packet.
type CombinedRecord struct {
	Timestamp    time.Time          `json:"timestamp"`
	Telemetry    frame.Telemetry    `json:"telemetry"`
	Transmission frame.Transmission `json:"transmission"`
	Source       Source             `json:"source"`
}

// Buffer holds the most recent value of each half. It emits a record on
// every update once both halves have been seen.
//
// Buffer is not safe for concurrent use; the reader loop is its only writer.
type Buffer struct {
	now func() time.Time

	telemetry    frame.Telemetry
	hasTelemetry bool

	transmission    frame.Transmission
	hasTransmission bool
}

func New() *Buffer {
	return NewWithClock(time.Now)
}

// NewWithClock uses now to stamp emitted records.
func NewWithClock(now func() time.Time) *Buffer {
	if now == nil {
		now = time.Now
	}
	return &Buffer{now: now}
}

func (b *Buffer) UpdateTelemetry(t frame.Telemetry) (CombinedRecord, bool) {
	b.telemetry = t
	b.hasTelemetry = true
	return b.combine(SourceTelemetry)
}

func (b *Buffer) UpdateTransmission(x frame.Transmission) (CombinedRecord, bool) {
	b.transmission = x
	b.hasTransmission = true
	return b.combine(SourceTransmission)
}

// Ready reports whether both halves have been observed.
func (b *Buffer) Ready() bool {
	return b.hasTelemetry && b.hasTransmission
}

// Reset forgets both halves, as at session start.
func (b *Buffer) Reset() {
	*b = Buffer{now: b.now}
}

func (b *Buffer) combine(src Source) (CombinedRecord, bool) {
	if !b.Ready() {
		return CombinedRecord{}, false
	}
	return CombinedRecord{
		Timestamp:    b.now().UTC(),
		Telemetry:    b.telemetry,
		Transmission: b.transmission,
		Source:       src,
	}, true
}
