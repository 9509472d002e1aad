package fusion

import (
	"testing"
	"time"

	"github.com/sioly123/Lazarus-Ground-Station/internal/frame"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestBuffer_WaitsForBothHalves(t *testing.T) {
	b := New()

	if _, ok := b.UpdateTelemetry(frame.Telemetry{Altitude: 10}); ok {
		t.Fatalf("expected no record after telemetry only")
	}
	if _, ok := b.UpdateTelemetry(frame.Telemetry{Altitude: 20}); ok {
		t.Fatalf("expected no record after repeated telemetry")
	}
	rec, ok := b.UpdateTransmission(frame.Transmission{Len: 12, RSSI: -91, SNR: -3})
	if !ok {
		t.Fatalf("expected record once both halves are known")
	}
	if rec.Telemetry.Altitude != 20 {
		t.Fatalf("altitude=%v want latest telemetry 20", rec.Telemetry.Altitude)
	}
	if rec.Source != SourceTransmission {
		t.Fatalf("source=%q", rec.Source)
	}
}

func TestBuffer_TransmissionFirst(t *testing.T) {
	b := New()
	if _, ok := b.UpdateTransmission(frame.Transmission{Len: 1}); ok {
		t.Fatalf("expected no record after transmission only")
	}
	if _, ok := b.UpdateTelemetry(frame.Telemetry{Velocity: 1}); !ok {
		t.Fatalf("expected record")
	}
}

func TestBuffer_EveryLaterUpdateEmitsWithOtherHalf(t *testing.T) {
	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewWithClock(fixedClock(ts))
	b.UpdateTelemetry(frame.Telemetry{Velocity: 1})
	b.UpdateTransmission(frame.Transmission{RSSI: -50})

	rec, ok := b.UpdateTelemetry(frame.Telemetry{Velocity: 2})
	if !ok || rec.Telemetry.Velocity != 2 || rec.Transmission.RSSI != -50 {
		t.Fatalf("rec=%+v ok=%v", rec, ok)
	}
	rec, ok = b.UpdateTransmission(frame.Transmission{RSSI: -60})
	if !ok || rec.Telemetry.Velocity != 2 || rec.Transmission.RSSI != -60 {
		t.Fatalf("rec=%+v ok=%v", rec, ok)
	}
	if !rec.Timestamp.Equal(ts) {
		t.Fatalf("timestamp=%s want %s", rec.Timestamp, ts)
	}
}

func TestBuffer_Reset(t *testing.T) {
	b := New()
	b.UpdateTelemetry(frame.Telemetry{})
	b.UpdateTransmission(frame.Transmission{})
	if !b.Ready() {
		t.Fatalf("expected ready")
	}
	b.Reset()
	if b.Ready() {
		t.Fatalf("expected not ready after reset")
	}
	if _, ok := b.UpdateTelemetry(frame.Telemetry{}); ok {
		t.Fatalf("expected no record after reset")
	}
}
