package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sioly123/Lazarus-Ground-Station/internal/capture"
	"github.com/sioly123/Lazarus-Ground-Station/internal/config"
	"github.com/sioly123/Lazarus-Ground-Station/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dataLine(payload string) []byte {
	return []byte(`+TEST: RX "` + strings.ToUpper(hex.EncodeToString([]byte(payload))) + `"`)
}

func writeCapture(t *testing.T, lines ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flight.cap")
	w, err := capture.CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	now := time.Now()
	for _, l := range lines {
		if err := w.WriteLine(now, l); err != nil {
			_ = w.Close()
			t.Fatalf("WriteLine() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	return path
}

func TestRun_ReplayWritesSessionOutputs(t *testing.T) {
	capPath := writeCapture(t,
		[]byte("+TEST: RXLRPKT"),
		dataLine("0;0;0;1;0;45.5;9.1"),
		[]byte("+TEST: LEN:28, RSSI:-72, SNR:9"),
		dataLine("55.2;80.1;0.5;3;120.5;45.5;9.1"),
		[]byte(`+TEST: RX "ZZ"`),
		[]byte("+TEST: LEN:28, RSSI:-95, SNR:-4"),
	)

	base := t.TempDir()
	cfg := config.Default()
	cfg.Session.BaseDir = base
	cfg.Capture.Replay.Enable = true
	cfg.Capture.Replay.Path = capPath
	cfg.Capture.Replay.Speed = 1
	cfg.Receiver.IdleInterval = 5 * time.Millisecond
	if err := config.DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := run(ctx, cfg, discardLogger()); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("run() only returned after the test deadline")
	}

	dir := filepath.Join(base, "session_1")
	b, err := os.ReadFile(filepath.Join(dir, session.CSVFileName))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	rows := strings.Split(strings.TrimSpace(string(b)), "\n")
	// header + 3 combined records
	if len(rows) != 4 {
		t.Fatalf("csv rows=%d:\n%s", len(rows), b)
	}
	if !strings.HasSuffix(rows[3], ";55.2;80.1;0.5;3;120.5;45.5;9.1;28;-95;-4") {
		t.Fatalf("last row=%q", rows[3])
	}

	st := session.NewStore(filepath.Join(dir, session.SQLiteFileName))
	defer st.Close()
	recs, err := st.Records(context.Background(), 1)
	if err != nil {
		t.Fatalf("Records() error: %v", err)
	}
	if len(recs) != 3 || recs[2].Quality.String() != "weak" || recs[0].Quality.String() != "good" {
		t.Fatalf("records=%+v", recs)
	}
	evs, err := st.Events(context.Background(), 1)
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(evs) != 2 || evs[0].String() != "calibration entered" || evs[1].String() != "start entered" {
		t.Fatalf("events=%+v", evs)
	}
}

func TestRun_RecordsCaptureWhenRadioMissing(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Session.BaseDir = base
	cfg.Serial.Port = "/dev/lazarus-does-not-exist"
	cfg.Capture.Record.Enable = true
	cfg.Session.SQLite = new(bool)
	cfg.Receiver.IdleInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := run(ctx, cfg, discardLogger()); err != nil {
		t.Fatalf("run() error: %v", err)
	}

	dir := filepath.Join(base, "session_1")
	b, err := os.ReadFile(filepath.Join(dir, session.CaptureName))
	if err != nil {
		t.Fatalf("ReadFile(capture) error: %v", err)
	}
	if string(b) != "START\n" {
		t.Fatalf("capture=%q", b)
	}
	if _, err := os.Stat(filepath.Join(dir, session.SQLiteFileName)); !os.IsNotExist(err) {
		t.Fatalf("sqlite should be disabled, stat err=%v", err)
	}
	csv, err := os.ReadFile(filepath.Join(dir, session.CSVFileName))
	if err != nil {
		t.Fatalf("ReadFile(csv) error: %v", err)
	}
	if !bytes.HasPrefix(csv, []byte("timestamp;velocity")) || bytes.Count(csv, []byte("\n")) != 1 {
		t.Fatalf("csv=%q", csv)
	}
}

func TestPrintCaptureSummary_PrintsExpectedFields(t *testing.T) {
	path := writeCapture(t,
		dataLine("1;2;3;0;4;5;6"),
		[]byte("+TEST: LEN:12, RSSI:-91, SNR:-3"),
		dataLine("1;2"),
	)

	var buf bytes.Buffer
	if err := printCaptureSummary(&buf, path); err != nil {
		t.Fatalf("printCaptureSummary() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"path: ", "segments: 1", "lines: 3", "telemetry: 1", "transmission: 1", "rejected: 1", "  partial: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output: %q", want, out)
		}
	}

	if err := printCaptureSummary(&buf, "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
