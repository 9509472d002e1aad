package radio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRFConfig_Command(t *testing.T) {
	rf := NewRFConfig()
	got := rf.Command()
	want := "at+test=rfcfg,868.000,SF10,125,12,15,20,ON,OFF,OFF"
	if got != want {
		t.Fatalf("Command=%q want %q", got, want)
	}
	if s := rf.String(); !strings.HasPrefix(s, "868 MHz SF10") {
		t.Fatalf("String=%q", s)
	}
}

func TestRFConfig_Validate(t *testing.T) {
	if err := NewRFConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := []func(*RFConfig){
		func(c *RFConfig) { c.SpreadingFactor = 6 },
		func(c *RFConfig) { c.SpreadingFactor = 13 },
		func(c *RFConfig) { c.BandwidthKHz = 200 },
		func(c *RFConfig) { c.PowerDBm = 23 },
		func(c *RFConfig) { c.FrequencyMHz = 0 },
		func(c *RFConfig) { c.TxPreamble = 0 },
		func(c *RFConfig) { c.RxPreamble = 70000 },
	}
	for i, mutate := range bad {
		c := NewRFConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, c)
		}
	}
}

func TestConfigure_SendsHandshakeInOrder(t *testing.T) {
	fs := &fakeSerial{}
	if err := Configure(context.Background(), fs, nil, 0, nil); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	want := "at\r\nat+mode=test\r\nat+test=rxlrpkt\r\n"
	if fs.written.String() != want {
		t.Fatalf("written=%q want %q", fs.written.String(), want)
	}
	if fs.resets != 1 {
		t.Fatalf("resets=%d want 1", fs.resets)
	}
}

func TestConfigure_WithRFConfig(t *testing.T) {
	fs := &fakeSerial{}
	rf := NewRFConfig()
	if err := Configure(context.Background(), fs, &rf, 0, nil); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(fs.written.String(), "\r\n"), "\r\n")
	if len(lines) != 4 || lines[2] != rf.Command() || lines[3] != CmdReceive {
		t.Fatalf("lines=%q", lines)
	}
}

func TestConfigure_InvalidRFConfigWritesNothing(t *testing.T) {
	fs := &fakeSerial{}
	rf := NewRFConfig()
	rf.SpreadingFactor = 5
	if err := Configure(context.Background(), fs, &rf, 0, nil); err == nil {
		t.Fatalf("expected validation error")
	}
	if fs.writeCalls != 0 {
		t.Fatalf("writeCalls=%d", fs.writeCalls)
	}
}

func TestConfigure_WriteFailure(t *testing.T) {
	fs := &fakeSerial{writeErr: errors.New("unplugged"), failAfter: 1}
	err := Configure(context.Background(), fs, nil, 0, nil)
	if !errors.Is(err, ErrConfigWrite) {
		t.Fatalf("err=%v want ErrConfigWrite", err)
	}
	if !strings.Contains(err.Error(), CmdTestMode) {
		t.Fatalf("error should name the failing command: %v", err)
	}
	if fs.resets != 0 {
		t.Fatalf("input must not be flushed after a failed handshake")
	}
}

func TestConfigure_CancelledDuringSettle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fs := &fakeSerial{}
	err := Configure(ctx, fs, nil, time.Hour, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if fs.writeCalls != 1 {
		t.Fatalf("writeCalls=%d want 1", fs.writeCalls)
	}
}
