package udp

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sioly123/Lazarus-Ground-Station/internal/flight"
	"github.com/sioly123/Lazarus-Ground-Station/internal/frame"
	"github.com/sioly123/Lazarus-Ground-Station/internal/fusion"
	"github.com/sioly123/Lazarus-Ground-Station/internal/link"
	"github.com/sioly123/Lazarus-Ground-Station/internal/receiver"
)

type fakeConn struct {
	writes    [][]byte
	writeErr  error
	closed    bool
	closeErr  error
	writeHits int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeHits++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return c.closeErr
}

func TestNewForwarder_DialsResolvedAddr(t *testing.T) {
	var gotNetwork string
	var gotRaddr *net.UDPAddr
	fc := &fakeConn{}

	resolve := func(network, address string) (*net.UDPAddr, error) {
		return net.ResolveUDPAddr(network, address)
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		gotNetwork = network
		gotRaddr = raddr
		return fc, nil
	}

	f, err := newForwarder("127.0.0.1:4000", resolve, dial)
	if err != nil {
		t.Fatalf("newForwarder() error: %v", err)
	}
	defer f.Close()

	if gotNetwork != "udp" {
		t.Fatalf("network=%q want %q", gotNetwork, "udp")
	}
	if gotRaddr == nil || gotRaddr.Port != 4000 || !gotRaddr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("raddr=%v want 127.0.0.1:4000", gotRaddr)
	}
	if f.Dest() != "127.0.0.1:4000" {
		t.Fatalf("dest=%q", f.Dest())
	}
}

func TestNewForwarder_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	resolve := func(network, address string) (*net.UDPAddr, error) {
		return nil, resolveErr
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return &fakeConn{}, nil
	}

	_, err := newForwarder("bad:addr", resolve, dial)
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
}

func TestForwarder_Send_EmptyNoWrite(t *testing.T) {
	fc := &fakeConn{}
	f := &Forwarder{dest: "x", conn: fc}

	if err := f.Send(nil); err != nil {
		t.Fatalf("Send(nil) error: %v", err)
	}
	if fc.writeHits != 0 {
		t.Fatalf("expected no writes, got %d", fc.writeHits)
	}
}

func TestForwarder_Send_PropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	fc := &fakeConn{writeErr: wantErr}
	f := &Forwarder{dest: "x", conn: fc}

	if err := f.Send([]byte{0x01}); !errors.Is(err, wantErr) {
		t.Fatalf("err=%v want %v", err, wantErr)
	}
	if f.Sent() != 0 {
		t.Fatalf("sent=%d", f.Sent())
	}
}

func TestForwarder_Forward_JSONDatagram(t *testing.T) {
	fc := &fakeConn{}
	f := &Forwarder{dest: "x", conn: fc}

	rec := fusion.CombinedRecord{
		Timestamp:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Telemetry:    frame.Telemetry{Altitude: 250, Status: 0b1010},
		Transmission: frame.Transmission{Len: 30, RSSI: -70, SNR: 9},
		Source:       fusion.SourceTelemetry,
	}
	events := []flight.Event{{Flag: flight.FlagApogee, Transition: flight.Entered}}
	if err := f.Forward(NewMessage(3, rec, link.Good, events)); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if len(fc.writes) != 1 || f.Sent() != 1 {
		t.Fatalf("writes=%d sent=%d", len(fc.writes), f.Sent())
	}

	var got map[string]any
	if err := json.Unmarshal(fc.writes[0], &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got["type"] != TypeRecord || got["quality"] != "good" || got["source"] != "telemetry" || got["session"] != float64(3) {
		t.Fatalf("message=%v", got)
	}
	flags, _ := got["flags"].([]any)
	if len(flags) != 2 || flags[0] != "start" || flags[1] != "apogee" {
		t.Fatalf("flags=%v", got["flags"])
	}
	evs, _ := got["events"].([]any)
	if len(evs) != 1 || evs[0] != "apogee entered" {
		t.Fatalf("events=%v", got["events"])
	}
}

func TestForwarder_ForwardStatus_EncodesSnapshot(t *testing.T) {
	fc := &fakeConn{}
	f := &Forwarder{dest: "x", conn: fc}

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	snap := receiver.Snapshot{
		Running: true,
		Stats:   receiver.Stats{Lines: 42, Dropped: 2, EventsCarried: 1},
		Tail:    []receiver.TailLine{{At: at, Line: `+TEST: RX "ZZ"`, Kind: "unrecognized", Reason: "malformed frame"}},
	}
	if err := f.ForwardStatus(NewStatus(3, at, snap)); err != nil {
		t.Fatalf("ForwardStatus() error: %v", err)
	}

	var got struct {
		Type     string            `json:"type"`
		Session  int               `json:"session"`
		Receiver receiver.Snapshot `json:"receiver"`
	}
	if err := json.Unmarshal(fc.writes[0], &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.Type != TypeStatus || got.Session != 3 || !got.Receiver.Running {
		t.Fatalf("status=%+v", got)
	}
	if got.Receiver.Stats.Lines != 42 || got.Receiver.Stats.EventsCarried != 1 {
		t.Fatalf("stats=%+v", got.Receiver.Stats)
	}
	if len(got.Receiver.Tail) != 1 || got.Receiver.Tail[0].Reason != "malformed frame" {
		t.Fatalf("tail=%+v", got.Receiver.Tail)
	}
}

func TestForwarder_Close_NilConnNoPanic(t *testing.T) {
	f := &Forwarder{}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}
