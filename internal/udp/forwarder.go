package udp

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/sioly123/Lazarus-Ground-Station/internal/flight"
	"github.com/sioly123/Lazarus-Ground-Station/internal/frame"
	"github.com/sioly123/Lazarus-Ground-Station/internal/fusion"
	"github.com/sioly123/Lazarus-Ground-Station/internal/link"
	"github.com/sioly123/Lazarus-Ground-Station/internal/receiver"
)

// Datagram types carried in the "type" field.
const (
	TypeRecord = "record"
	TypeStatus = "status"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Message is the JSON datagram sent for each combined record.
type Message struct {
	Type         string             `json:"type"`
	Session      int                `json:"session,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	Source       fusion.Source      `json:"source"`
	Telemetry    frame.Telemetry    `json:"telemetry"`
	Transmission frame.Transmission `json:"transmission"`
	Quality      link.Quality       `json:"quality"`
	Flags        []string           `json:"flags,omitempty"`
	Events       []string           `json:"events,omitempty"`
}

// NewMessage flattens a record, its link quality and any status edges.
func NewMessage(sessionID int, rec fusion.CombinedRecord, q link.Quality, events []flight.Event) Message {
	m := Message{
		Type:         TypeRecord,
		Session:      sessionID,
		Timestamp:    rec.Timestamp,
		Source:       rec.Source,
		Telemetry:    rec.Telemetry,
		Transmission: rec.Transmission,
		Quality:      q,
	}
	for _, f := range flight.StatusFlags(rec.Telemetry.Status).Set() {
		m.Flags = append(m.Flags, f.String())
	}
	for _, e := range events {
		m.Events = append(m.Events, e.String())
	}
	return m
}

// Status is the periodic receiver health datagram.
type Status struct {
	Type     string            `json:"type"`
	Session  int               `json:"session,omitempty"`
	At       time.Time         `json:"at"`
	Receiver receiver.Snapshot `json:"receiver"`
}

func NewStatus(sessionID int, at time.Time, snap receiver.Snapshot) Status {
	return Status{Type: TypeStatus, Session: sessionID, At: at.UTC(), Receiver: snap}
}

// Forwarder sends one datagram per record to a fixed destination, for live
// displays on the local network.
type Forwarder struct {
	dest string
	conn udpConn
	sent uint64
}

func NewForwarder(dest string) (*Forwarder, error) {
	return newForwarder(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newForwarder(dest string, resolve resolveFunc, dial dialFunc) (*Forwarder, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &Forwarder{dest: dest, conn: conn}, nil
}

func (f *Forwarder) Dest() string { return f.dest }

// Sent returns the number of datagrams written.
func (f *Forwarder) Sent() uint64 { return f.sent }

func (f *Forwarder) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if _, err := f.conn.Write(payload); err != nil {
		return err
	}
	f.sent++
	return nil
}

func (f *Forwarder) Forward(m Message) error {
	p, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return f.Send(p)
}

func (f *Forwarder) ForwardStatus(s Status) error {
	p, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return f.Send(p)
}

func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
