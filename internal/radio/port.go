package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaud         = 9600
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultMaxLineBytes = 4 * 1024
)

// ErrPortUnavailable is returned by Open when the serial device cannot be
// used. The returned Port is degraded, not nil.
var ErrPortUnavailable = errors.New("serial port unavailable")

// LineSource yields newline-terminated lines from the radio. ok is false
// when no line arrived within the source's read timeout.
type LineSource interface {
	ReadLine() (line []byte, ok bool)
	Close() error
}

// PortConfig selects the serial device. Name may be empty to auto-detect.
type PortConfig struct {
	Name         string
	Baud         int
	ReadTimeout  time.Duration
	MaxLineBytes int
}

// CommandWriter is the part of a serial port the configurator needs.
type CommandWriter interface {
	io.Writer
	ResetInputBuffer() error
}

type serialPort interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// WithLogger sets the logger for the port.
func WithLogger(logger *slog.Logger) func(p *Port) {
	return func(p *Port) {
		p.logger = logger
	}
}

// Port is a LoRa module attached over UART. A Port whose device could not be
// opened (or later failed) is degraded: ReadLine returns immediately with no
// line and Configure is skipped.
type Port struct {
	name         string
	baud         int
	maxLineBytes int

	mu      sync.Mutex
	port    serialPort
	lines   *lineReader
	lastErr error

	// reopen reattaches the device after a read error. A second error before
	// any line is read degrades the port.
	reopen   func() (serialPort, error)
	reopened bool

	logger *slog.Logger
}

// Open opens the configured device. On failure it returns a degraded Port
// together with an error wrapping ErrPortUnavailable.
func Open(cfg PortConfig, options ...func(p *Port)) (*Port, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		detected, err := DetectPort()
		if err != nil {
			p := newPort("", cfg.Baud, nil, cfg.MaxLineBytes, options...)
			p.lastErr = err
			return p, fmt.Errorf("%w: auto-detect: %v", ErrPortUnavailable, err)
		}
		name = detected
	}

	open := func() (serialPort, error) {
		return openSerial(name, cfg.Baud, cfg.ReadTimeout)
	}
	sp, err := open()
	if err != nil {
		p := newPort(name, cfg.Baud, nil, cfg.MaxLineBytes, options...)
		p.lastErr = err
		return p, fmt.Errorf("%w: %v", ErrPortUnavailable, err)
	}

	p := newPort(name, cfg.Baud, sp, cfg.MaxLineBytes, options...)
	p.reopen = open
	p.logger.Info("serial port opened", slog.String("port", name), slog.Int("baud", cfg.Baud), slog.Duration("readTimeout", cfg.ReadTimeout))
	return p, nil
}

func openSerial(name string, baud int, readTimeout time.Duration) (serialPort, error) {
	sp, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := sp.SetReadTimeout(readTimeout); err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return sp, nil
}

func newPort(name string, baud int, sp serialPort, maxLineBytes int, options ...func(p *Port)) *Port {
	p := Port{
		name:         name,
		baud:         baud,
		maxLineBytes: maxLineBytes,
		port:         sp,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if sp != nil {
		p.lines = newLineReader(sp, maxLineBytes)
	}
	for _, option := range options {
		option(&p)
	}
	return &p
}

func (p *Port) Name() string { return p.name }

// Degraded reports whether the port has no usable device.
func (p *Port) Degraded() bool {
	if p == nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port == nil
}

// LastError returns the error that degraded the port, if any.
func (p *Port) LastError() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// ReadLine blocks up to the read timeout. A read error other than a timeout
// closes the device and reopens it once; if that fails, or the reopened
// device errors before producing a line, the port is degraded for the rest
// of the session.
func (p *Port) ReadLine() ([]byte, bool) {
	if p == nil {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil, false
	}

	line, err := p.lines.next()
	if line != nil {
		p.reopened = false
		return line, true
	}
	if err != nil {
		p.reattach(err)
	}
	return nil, false
}

func (p *Port) reattach(readErr error) {
	_ = p.port.Close()
	p.port = nil
	p.lastErr = readErr

	if p.reopen == nil || p.reopened {
		p.logger.Error("serial read failed, port degraded", slog.String("port", p.name), slog.String("error", readErr.Error()))
		return
	}
	p.reopened = true
	sp, err := p.reopen()
	if err != nil {
		p.logger.Error("serial read failed and reopen failed, port degraded",
			slog.String("port", p.name),
			slog.String("error", readErr.Error()),
			slog.String("reopen_error", err.Error()))
		return
	}
	p.port = sp
	p.lines = newLineReader(sp, p.maxLineBytes)
	p.logger.Warn("serial read failed, port reopened", slog.String("port", p.name), slog.String("error", readErr.Error()))
}

// Configure runs the receive-mode handshake. On a degraded port it logs and
// returns nil. It must not run concurrently with ReadLine consumers.
func (p *Port) Configure(ctx context.Context, rf *RFConfig, settle time.Duration) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		p.logger.Warn("serial port unavailable, skipping radio configuration")
		return nil
	}

	attrs := []any{slog.String("port", p.name)}
	if rf != nil {
		attrs = append(attrs, slog.String("rf", rf.String()))
	}
	p.logger.Info("configuring radio", attrs...)

	if err := Configure(ctx, p.port, rf, settle, p.logger); err != nil {
		return err
	}
	p.lines.reset()
	p.logger.Info("radio in receive mode", slog.String("port", p.name))
	return nil
}

func (p *Port) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}
