package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sioly123/Lazarus-Ground-Station/internal/flight"
	"github.com/sioly123/Lazarus-Ground-Station/internal/fusion"
	"github.com/sioly123/Lazarus-Ground-Station/internal/link"
	"github.com/sioly123/Lazarus-Ground-Station/internal/receiver"
	"github.com/sioly123/Lazarus-Ground-Station/internal/udp"
)

type recordWriter interface {
	Write(rec fusion.CombinedRecord) error
	Close() error
}

type recordStore interface {
	InsertRecord(ctx context.Context, sessionID int, rec fusion.CombinedRecord, q link.Quality) (int64, error)
	InsertEvents(ctx context.Context, sessionID int, at time.Time, events []flight.Event) error
	Close() error
}

type messageForwarder interface {
	Forward(m udp.Message) error
	ForwardStatus(s udp.Status) error
	Close() error
}

// sink consumes reader updates and fans them out to the session outputs.
// Output failures are logged and never stop the pipeline. The mutex lets
// run read counters and close outputs while a late update is in flight.
type sink struct {
	mu     sync.Mutex
	closed bool

	logger    *slog.Logger
	sessionID int
	now       func() time.Time

	csv     recordWriter
	store   recordStore
	forward messageForwarder

	errLimiter  *rate.Limiter
	quality     link.Quality
	haveQuality bool

	records uint64
	events  uint64
}

func newSink(logger *slog.Logger, sessionID int) *sink {
	return &sink{
		logger:     logger,
		sessionID:  sessionID,
		now:        time.Now,
		errLimiter: rate.NewLimiter(rate.Every(5*time.Second), 3),
	}
}

func (s *sink) handle(ctx context.Context, u receiver.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	at := s.now().UTC()
	if u.Record != nil {
		at = u.Record.Timestamp
	}

	for _, e := range u.Events {
		attrs := []any{slog.String("flag", e.Flag.String()), slog.String("transition", e.Transition.String())}
		if u.Telemetry != nil {
			attrs = append(attrs, slog.Float64("altitude", u.Telemetry.Altitude), slog.Float64("velocity", u.Telemetry.Velocity))
		}
		s.logger.Info("flight event", attrs...)
	}
	if len(u.Events) > 0 {
		s.events += uint64(len(u.Events))
		if s.store != nil {
			if err := s.store.InsertEvents(ctx, s.sessionID, at, u.Events); err != nil {
				s.outputError("sqlite", err)
			}
		}
	}

	if u.Record == nil {
		return
	}
	rec := *u.Record
	s.records++

	if !s.haveQuality || u.Quality != s.quality {
		s.logger.Info("link quality",
			slog.String("quality", u.Quality.String()),
			slog.Int("rssi", rec.Transmission.RSSI),
			slog.Int("snr", rec.Transmission.SNR))
		s.quality = u.Quality
		s.haveQuality = true
	}

	if s.csv != nil {
		if err := s.csv.Write(rec); err != nil {
			s.outputError("csv", err)
		}
	}
	if s.store != nil {
		if _, err := s.store.InsertRecord(ctx, s.sessionID, rec, u.Quality); err != nil {
			s.outputError("sqlite", err)
		}
	}
	if s.forward != nil {
		if err := s.forward.Forward(udp.NewMessage(s.sessionID, rec, u.Quality, u.Events)); err != nil {
			s.outputError("udp", err)
		}
	}
}

// status forwards a receiver snapshot when forwarding is enabled.
func (s *sink) status(snap receiver.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.forward == nil {
		return
	}
	if err := s.forward.ForwardStatus(udp.NewStatus(s.sessionID, s.now(), snap)); err != nil {
		s.outputError("udp", err)
	}
}

func (s *sink) counts() (records, events uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, s.events
}

func (s *sink) outputError(output string, err error) {
	if s.errLimiter.Allow() {
		s.logger.Error("output write failed", slog.String("output", output), slog.String("error", err.Error()))
	}
}

// Close closes every output; later updates are ignored.
func (s *sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.csv != nil {
		errs = append(errs, s.csv.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.forward != nil {
		errs = append(errs, s.forward.Close())
	}
	return errors.Join(errs...)
}
