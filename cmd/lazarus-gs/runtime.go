package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sioly123/Lazarus-Ground-Station/internal/capture"
	"github.com/sioly123/Lazarus-Ground-Station/internal/config"
	"github.com/sioly123/Lazarus-Ground-Station/internal/frame"
	"github.com/sioly123/Lazarus-Ground-Station/internal/radio"
	"github.com/sioly123/Lazarus-Ground-Station/internal/receiver"
	"github.com/sioly123/Lazarus-Ground-Station/internal/session"
	"github.com/sioly123/Lazarus-Ground-Station/internal/udp"
)

const statusInterval = 30 * time.Second

// run owns the session for one process lifetime and returns once ctx is
// cancelled, or once a non-looping replay has been played out.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	sess, err := session.New(cfg.Session.BaseDir)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	logger = logger.With(slog.String("session", sess.String()))
	logger.Info("session created", slog.String("dir", sess.Dir))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, player, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("closing line source failed", slog.String("error", err.Error()))
		}
	}()

	out := newSink(logger, sess.ID)
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warn("closing outputs failed", slog.String("error", err.Error()))
		}
	}()
	if err := openOutputs(ctx, cfg, sess, src, out, logger); err != nil {
		return err
	}

	opts := []func(r *receiver.Reader){
		receiver.WithLogger(logger),
		receiver.WithQueueSize(cfg.Receiver.QueueSize),
		receiver.WithIdleInterval(cfg.Receiver.IdleInterval),
	}
	var rec *capture.Writer
	if cfg.Capture.Record.Enable {
		path := cfg.Capture.Record.Path
		if path == "" {
			path = sess.Path(session.CaptureName)
		}
		if rec, err = capture.CreateWriter(path); err != nil {
			return fmt.Errorf("capture record: %w", err)
		}
		defer func() {
			lines, n := rec.Counts()
			if err := rec.Close(); err != nil {
				logger.Warn("closing capture failed", slog.String("error", err.Error()))
			}
			logger.Info("capture closed",
				slog.String("path", path),
				slog.String("lines", humanize.Comma(int64(lines))),
				slog.String("size", humanize.Bytes(n)),
				slog.Uint64("telemetry", rec.KindCount(frame.KindTelemetry)),
				slog.Uint64("transmission", rec.KindCount(frame.KindTransmission)))
		}()
		opts = append(opts, receiver.WithRecorder(rec))
		logger.Info("recording radio lines", slog.String("path", path))
	}

	rd := receiver.New(src, opts...)
	if err := rd.Start(ctx); err != nil {
		return err
	}

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		// Outputs finish draining after ctx is cancelled.
		outCtx := context.WithoutCancel(ctx)
		for u := range rd.Updates() {
			out.handle(outCtx, u)
		}
	}()

	status := time.NewTicker(statusInterval)
	defer status.Stop()
	var forwardStatus <-chan time.Time
	if cfg.Forward.Enable {
		t := time.NewTicker(cfg.Forward.StatusInterval)
		defer t.Stop()
		forwardStatus = t.C
	}
	var replayDone <-chan time.Time
	if player != nil {
		poll := time.NewTicker(cfg.Receiver.IdleInterval)
		defer poll.Stop()
		replayDone = poll.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-status.C:
			logStatus(logger, rd.Snapshot())
		case <-forwardStatus:
			out.status(rd.Snapshot())
		case <-replayDone:
			if player.Degraded() {
				logger.Info("replay finished", slog.Uint64("lines", player.Played()))
				break loop
			}
		}
	}

	if err := rd.Stop(cfg.Receiver.StopTimeout); err != nil {
		// Closing the source unblocks an abandoned read.
		_ = src.Close()
	}
	select {
	case <-consumed:
	case <-time.After(cfg.Receiver.StopTimeout):
		logger.Warn("outputs did not drain in time")
	}
	if rec != nil {
		if err := rec.Flush(); err != nil {
			logger.Warn("flushing capture failed", slog.String("error", err.Error()))
		}
	}

	snap := rd.Snapshot()
	logStatus(logger, snap)
	out.status(snap)
	records, events := out.counts()
	logger.Info("session summary",
		slog.Uint64("records", records),
		slog.Uint64("events", events))
	return nil
}

// openSource returns the replay player when replay is enabled, otherwise the
// serial port. An unavailable port is not fatal; the session runs empty.
func openSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (radio.LineSource, *capture.Player, error) {
	if cfg.Capture.Replay.Enable {
		recs, err := capture.ReadFile(cfg.Capture.Replay.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("capture replay: %w", err)
		}
		p, err := capture.NewPlayer(recs, cfg.Capture.Replay.Speed, cfg.Capture.Replay.Loop, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("capture replay: %w", err)
		}
		logger.Info("replaying radio capture",
			slog.String("path", cfg.Capture.Replay.Path),
			slog.Float64("speed", cfg.Capture.Replay.Speed),
			slog.Bool("loop", cfg.Capture.Replay.Loop))
		return p, p, nil
	}

	port, err := radio.Open(radio.PortConfig{
		Name:         cfg.Serial.Port,
		Baud:         cfg.Serial.Baud,
		ReadTimeout:  cfg.Serial.ReadTimeout,
		MaxLineBytes: cfg.Serial.MaxLineBytes,
	}, radio.WithLogger(logger))
	if err != nil {
		logger.Error("radio unavailable, continuing without it", slog.String("error", err.Error()))
		return port, nil, nil
	}

	if cfg.Radio.ConfigureEnabled() {
		var rf *radio.RFConfig
		if cfg.Radio.RF != nil {
			r := cfg.Radio.RF.Radio()
			rf = &r
		}
		if err := port.Configure(ctx, rf, cfg.Radio.Settle); err != nil {
			if ctx.Err() != nil {
				return port, nil, nil
			}
			// A module that ignores commands may still be streaming; keep reading.
			logger.Error("radio configuration failed", slog.String("error", err.Error()))
		}
	}
	return port, nil, nil
}

func openOutputs(ctx context.Context, cfg config.Config, sess *session.Session, src radio.LineSource, out *sink, logger *slog.Logger) error {
	if cfg.Session.CSVEnabled() {
		w, err := session.NewCSVWriter(sess)
		if err != nil {
			return err
		}
		out.csv = w
		logger.Info("csv output", slog.String("path", sess.Path(session.CSVFileName)))
	}

	if cfg.Session.SQLiteEnabled() {
		st, err := session.OpenStore(sess)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		out.store = st

		portName := ""
		if p, ok := src.(*radio.Port); ok {
			portName = p.Name()
		}
		if err := st.CreateSession(ctx, sess, portName, cfg); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		logger.Info("sqlite output", slog.String("path", sess.Path(session.SQLiteFileName)))
	}

	if cfg.Forward.Enable {
		f, err := udp.NewForwarder(cfg.Forward.Dest)
		if err != nil {
			// Display forwarding is optional.
			logger.Error("udp forwarding disabled", slog.String("dest", cfg.Forward.Dest), slog.String("error", err.Error()))
			return nil
		}
		out.forward = f
		logger.Info("udp forwarding", slog.String("dest", f.Dest()))
	}
	return nil
}

func logStatus(logger *slog.Logger, s receiver.Snapshot) {
	attrs := []any{
		slog.String("lines", humanize.Comma(int64(s.Stats.Lines))),
		slog.Uint64("telemetry", s.Stats.Telemetry),
		slog.Uint64("transmission", s.Stats.Transmission),
		slog.Uint64("rejected", s.Stats.Rejected),
		slog.Uint64("combined", s.Stats.Combined),
		slog.Uint64("dropped", s.Stats.Dropped),
		slog.Uint64("events_lost", s.Stats.EventsLost),
		slog.Bool("degraded", s.Degraded),
	}
	if !s.LastLineAt.IsZero() {
		attrs = append(attrs, slog.String("last_line", humanize.Time(s.LastLineAt)))
	}
	if s.LastError != "" {
		attrs = append(attrs, slog.String("last_error", s.LastError))
	}
	if l, ok := s.LastRejected(); ok {
		attrs = append(attrs, slog.String("last_rejected", l.String()))
	}
	logger.Info("receiver status", attrs...)
}
