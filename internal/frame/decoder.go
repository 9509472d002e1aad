package frame

import (
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// WithLogger sets the logger used for discarded-frame diagnostics.
func WithLogger(logger *slog.Logger) func(d *Decoder) {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// WithWarnLimit caps how many discarded-frame warnings are logged. Excess
// warnings are counted and reported with the next one that gets through.
func WithWarnLimit(every time.Duration, burst int) func(d *Decoder) {
	return func(d *Decoder) {
		d.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// Decoder wraps Decode with logging. It is not safe for concurrent use.
type Decoder struct {
	logger     *slog.Logger
	limiter    *rate.Limiter
	suppressed uint64
}

func NewDecoder(options ...func(d *Decoder)) *Decoder {
	d := Decoder{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, option := range options {
		option(&d)
	}
	return &d
}

func (d *Decoder) Decode(line string) Frame {
	f := Decode(line)
	switch {
	case f.Reason != nil:
		d.warn(line, f.Reason)
	case f.Kind == KindTelemetry:
		t := f.Telemetry
		d.logger.Debug("telemetry",
			slog.Float64("velocity", t.Velocity),
			slog.Float64("pitch", t.Pitch),
			slog.Float64("roll", t.Roll),
			slog.Uint64("status", uint64(t.Status)),
			slog.Float64("altitude", t.Altitude),
			slog.Float64("latitude", t.Latitude),
			slog.Float64("longitude", t.Longitude))
	case f.Kind == KindTransmission:
		x := f.Transmission
		d.logger.Debug("transmission",
			slog.Uint64("len", uint64(x.Len)),
			slog.Int("rssi", x.RSSI),
			slog.Int("snr", x.SNR))
	}
	return f
}

func (d *Decoder) warn(line string, reason error) {
	if !d.limiter.Allow() {
		d.suppressed++
		return
	}
	attrs := []any{slog.String("reason", reason.Error()), slog.String("line", line)}
	if d.suppressed > 0 {
		attrs = append(attrs, slog.Uint64("suppressed", d.suppressed))
		d.suppressed = 0
	}
	d.logger.Warn("discarding frame", attrs...)
}
