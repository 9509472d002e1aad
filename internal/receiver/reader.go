package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sioly123/Lazarus-Ground-Station/internal/flight"
	"github.com/sioly123/Lazarus-Ground-Station/internal/frame"
	"github.com/sioly123/Lazarus-Ground-Station/internal/fusion"
	"github.com/sioly123/Lazarus-Ground-Station/internal/link"
	"github.com/sioly123/Lazarus-Ground-Station/internal/radio"
)

const (
	DefaultQueueSize    = 256
	DefaultIdleInterval = 100 * time.Millisecond
	DefaultStopTimeout  = time.Second
	DefaultTailLines    = 32

	// maxCarriedEvents bounds the status edges held back while the queue is full.
	maxCarriedEvents = 64
)

// ErrStopTimeout is returned by Stop when the worker did not exit in time.
// The worker is abandoned and will exit once its current read returns.
var ErrStopTimeout = errors.New("reader did not stop in time")

// Recorder receives every raw line before it is decoded.
type Recorder interface {
	WriteLine(now time.Time, line []byte) error
}

// Update is one ordered output of the pipeline. Record is set when a combined
// record was produced; Telemetry and Events are set for telemetry lines.
type Update struct {
	Record    *fusion.CombinedRecord
	Quality   link.Quality
	Events    []flight.Event
	Telemetry *frame.Telemetry
}

type Stats struct {
	Lines        uint64 `json:"lines"`
	Telemetry    uint64 `json:"telemetry"`
	Transmission uint64 `json:"transmission"`
	Unrecognized uint64 `json:"unrecognized"`
	Rejected     uint64 `json:"rejected"`
	Combined     uint64 `json:"combined"`
	Events       uint64 `json:"events"`
	Delivered    uint64 `json:"delivered"`
	Dropped      uint64 `json:"dropped"`

	// EventsCarried counts edges from dropped updates that rode on a later one.
	EventsCarried uint64 `json:"events_carried"`
	// EventsLost counts edges that never reached the consumer.
	EventsLost    uint64 `json:"events_lost"`
}

type Snapshot struct {
	Running    bool       `json:"running"`
	Degraded   bool       `json:"degraded"`
	Stats      Stats      `json:"stats"`
	LastLineAt time.Time  `json:"last_line_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Tail       []TailLine `json:"tail,omitempty"`
}

type degrader interface {
	Degraded() bool
}

func WithLogger(logger *slog.Logger) func(r *Reader) {
	return func(r *Reader) {
		r.logger = logger
	}
}

func WithQueueSize(n int) func(r *Reader) {
	return func(r *Reader) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithRecorder tees every raw line into rec, e.g. a capture writer.
func WithRecorder(rec Recorder) func(r *Reader) {
	return func(r *Reader) {
		r.recorder = rec
	}
}

// WithClock sets the clock used for record timestamps and the recorder.
func WithClock(now func() time.Time) func(r *Reader) {
	return func(r *Reader) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIdleInterval sets the minimum spacing between reads that return no line.
func WithIdleInterval(d time.Duration) func(r *Reader) {
	return func(r *Reader) {
		if d > 0 {
			r.idle = d
		}
	}
}

// Reader runs the decode, fuse, classify pipeline on one goroutine and
// publishes Updates on a single buffered channel.
type Reader struct {
	src        radio.LineSource
	decoder    *frame.Decoder
	fusion     *fusion.Buffer
	classifier *flight.Classifier

	logger    *slog.Logger
	queueSize int
	recorder  Recorder
	now       func() time.Time
	idle      time.Duration

	updates     chan Update
	dropLimiter *rate.Limiter
	// carried holds events of dropped updates until the next delivery.
	carried []flight.Event

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	lines        atomic.Uint64
	telemetry    atomic.Uint64
	transmission atomic.Uint64
	unrecognized atomic.Uint64
	rejected     atomic.Uint64
	combined     atomic.Uint64
	events       atomic.Uint64
	delivered    atomic.Uint64
	dropped      atomic.Uint64
	eventsCarry  atomic.Uint64
	eventsLost   atomic.Uint64

	lastLineAt atomic.Int64
	lastErr    atomic.Value // string
	tail       *lineTail
}

func New(src radio.LineSource, options ...func(r *Reader)) *Reader {
	r := Reader{
		src:         src,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		queueSize:   DefaultQueueSize,
		now:         time.Now,
		idle:        DefaultIdleInterval,
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		tail:        newLineTail(DefaultTailLines, defaultTailLineBytes),
	}
	for _, option := range options {
		option(&r)
	}
	r.decoder = frame.NewDecoder(frame.WithLogger(r.logger))
	r.fusion = fusion.NewWithClock(r.now)
	r.classifier = flight.NewClassifier()
	r.updates = make(chan Update, r.queueSize)
	return &r
}

// Updates is closed when the worker exits.
func (r *Reader) Updates() <-chan Update {
	return r.updates
}

// Start launches the worker. A Reader can be started once.
func (r *Reader) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("reader is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	if r.src == nil {
		return fmt.Errorf("line source is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("reader already started")
	}
	r.started = true

	childCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(childCtx, r.done)
	r.logger.Info("reader started", slog.Int("queue", r.queueSize))
	return nil
}

// Stop cancels the worker and waits up to timeout for it to exit. It does not
// close the line source.
func (r *Reader) Stop(timeout time.Duration) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		r.logger.Info("reader stopped", slog.Uint64("lines", r.lines.Load()), slog.Uint64("dropped", r.dropped.Load()))
		return nil
	case <-t.C:
		r.logger.Warn("reader did not stop in time, abandoning", slog.Duration("timeout", timeout))
		return ErrStopTimeout
	}
}

func (r *Reader) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	running := r.cancel != nil
	r.mu.Unlock()

	s := Snapshot{
		Running:  running,
		Degraded: r.sourceDegraded(),
		Stats: Stats{
			Lines:        r.lines.Load(),
			Telemetry:    r.telemetry.Load(),
			Transmission: r.transmission.Load(),
			Unrecognized: r.unrecognized.Load(),
			Rejected:     r.rejected.Load(),
			Combined:     r.combined.Load(),
			Events:       r.events.Load(),
			Delivered:    r.delivered.Load(),
			Dropped:      r.dropped.Load(),

			EventsCarried: r.eventsCarry.Load(),
			EventsLost:    r.eventsLost.Load(),
		},
		Tail: r.tail.lines(),
	}
	if ns := r.lastLineAt.Load(); ns != 0 {
		s.LastLineAt = time.Unix(0, ns).UTC()
	}
	if v, ok := r.lastErr.Load().(string); ok {
		s.LastError = v
	}
	return s
}

func (r *Reader) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer close(r.updates)
	defer func() {
		if n := len(r.carried); n > 0 {
			r.eventsLost.Add(uint64(n))
			r.carried = nil
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		began := time.Now()
		line, ok := r.src.ReadLine()
		if !ok {
			// Pace empty reads so a degraded or non-blocking source cannot spin.
			if wait := r.idle - time.Since(began); wait > 0 || r.sourceDegraded() {
				if wait <= 0 {
					wait = r.idle
				}
				if !sleepCtx(ctx, wait) {
					return
				}
			}
			continue
		}
		r.handleLine(line)
	}
}

func (r *Reader) handleLine(line []byte) {
	now := r.now()
	r.lines.Add(1)
	r.lastLineAt.Store(now.UnixNano())

	if r.recorder != nil {
		if err := r.recorder.WriteLine(now, line); err != nil {
			r.setError(fmt.Sprintf("capture write failed: %v", err))
			r.logger.Error("capture write failed, recording disabled", slog.String("error", err.Error()))
			r.recorder = nil
		}
	}

	f := r.decoder.Decode(string(line))
	r.tail.record(now, line, f)
	switch {
	case f.Reason != nil:
		r.rejected.Add(1)
		r.setError(f.Reason.Error())

	case f.Kind == frame.KindTelemetry:
		r.telemetry.Add(1)
		t := f.Telemetry
		u := Update{Telemetry: &t}
		if events := r.classifier.Observe(t.Status); len(events) > 0 {
			r.events.Add(uint64(len(events)))
			u.Events = events
		}
		if rec, ok := r.fusion.UpdateTelemetry(t); ok {
			r.withRecord(&u, rec)
		}
		if u.Record != nil || len(u.Events) > 0 {
			r.deliver(u)
		}

	case f.Kind == frame.KindTransmission:
		r.transmission.Add(1)
		if rec, ok := r.fusion.UpdateTransmission(f.Transmission); ok {
			var u Update
			r.withRecord(&u, rec)
			r.deliver(u)
		}

	default:
		r.unrecognized.Add(1)
	}
}

func (r *Reader) withRecord(u *Update, rec fusion.CombinedRecord) {
	r.combined.Add(1)
	u.Record = &rec
	u.Quality = link.Classify(rec.Transmission.SNR, rec.Transmission.RSSI)
}

// deliver never blocks; a full queue drops the update. Status edges of a
// dropped update are carried onto the next delivered one, oldest first.
func (r *Reader) deliver(u Update) {
	carried := len(r.carried)
	if carried > 0 {
		events := make([]flight.Event, 0, carried+len(u.Events))
		events = append(events, r.carried...)
		u.Events = append(events, u.Events...)
	}

	select {
	case r.updates <- u:
		r.delivered.Add(1)
		if carried > 0 {
			r.eventsCarry.Add(uint64(carried))
			r.carried = nil
		}
	default:
		n := r.dropped.Add(1)
		r.carried = u.Events
		if over := len(r.carried) - maxCarriedEvents; over > 0 {
			r.eventsLost.Add(uint64(over))
			r.carried = r.carried[over:]
		}
		if r.dropLimiter.Allow() {
			r.logger.Warn("consumer behind, dropping update",
				slog.Uint64("dropped", n),
				slog.Int("carried_events", len(r.carried)))
		}
	}
}

func (r *Reader) sourceDegraded() bool {
	d, ok := r.src.(degrader)
	return ok && d.Degraded()
}

func (r *Reader) setError(msg string) {
	r.lastErr.Store(msg)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
