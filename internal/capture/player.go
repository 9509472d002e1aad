package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultMaxWait bounds a single ReadLine call, like a serial read timeout.
const DefaultMaxWait = 100 * time.Millisecond

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Player replays captured lines with their relative timing. It satisfies
// radio.LineSource so the reader loop can run without hardware.
//
// START markers reset the origin. speed: 1.0 = real time, 2.0 = half waits.
// Long gaps are slept in DefaultMaxWait steps, returning no line in between.
type Player struct {
	records []Record
	speed   float64
	loop    bool
	sleeper Sleeper
	maxWait time.Duration

	mu       sync.Mutex
	idx      int
	origin   time.Duration
	lastAt   time.Duration
	haveLast bool
	wait     time.Duration
	waitSet  bool
	played   uint64
	done     bool
}

func NewPlayer(records []Record, speed float64, loop bool, sleeper Sleeper) (*Player, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("speed must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	n := 0
	for _, r := range records {
		if r.Line != nil {
			n++
		}
	}
	if n == 0 {
		return nil, errors.New("no records")
	}
	return &Player{
		records: records,
		speed:   speed,
		loop:    loop,
		sleeper: sleeper,
		maxWait: DefaultMaxWait,
	}, nil
}

func (p *Player) ReadLine() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.done {
			return nil, false
		}
		if p.idx >= len(p.records) {
			if !p.loop {
				p.done = true
				return nil, false
			}
			p.idx = 0
			p.origin = 0
			p.haveLast = false
			continue
		}

		r := p.records[p.idx]
		if r.Line == nil {
			p.origin = r.At
			p.haveLast = false
			p.idx++
			continue
		}

		at := r.At - p.origin
		if at < 0 {
			at = 0
		}
		if !p.waitSet {
			p.wait = 0
			if p.haveLast && at > p.lastAt {
				p.wait = time.Duration(float64(at-p.lastAt) / p.speed)
			}
			p.waitSet = true
		}
		if p.wait > 0 {
			step := p.wait
			if step > p.maxWait {
				step = p.maxWait
			}
			p.sleeper.Sleep(step)
			p.wait -= step
			if p.wait > 0 {
				return nil, false
			}
		}

		p.waitSet = false
		p.idx++
		p.lastAt = at
		p.haveLast = true
		p.played++
		return append([]byte(nil), r.Line...), true
	}
}

// Degraded reports whether playback has finished.
func (p *Player) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Played returns the number of lines delivered.
func (p *Player) Played() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	return nil
}
