package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"

	"enginemon/internal/link"
	"enginemon/internal/rdac"
	"enginemon/internal/syncutil"
)

// ErrDropped is the read error a FaultDrop produces.
var ErrDropped = errors.New("sim: line dropped")

// Generator renders the bytes a device sends at one tick.
type Generator func(now time.Time, elapsed time.Duration) []byte

// EngineGenerator encodes one frame of each record type per tick.
func EngineGenerator(s EngineSim) Generator {
	return func(_ time.Time, elapsed time.Duration) []byte {
		var out []byte
		for _, rec := range s.Records(elapsed) {
			frame, err := rdac.Encode(rec)
			if err != nil {
				continue
			}
			out = append(out, frame...)
		}
		return out
	}
}

// RouteGenerator emits the route's sentences per tick.
func RouteGenerator(r RouteSim) Generator {
	return func(now time.Time, elapsed time.Duration) []byte {
		var out []byte
		for _, s := range r.Sentences(now, elapsed) {
			out = append(out, s...)
		}
		return out
	}
}

// Source is a simulated device. Its Open method is a link.Opener; elapsed
// time keeps running across reopen so the simulated flight continues.
type Source struct {
	interval time.Duration
	gen      Generator
	plan     *FaultPlan
	clock    clockwork.Clock
	start    time.Time

	mu        syncutil.Mutex
	downUntil time.Time
	fired     time.Duration
	rng       *rand.Rand
}

type SourceOption func(*Source)

func WithClock(c clockwork.Clock) SourceOption {
	return func(s *Source) { s.clock = c }
}

func WithFaults(p *FaultPlan) SourceOption {
	return func(s *Source) { s.plan = p }
}

func NewSource(interval time.Duration, gen Generator, opts ...SourceOption) *Source {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	s := &Source{
		interval: interval,
		gen:      gen,
		clock:    clockwork.NewRealClock(),
		fired:    -1,
		rng:      rand.New(rand.NewSource(1)),
	}
	for _, o := range opts {
		o(s)
	}
	s.start = s.clock.Now()
	return s
}

// Open satisfies link.Opener.
func (s *Source) Open(cfg link.Config) (link.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now := s.clock.Now(); now.Before(s.downUntil) {
		return nil, fmt.Errorf("sim: %s offline for %s", cfg.Name, s.downUntil.Sub(now).Round(time.Millisecond))
	}
	return &port{src: s, timeout: 100 * time.Millisecond, next: s.clock.Now()}, nil
}

// tick renders the batch for now and applies any faults that fell due since
// the previous tick. drop reports a FaultDrop.
func (s *Source) tick(now time.Time) (batch []byte, drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.start)
	batch = s.gen(now, elapsed)
	for _, f := range s.plan.Between(s.fired, elapsed) {
		switch f.Kind {
		case FaultNoise:
			noise := make([]byte, f.Bytes)
			for i := range noise {
				// Never emit a preamble; the noise should not look like a frame.
				noise[i] = byte(s.rng.Intn(256))
				if noise[i] == rdac.Preamble {
					noise[i] = 0x55
				}
			}
			batch = append(noise, batch...)
		case FaultCorrupt:
			if len(batch) > 0 {
				i := s.rng.Intn(len(batch))
				batch[i] ^= 1 << uint(s.rng.Intn(8))
			}
		case FaultDrop:
			s.downUntil = now.Add(f.Down)
			drop = true
		}
	}
	if elapsed > s.fired {
		s.fired = elapsed
	}
	return batch, drop
}

type port struct {
	src     *Source
	timeout time.Duration
	next    time.Time
	pending []byte

	mu     syncutil.Mutex
	closed bool
}

func (p *port) Read(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, fmt.Errorf("sim: port closed")
	}

	if len(p.pending) == 0 {
		clock := p.src.clock
		now := clock.Now()
		if wait := p.next.Sub(now); wait > 0 {
			if wait > p.timeout {
				clock.Sleep(p.timeout)
				return 0, nil
			}
			clock.Sleep(wait)
			now = clock.Now()
		}
		p.next = now.Add(p.src.interval)

		batch, drop := p.src.tick(now)
		if drop {
			return 0, ErrDropped
		}
		p.pending = batch
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *port) SetReadTimeout(t time.Duration) error {
	if t <= 0 {
		return fmt.Errorf("sim: read timeout must be > 0")
	}
	p.timeout = t
	return nil
}
