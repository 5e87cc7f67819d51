package rdac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"enginemon/internal/connector"
	"enginemon/internal/link"
	"enginemon/internal/telemetry"
)

type Config struct {
	Link link.Config
	// Opener overrides how the link is opened; nil uses link.DefaultOpener.
	Opener link.Opener

	ReconnectDelay time.Duration
	ReconnectMax   time.Duration

	// StatusRate and StatusBurst limit decode anomaly reports.
	StatusRate  float64
	StatusBurst int

	RecentStatus int

	Clock  clockwork.Clock
	Logger *zerolog.Logger
}

// Connector reads the RDAC stream on its own goroutine and publishes decoded
// records and status notifications.
type Connector struct {
	life    *connector.Lifecycle
	sup     *connector.Supervisor
	tracker *connector.Tracker
	framer  *framer
}

func New(cfg Config, out connector.Publisher) (*Connector, error) {
	if out == nil {
		return nil, fmt.Errorf("rdac connector publisher is nil")
	}
	if cfg.Link.Name == "" {
		cfg.Link.Name = "engine"
	}
	d := connector.Defaults{
		ReconnectDelay: cfg.ReconnectDelay,
		ReconnectMax:   cfg.ReconnectMax,
		StatusBurst:    cfg.StatusBurst,
		RecentStatus:   cfg.RecentStatus,
	}.Apply()
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("link", cfg.Link.Name).Str("device", cfg.Link.Device).Logger()

	tracker := connector.NewTracker(cfg.Link.Name, cfg.Link.Device, d.RecentStatus)
	emit := &connector.Emitter{
		Source:  cfg.Link.Name,
		Out:     out,
		Clock:   cfg.Clock,
		Tracker: tracker,
		Log:     logger,
	}
	f := &framer{
		name:     cfg.Link.Name,
		buf:      make([]byte, 0, 2*maxFrameLen()),
		emit:     emit,
		tracker:  tracker,
		reporter: connector.NewReporter(cfg.StatusRate, d.StatusBurst, cfg.Clock),
	}
	return &Connector{
		life:    connector.NewLifecycle("rdac connector"),
		tracker: tracker,
		framer:  f,
		sup: &connector.Supervisor{
			Link:    cfg.Link,
			Opener:  cfg.Opener,
			Clock:   cfg.Clock,
			Backoff: connector.NewBackoff(d.ReconnectDelay, d.ReconnectMax),
			Emit:    emit,
			Tracker: tracker,
			Log:     logger,
			Framer:  f,
		},
	}, nil
}

// Run blocks until ctx is done or Close is called.
func (c *Connector) Run(ctx context.Context) error {
	return c.life.Run(ctx, c.sup.Run)
}

// Start runs the connector on a new goroutine.
func (c *Connector) Start(ctx context.Context) error {
	return c.life.Start(ctx, c.sup.Run)
}

// Close stops the connector and waits for its goroutine to exit. The link is
// closed before Close returns.
func (c *Connector) Close() {
	if c == nil {
		return
	}
	c.life.Close()
}

func (c *Connector) Snapshot() connector.Snapshot {
	if c == nil {
		return connector.Snapshot{}
	}
	return c.tracker.Snapshot()
}

// framer reassembles frames from raw chunks. Between chunks it holds at most
// one partial frame.
type framer struct {
	name     string
	buf      []byte
	offset   uint64
	garbage  garbageRun
	emit     *connector.Emitter
	tracker  *connector.Tracker
	reporter *connector.Reporter
}

// garbageRun accumulates consecutive rejected bytes so a burst of noise turns
// into a single status.
type garbageRun struct {
	start     uint64
	bytes     int
	checksum  int
	malformed int
	first     string
}

// Ingest appends a chunk and decodes every complete frame now in the buffer.
func (f *framer) Ingest(chunk []byte) {
	f.buf = append(f.buf, chunk...)

	for len(f.buf) > 0 {
		rec, n, err := Decode(f.buf)
		if err == nil {
			f.flushGarbage()
			f.emit.Record(rec)
			f.consume(n)
			continue
		}
		if errors.Is(err, ErrIncomplete) {
			break
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			de = &DecodeError{Err: ErrMalformedFrame, Skip: 1, Detail: err.Error()}
		}
		f.noteGarbage(de)
		f.consume(de.Skip)
	}

	f.flushGarbage()
}

// Reset drops a partial frame; bytes from a new session cannot complete it.
func (f *framer) Reset() {
	f.flushGarbage()
	f.offset += uint64(len(f.buf))
	f.buf = f.buf[:0]
}

func (f *framer) consume(n int) {
	if n > len(f.buf) {
		n = len(f.buf)
	}
	f.buf = append(f.buf[:0], f.buf[n:]...)
	f.offset += uint64(n)
}

func (f *framer) noteGarbage(de *DecodeError) {
	g := &f.garbage
	if g.bytes == 0 {
		g.start = f.offset
		g.first = de.Error()
	}
	g.bytes += de.Skip
	if errors.Is(de, ErrChecksum) {
		g.checksum++
	} else {
		g.malformed++
	}
}

func (f *framer) flushGarbage() {
	g := f.garbage
	if g.bytes == 0 {
		return
	}
	f.garbage = garbageRun{}
	f.tracker.MarkDecodeErrors(g.checksum + g.malformed)

	ok, suppressed := f.reporter.Allow()
	if !ok {
		return
	}
	class := telemetry.ClassMalformedFrame
	if g.checksum > 0 {
		class = telemetry.ClassChecksumError
	}
	text := fmt.Sprintf("%s: discarded %d bytes at offset %d (%d checksum, %d malformed; first: %s)",
		f.name, g.bytes, g.start, g.checksum, g.malformed, g.first)
	if suppressed > 0 {
		text += fmt.Sprintf(" [%d similar reports suppressed]", suppressed)
	}
	f.emit.Status(telemetry.SeverityWarning, class, text)
}

func maxFrameLen() int {
	n := 0
	for _, m := range messageTable {
		if l := headerLen + m.size + trailerLen; l > n {
			n = l
		}
	}
	return n
}
