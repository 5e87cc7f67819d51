package nav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"enginemon/internal/connector"
	"enginemon/internal/link"
	"enginemon/internal/telemetry"
)

// DefaultMaxLineBytes bounds a buffered line. NMEA 0183 caps sentences at 82
// characters; receivers exceed that in practice, but not by this much.
const DefaultMaxLineBytes = 512

type Config struct {
	Link   link.Config
	Opener link.Opener

	ReconnectDelay time.Duration
	ReconnectMax   time.Duration

	// MaxLineBytes bounds the partial-line buffer. Longer lines are dropped
	// and reported as a buffer overrun.
	MaxLineBytes int

	StatusRate  float64
	StatusBurst int

	RecentStatus int

	Clock  clockwork.Clock
	Logger *zerolog.Logger
}

// Connector reads NMEA sentences from a GPS/navigator and publishes
// time-to-destination records.
type Connector struct {
	life    *connector.Lifecycle
	sup     *connector.Supervisor
	tracker *connector.Tracker
}

func New(cfg Config, out connector.Publisher) (*Connector, error) {
	if out == nil {
		return nil, fmt.Errorf("nav connector publisher is nil")
	}
	if cfg.Link.Name == "" {
		cfg.Link.Name = "navigation"
	}
	if cfg.Link.Baud <= 0 {
		cfg.Link.Baud = 4800
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
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
	lr := &lineReader{
		name:     cfg.Link.Name,
		max:      cfg.MaxLineBytes,
		emit:     emit,
		tracker:  tracker,
		reporter: connector.NewReporter(cfg.StatusRate, d.StatusBurst, cfg.Clock),
	}
	return &Connector{
		life:    connector.NewLifecycle("nav connector"),
		tracker: tracker,
		sup: &connector.Supervisor{
			Link:    cfg.Link,
			Opener:  cfg.Opener,
			Clock:   cfg.Clock,
			Backoff: connector.NewBackoff(d.ReconnectDelay, d.ReconnectMax),
			Emit:    emit,
			Tracker: tracker,
			Log:     logger,
			Framer:  lr,
		},
	}, nil
}

func (c *Connector) Run(ctx context.Context) error {
	return c.life.Run(ctx, c.sup.Run)
}

func (c *Connector) Start(ctx context.Context) error {
	return c.life.Start(ctx, c.sup.Run)
}

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

// lineReader splits the byte stream on '\n' and decodes each line.
type lineReader struct {
	name     string
	max      int
	pending  []byte
	overlong bool
	lineNo   uint64
	// synced is false until the first line of a session that starts with '$'.
	synced bool

	emit     *connector.Emitter
	tracker  *connector.Tracker
	reporter *connector.Reporter
}

func (r *lineReader) Ingest(chunk []byte) {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			r.hold(chunk)
			return
		}
		r.hold(chunk[:i])
		chunk = chunk[i+1:]

		line, overlong := r.pending, r.overlong
		r.pending, r.overlong = r.pending[:0], false
		r.lineNo++
		if overlong {
			r.overrun()
			continue
		}
		r.line(string(bytes.TrimRight(line, "\r")))
	}
}

// hold keeps a partial line until its terminator arrives.
func (r *lineReader) hold(p []byte) {
	if r.overlong {
		return
	}
	if len(r.pending)+len(p) > r.max {
		r.pending = r.pending[:0]
		r.overlong = true
		return
	}
	r.pending = append(r.pending, p...)
}

func (r *lineReader) Reset() {
	r.pending = r.pending[:0]
	r.overlong = false
	r.synced = false
}

func (r *lineReader) line(s string) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return
	}
	if !r.synced {
		if !strings.HasPrefix(trimmed, "$") {
			// The tail of a sentence that started before the port opened.
			r.emit.Log.Debug().Uint64("line", r.lineNo).Str("fragment", clip(trimmed)).
				Msg("dropped partial sentence")
			return
		}
		r.synced = true
	}
	rec, ok, err := Decode(s)
	if err != nil {
		r.report(err, s)
		return
	}
	if !ok {
		r.tracker.MarkIgnored()
		return
	}
	r.emit.Record(rec)
}

func (r *lineReader) overrun() {
	r.tracker.MarkDecodeErrors(1)
	ok, suppressed := r.reporter.Allow()
	if !ok {
		return
	}
	text := fmt.Sprintf("%s line %d: line buffer overrun, discarded a line longer than %d bytes", r.name, r.lineNo, r.max)
	if suppressed > 0 {
		text += fmt.Sprintf(" [%d similar reports suppressed]", suppressed)
	}
	r.emit.Status(telemetry.SeverityWarning, telemetry.ClassBufferOverrun, text)
}

// report counts a rejected line. Only checksum failures become statuses;
// malformed lines are logged at debug level.
func (r *lineReader) report(err error, sentence string) {
	r.tracker.MarkDecodeErrors(1)
	if !errors.Is(err, ErrChecksum) {
		r.emit.Log.Debug().Err(err).Uint64("line", r.lineNo).Str("sentence", clip(sentence)).
			Msg("discarded malformed sentence")
		return
	}

	ok, suppressed := r.reporter.Allow()
	if !ok {
		return
	}
	text := fmt.Sprintf("%s line %d: %v in %q", r.name, r.lineNo, err, clip(sentence))
	if suppressed > 0 {
		text += fmt.Sprintf(" [%d similar reports suppressed]", suppressed)
	}
	r.emit.Status(telemetry.SeverityWarning, telemetry.ClassChecksumError, text)
}

func clip(s string) string {
	if len(s) > 96 {
		return s[:96] + "..."
	}
	return s
}
