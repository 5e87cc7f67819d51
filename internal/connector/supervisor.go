package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"enginemon/internal/link"
	"enginemon/internal/telemetry"
)

// Framer turns raw chunks into records. It is only ever called from the
// supervisor goroutine.
type Framer interface {
	// Ingest consumes one chunk.
	Ingest(chunk []byte)
	// Reset drops partial input left by a session that ended.
	Reset()
}

// Supervisor owns the link state machine shared by both connectors:
// Disconnected, Connecting, Connected and Faulted, with backoff between
// failed attempts.
type Supervisor struct {
	Link    link.Config
	Opener  link.Opener
	Clock   clockwork.Clock
	Backoff *Backoff
	Emit    *Emitter
	Tracker *Tracker
	Log     zerolog.Logger
	Framer  Framer

	reportedFail string
}

// Run loops until ctx is done. It never gives up on an unavailable device.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.Tracker.SetState(telemetry.StateDisconnected, "")

	for ctx.Err() == nil {
		s.Tracker.SetState(telemetry.StateConnecting, "")
		l, err := link.Open(s.Link, s.Opener)
		if err != nil {
			s.fault(err)
			if !Sleep(ctx, s.Clock, s.Backoff.Next()) {
				return
			}
			continue
		}

		s.connected(l)
		before := s.Tracker.Records()
		err = s.readLoop(ctx, l)
		if cerr := l.Close(); cerr != nil {
			s.Log.Debug().Err(cerr).Msg("link close failed")
		}
		s.Framer.Reset()

		if ctx.Err() != nil {
			return
		}
		s.Tracker.SetState(telemetry.StateConnecting, err.Error())
		s.Emit.Status(telemetry.SeverityWarning, telemetry.ClassLinkLost,
			fmt.Sprintf("%s link lost: %v", s.Link.Name, err))

		if s.Tracker.Records() > before {
			s.Backoff.Reset()
			continue
		}
		// Opened but never produced a record: wait before reopening so a
		// flapping port cannot spin.
		if !Sleep(ctx, s.Clock, s.Backoff.Next()) {
			return
		}
	}
}

func (s *Supervisor) fault(err error) {
	s.Tracker.SetState(telemetry.StateFaulted, err.Error())

	msg := err.Error()
	if msg == s.reportedFail {
		return
	}
	s.reportedFail = msg

	text := fmt.Sprintf("%s link unavailable: %v", s.Link.Name, err)
	if s.Tracker.EverConnected() {
		text = fmt.Sprintf("%s link down, reconnect failed: %v", s.Link.Name, err)
	}
	s.Emit.Status(telemetry.SeverityError, telemetry.ClassLinkUnavailable, text)
}

func (s *Supervisor) connected(l *link.Link) {
	s.reportedFail = ""
	s.Tracker.SetState(telemetry.StateConnected, "")
	lc := l.Config()
	s.Emit.Status(telemetry.SeverityInfo, telemetry.ClassLinkUp,
		fmt.Sprintf("%s link connected on %s (%d %d%s%s)",
			lc.Name, lc.Device, lc.Baud, lc.DataBits, parityLetter(lc.Parity), lc.StopBits))
}

func (s *Supervisor) readLoop(ctx context.Context, l *link.Link) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := l.Read()
		if err != nil {
			return err
		}
		if len(chunk) > 0 {
			s.Framer.Ingest(chunk)
		}
	}
}

func parityLetter(p string) string {
	switch p {
	case "odd":
		return "O"
	case "even":
		return "E"
	case "mark":
		return "M"
	case "space":
		return "S"
	default:
		return "N"
	}
}

// Defaults fills the timing knobs both connectors share.
type Defaults struct {
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration
	StatusBurst    int
	RecentStatus   int
}

func (d Defaults) Apply() Defaults {
	if d.ReconnectDelay <= 0 {
		d.ReconnectDelay = 1 * time.Second
	}
	if d.ReconnectMax <= 0 {
		d.ReconnectMax = 5 * time.Second
	}
	if d.StatusBurst <= 0 {
		d.StatusBurst = 5
	}
	if d.RecentStatus <= 0 {
		d.RecentStatus = 20
	}
	return d
}
