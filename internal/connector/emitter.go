package connector

import (
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"enginemon/internal/telemetry"
)

// Publisher accepts events without blocking. *events.Queue implements it.
type Publisher interface {
	Publish(ev telemetry.Event) bool
}

// Emitter stamps and publishes a connector's events and keeps its Tracker in
// step.
type Emitter struct {
	Source  string
	Out     Publisher
	Clock   clockwork.Clock
	Tracker *Tracker
	Log     zerolog.Logger
}

func (e *Emitter) Record(p telemetry.Payload) {
	now := e.Clock.Now()
	e.Out.Publish(telemetry.Event{Source: e.Source, Time: now, Payload: p})
	e.Tracker.MarkRecord(now)
}

func (e *Emitter) Status(sev telemetry.Severity, class telemetry.Class, text string) {
	e.Tracker.NoteStatus(text)

	var ev *zerolog.Event
	switch {
	case class == telemetry.ClassChecksumError || class == telemetry.ClassMalformedFrame ||
		class == telemetry.ClassMalformedSentence:
		ev = e.Log.Debug()
	case sev >= telemetry.SeverityError:
		ev = e.Log.Error()
	case sev == telemetry.SeverityWarning:
		ev = e.Log.Warn()
	default:
		ev = e.Log.Info()
	}
	ev.Str("class", string(class)).Msg(text)

	e.Out.Publish(telemetry.Event{
		Source:  e.Source,
		Time:    e.Clock.Now(),
		Payload: telemetry.Status{Severity: sev, Class: class, Text: text},
	})
}
