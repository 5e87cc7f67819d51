package events

import (
	"context"
	"errors"

	"enginemon/internal/telemetry"
)

// Handlers is the display's side of the channel. Nil callbacks are skipped.
// All callbacks run on the goroutine that calls Dispatch.
type Handlers struct {
	OnPrimary           func(telemetry.Primary)
	OnSecondary         func(telemetry.Secondary)
	OnAuxiliary         func(telemetry.Auxiliary)
	OnEGT               func(telemetry.EGTBank)
	OnCHT               func(telemetry.CHTBank)
	OnTimeToDestination func(telemetry.NavRecord)
	OnStatus            func(source string, st telemetry.Status)
}

// Handle routes one event to its callback.
func (h Handlers) Handle(ev telemetry.Event) {
	switch p := ev.Payload.(type) {
	case telemetry.Primary:
		if h.OnPrimary != nil {
			h.OnPrimary(p)
		}
	case telemetry.Secondary:
		if h.OnSecondary != nil {
			h.OnSecondary(p)
		}
	case telemetry.Auxiliary:
		if h.OnAuxiliary != nil {
			h.OnAuxiliary(p)
		}
	case telemetry.EGTBank:
		if h.OnEGT != nil {
			h.OnEGT(p)
		}
	case telemetry.CHTBank:
		if h.OnCHT != nil {
			h.OnCHT(p)
		}
	case telemetry.NavRecord:
		if h.OnTimeToDestination != nil {
			h.OnTimeToDestination(p)
		}
	case telemetry.Status:
		if h.OnStatus != nil {
			h.OnStatus(ev.Source, p)
		}
	}
}

// Dispatch drains q into h until the queue is closed (returns nil) or ctx is
// done (returns ctx.Err()).
func Dispatch(ctx context.Context, q *Queue, h Handlers) error {
	for {
		ev, err := q.Receive(ctx)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		h.Handle(ev)
	}
}
