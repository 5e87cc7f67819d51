package main

import (
	"time"

	"github.com/rs/zerolog"

	"enginemon/internal/events"
	"enginemon/internal/syncutil"
	"enginemon/internal/telemetry"
)

// display is a console stand-in for the gauge panel: it keeps the latest
// reading of each kind and logs status notifications as they arrive.
type display struct {
	log zerolog.Logger

	mu       syncutil.Mutex
	primary  *telemetry.Primary
	second   *telemetry.Secondary
	aux      *telemetry.Auxiliary
	egt      *telemetry.EGTBank
	cht      *telemetry.CHTBank
	nav      *telemetry.NavRecord
	warnings int
	statuses int
}

func newDisplay(logger zerolog.Logger) *display {
	return &display{log: logger.With().Str("component", "display").Logger()}
}

func (d *display) Handlers() events.Handlers {
	return events.Handlers{
		OnPrimary:           func(p telemetry.Primary) { d.set(func() { d.primary = &p }) },
		OnSecondary:         func(s telemetry.Secondary) { d.set(func() { d.second = &s }) },
		OnAuxiliary:         func(a telemetry.Auxiliary) { d.set(func() { d.aux = &a }) },
		OnEGT:               func(e telemetry.EGTBank) { d.set(func() { d.egt = &e }) },
		OnCHT:               func(c telemetry.CHTBank) { d.set(func() { d.cht = &c }) },
		OnTimeToDestination: func(n telemetry.NavRecord) { d.set(func() { d.nav = &n }) },
		OnStatus:            d.status,
	}
}

func (d *display) set(fn func()) {
	d.mu.Lock()
	fn()
	d.mu.Unlock()
}

func (d *display) status(source string, st telemetry.Status) {
	d.mu.Lock()
	d.statuses++
	if st.IsWarning() {
		d.warnings++
	}
	d.mu.Unlock()

	var ev *zerolog.Event
	switch st.Severity {
	case telemetry.SeverityError:
		ev = d.log.Error()
	case telemetry.SeverityWarning:
		ev = d.log.Warn()
	default:
		ev = d.log.Info()
	}
	ev.Str("source", source).Str("class", string(st.Class)).Msg(st.Text)
}

func (d *display) logGauges() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := d.log.Info()
	if d.primary != nil {
		ev = ev.Float64("rpm", d.primary.RPM).Float64("fuel_flow_lph", d.primary.FuelFlowLPH)
	}
	if d.second != nil {
		ev = ev.Float64("oil_temp_c", d.second.OilTempC).
			Float64("oil_press_kpa", d.second.OilPressureKPa).
			Float64("volts", d.second.Volts).
			Float64("map_kpa", d.second.ManifoldPressureKPa)
	}
	if d.aux != nil {
		ev = ev.Float64("fuel_l", d.aux.FuelLevelL)
	}
	if d.egt != nil {
		ev = ev.Interface("egt_c", d.egt.TempC)
	}
	if d.cht != nil {
		ev = ev.Interface("cht_c", d.cht.TempC)
	}
	if d.nav != nil {
		if d.nav.Valid {
			ev = ev.Dur("time_to_dest", d.nav.TimeToDestination.Round(time.Second))
		} else {
			ev = ev.Str("time_to_dest", "invalid")
		}
	}
	ev.Int("status_count", d.statuses).Int("warning_count", d.warnings).Msg("gauges")
}
