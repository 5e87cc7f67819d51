package sim

import (
	"math"
	"time"

	"enginemon/internal/telemetry"
)

// EngineSim produces a deterministic engine run: values swing gently around a
// cruise setting and fuel burns down over time.
type EngineSim struct {
	Period time.Duration
	// StartFuelL is the fuel on board at elapsed zero.
	StartFuelL float64
}

// Records returns one of each record type for the engine state at elapsed.
func (s EngineSim) Records(elapsed time.Duration) []telemetry.Payload {
	period := s.Period
	if period <= 0 {
		period = 60 * time.Second
	}
	fuel := s.StartFuelL
	if fuel <= 0 {
		fuel = 80
	}
	if elapsed < 0 {
		elapsed = 0
	}

	phase := float64(elapsed.Nanoseconds()%period.Nanoseconds()) / float64(period.Nanoseconds())
	w := 2 * math.Pi * phase
	sin, cos := math.Sin(w), math.Cos(w)

	flow := round1(30 + 3*sin)
	// Burn at the average flow; good enough for a falling gauge.
	left := fuel - 30*elapsed.Hours()
	if left < 0 {
		left = 0
	}

	var egt, cht [4]uint16
	for i := range egt {
		egt[i] = uint16(math.Round(720 + float64(i)*12 + 15*math.Sin(w+float64(i))))
		cht[i] = uint16(math.Round(180 + float64(i)*4 + 6*math.Cos(w+float64(i))))
	}

	return []telemetry.Payload{
		telemetry.Primary{RPM: math.Round(2300 + 200*sin), FuelFlowLPH: flow},
		telemetry.Secondary{
			OilTempC:            round1(85 + 5*sin),
			OilPressureKPa:      round1(380 + 20*cos),
			FuelPressureKPa:     round1(35 + sin),
			CoolantTempC:        round1(90 + 3*cos),
			Volts:               math.Round((13.8+0.1*sin)*100) / 100,
			Amps:                round1(5 * cos),
			ManifoldPressureKPa: round1(80 + 4*sin),
		},
		telemetry.Auxiliary{FuelLevelL: round1(left)},
		telemetry.EGTBank{TempC: egt},
		telemetry.CHTBank{TempC: cht},
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
